package textnorm

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Verdict is the outcome of the quality gate.
type Verdict string

const (
	Accepted               Verdict = "accepted"
	RejectedDeletedAccount Verdict = "deleted_account"
	RejectedStale          Verdict = "stale"
	RejectedShort          Verdict = "short"
	RejectedSpammer        Verdict = "spammer"
	RejectedSpamPhrase     Verdict = "spam_phrase"
	RejectedWatermark      Verdict = "watermark"
)

const (
	// RecencyWindow is how old a message may be and still be ingested.
	RecencyWindow = 4 * 24 * time.Hour
	// MinLength is the shortest cleaned text, in runes, that is rejected.
	MinLength = 28
)

// Sender is the author of an upstream message.
type Sender struct {
	ID        int64
	FirstName string
	Username  string
	Phone     string
}

// Message is an upstream channel message as seen by the gate.
type Message struct {
	ID     int64
	Text   string
	Sender *Sender
	Sent   time.Time
}

// Blocklist holds the known spammers and spam phrases.
type Blocklist struct {
	spammers map[int64]struct{}
	words    []string
}

func NewBlocklist(spammers []int64, words []string) *Blocklist {
	b := &Blocklist{spammers: make(map[int64]struct{}, len(spammers))}
	for _, id := range spammers {
		b.spammers[id] = struct{}{}
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			b.words = append(b.words, w)
		}
	}
	return b
}

func (b *Blocklist) IsSpammer(id int64) bool {
	if b == nil {
		return false
	}
	_, ok := b.spammers[id]
	return ok
}

// ContainsSpam reports whether text contains any spam phrase, ignoring case.
func (b *Blocklist) ContainsSpam(text string) bool {
	if b == nil {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range b.words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Prepared is a message after normalization and gating.
type Prepared struct {
	Message
	Stripped string
	Text     string
	Hashes   Hashes
	Kind     Kind
	Closing  bool
	Verdict  Verdict
}

func (p Prepared) Accepted() bool { return p.Verdict == Accepted }

// IsDeletedAccount reports messages without a usable author.
func IsDeletedAccount(s *Sender) bool {
	return s == nil || (s.FirstName == "Deleted Account" && s.Username == "")
}

// Prepare normalizes msg and runs the quality gate against now. Rejected
// messages are returned with their verdict so callers can still count them
// and advance their checkpoint.
func Prepare(msg Message, now time.Time, blocklist *Blocklist) Prepared {
	p := Prepared{Message: msg, Stripped: StripHeader(msg.Text)}
	p.Hashes = HashMessage(msg.Text)
	if IsDeletedAccount(msg.Sender) {
		p.Verdict = RejectedDeletedAccount
		return p
	}

	cleaned := Clean(p.Stripped, msg.Sent)
	p.Kind = Classify(cleaned)
	p.Closing = IsClosing(cleaned)
	short := utf8.RuneCountInString(cleaned) <= MinLength
	p.Text = RemoveFiller(cleaned)

	switch {
	case now.Sub(msg.Sent) > RecencyWindow:
		p.Verdict = RejectedStale
	case short:
		p.Verdict = RejectedShort
	case blocklist.IsSpammer(msg.Sender.ID):
		p.Verdict = RejectedSpammer
	case blocklist.ContainsSpam(p.Text):
		p.Verdict = RejectedSpamPhrase
	case IsRepublished(msg.Text):
		p.Verdict = RejectedWatermark
	default:
		p.Verdict = Accepted
	}
	return p
}
