package dedup

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/textnorm"
)

var (
	originSuffix      = regexp.MustCompile(`(?i)(dan|дан)$`)
	destinationSuffix = regexp.MustCompile(`(?i)(ga|га|gacha|гача)$`)
	localLoadWords    = regexp.MustCompile(`(?i)(mestniy|mesni|ichida|местный|месне|мэсни|shaxar ichiga|шахар ичига|месни|mesniy|местни|местний|месныи)`)
)

func stripOrigin(s string) string      { return originSuffix.ReplaceAllString(s, "") }
func stripDestination(s string) string { return destinationSuffix.ReplaceAllString(s, "") }

// paramsHash fingerprints a route and its sender within one text.
func paramsHash(parts ...string) string {
	return textnorm.MD5(strings.Join(parts, "-"))
}

// containsWord reports a match of re that is not glued to other letters or
// digits.
func containsWord(re *regexp.Regexp, text string) bool {
	for _, loc := range re.FindAllStringIndex(text, -1) {
		before, _ := utf8.DecodeLastRuneInString(text[:loc[0]])
		after, _ := utf8.DecodeRuneInString(text[loc[1]:])
		if (loc[0] == 0 || !isWordRune(before)) && (loc[1] == len(text) || !isWordRune(after)) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func usablePhone(phone string) bool {
	return len(phone) > minPhoneLength
}

// phoneSuffixes returns the distinct usable phones without country code.
func phoneSuffixes(phones ...string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range phones {
		if !usablePhone(p) {
			continue
		}
		suffix := textnorm.StripCountryCode(p)
		if !seen[suffix] {
			seen[suffix] = true
			out = append(out, suffix)
		}
	}
	return out
}

// sender loads or creates the stored profile of the message author.
func (r *Resolver) sender(ctx context.Context, src Source) (*db.Sender, error) {
	if src.Sender == nil || src.Sender.ID == 0 {
		return nil, nil
	}
	profile := db.Sender{ID: src.Sender.ID}
	if src.Sender.Username != "" {
		profile.Username = &src.Sender.Username
	}
	if src.Sender.FirstName != "" {
		profile.FirstName = &src.Sender.FirstName
	}
	if src.Sender.Phone != "" {
		profile.Phone = &src.Sender.Phone
	}
	return r.store.EnsureSender(ctx, profile)
}

// messagePhone is the phone an ad is stored with: the extracted one, or the
// first phone found in the message.
func messagePhone(extracted, text string) string {
	phone := extracted
	if phone == "" {
		raw := textnorm.ExtractPhone(text)
		if phone = textnorm.CleanupPhone(raw); phone == "" {
			phone = raw
		}
	}
	return textnorm.StripCountryCode(phone)
}

func senderKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func blank(p *string) bool {
	return p == nil || *p == ""
}

func zero(p *float64) bool {
	return p == nil || *p == 0
}
