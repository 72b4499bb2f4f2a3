package textnorm

import (
	"strings"
	"testing"
	"time"
)

var gateNow = time.Date(2024, time.August, 21, 12, 0, 0, 0, time.UTC)

func loadMessage(text string) Message {
	return Message{
		ID:     101,
		Text:   text,
		Sender: &Sender{ID: 7, FirstName: "Ali"},
		Sent:   gateNow.Add(-time.Hour),
	}
}

const loadText = "Toshkentdan Samarqandga 15 tonna sement, tel 901234567"

func TestPrepare_AcceptsLoad(t *testing.T) {
	t.Parallel()

	p := Prepare(loadMessage(loadText), gateNow, NewBlocklist(nil, nil))
	if !p.Accepted() {
		t.Fatalf("verdict = %s, want accepted", p.Verdict)
	}
	if p.Kind != KindLoad {
		t.Fatalf("kind = %s, want load", p.Kind)
	}
	if p.Text != loadText {
		t.Fatalf("text = %q", p.Text)
	}
	if p.Hashes.Text != MD5(strings.ToLower(loadText)) {
		t.Fatalf("text hash = %s", p.Hashes.Text)
	}
}

func TestPrepare_Verdicts(t *testing.T) {
	t.Parallel()

	stale := loadMessage(loadText)
	stale.Sent = gateNow.Add(-5 * 24 * time.Hour)

	deleted := loadMessage(loadText)
	deleted.Sender = &Sender{ID: 8, FirstName: "Deleted Account"}

	anonymous := loadMessage(loadText)
	anonymous.Sender = nil

	cases := []struct {
		name      string
		msg       Message
		blocklist *Blocklist
		want      Verdict
	}{
		{name: "stale", msg: stale, want: RejectedStale},
		{name: "short", msg: loadMessage("Toshkent - Samarqand"), want: RejectedShort},
		{name: "spammer", msg: loadMessage(loadText), blocklist: NewBlocklist([]int64{7}, nil), want: RejectedSpammer},
		{name: "spam phrase", msg: loadMessage(loadText + " Kanalga OBUNA bo'ling"), blocklist: NewBlocklist(nil, []string{"kanalga obuna"}), want: RejectedSpamPhrase},
		{name: "watermark", msg: loadMessage(AddWatermark(loadText, SystemMarker)), want: RejectedWatermark},
		{name: "deleted account", msg: deleted, want: RejectedDeletedAccount},
		{name: "no sender", msg: anonymous, want: RejectedDeletedAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Prepare(tc.msg, gateNow, tc.blocklist).Verdict; got != tc.want {
				t.Fatalf("verdict = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestPrepare_ClassifiesDriverOffer(t *testing.T) {
	t.Parallel()

	p := Prepare(loadMessage("Fura bor Toshkentdan Moskvaga, yuk kerak bo'lsa yozing 901234567"), gateNow, nil)
	if p.Kind != KindVehicle {
		t.Fatalf("kind = %s, want vehicle", p.Kind)
	}
}

func TestIsClosing(t *testing.T) {
	t.Parallel()

	if !IsClosing("Yopildi rahmat") {
		t.Fatalf("IsClosing(short closing) = false")
	}
	if IsClosing("Toshkentdan Samarqandga yuk yopildi, yana kerak") {
		t.Fatalf("IsClosing(long) = true")
	}
}

func TestWatermarkRoundTrip(t *testing.T) {
	t.Parallel()

	marked := AddWatermark("hello", "X")
	if got := ExtractWatermark(marked); got != "X" {
		t.Fatalf("ExtractWatermark = %q", got)
	}
	if !IsRepublished(marked) || IsRepublished("hello") {
		t.Fatalf("IsRepublished mismatch")
	}
}

func TestHashMessage(t *testing.T) {
	t.Parallel()

	h := HashMessage("Ali, [21.08.2024 9:59]\n Hello ")
	if h.Raw != MD5(" Hello ") || h.Trimmed != MD5("Hello") || h.Text != MD5("hello") {
		t.Fatalf("hashes = %+v", h)
	}
	a := HashMessage("Toshkent Samarqand 901234567")
	b := HashMessage("Toshkent Samarqand 935556677")
	if a.NoPhone != b.NoPhone {
		t.Fatalf("no-phone hashes differ: %s vs %s", a.NoPhone, b.NoPhone)
	}
	if a.Text == b.Text {
		t.Fatalf("text hashes should differ")
	}
}
