package textnorm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractPhone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare local number", in: "Toshkentdan Samarqandga 15 tonna 901234567", want: "901234567"},
		{name: "international with blanks", in: "tel: +998 90 123 45 67", want: "+998901234567"},
		{name: "date-like prefix skipped", in: "90-123-45-67 ga qo'ng'iroq", want: "1234567"},
		{name: "parenthesized operator", in: "tel (90) 123 45 67", want: "(90)1234567"},
		{name: "date is not a phone", in: "12.05.2024 da yuklanadi", want: ""},
		{name: "no digits", in: "Fura kerak", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractPhone(tc.in); got != tc.want {
				t.Fatalf("ExtractPhone(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRemovePhones_KeepsRoundPrices(t *testing.T) {
	t.Parallel()

	got, removed := RemovePhones("Narx 5000000 tel 901234567")
	if got != "Narx 5000000 tel" {
		t.Fatalf("RemovePhones text = %q", got)
	}
	if diff := cmp.Diff([]string{"901234567"}, removed); diff != "" {
		t.Fatalf("removed mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanupPhone(t *testing.T) {
	t.Parallel()

	if got := CleanupPhone("+998 90 123-45-67"); got != "998901234567" {
		t.Fatalf("CleanupPhone = %q", got)
	}
	if got := CleanupPhone("12345"); got != "" {
		t.Fatalf("CleanupPhone(short) = %q, want empty", got)
	}
}

func TestStripCountryCode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"+998901234567": "901234567",
		"998901234567":  "901234567",
		"901234567":     "901234567",
		"79261234567":   "79261234567",
	} {
		if got := StripCountryCode(in); got != want {
			t.Fatalf("StripCountryCode(%q) = %q, want %q", in, got, want)
		}
	}
}
