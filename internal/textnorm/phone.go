package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

// phoneAt matches, at the start of its input, an optional "+", an optional
// 1-3 digit country code, a 2-3 digit (possibly parenthesized) operator code
// and 4-7 further digits, each group optionally separated by " ", "." or "-".
// phoneAtInWord is the same without the country code group, used where the
// preceding character is a word character.
var (
	phoneAt       = regexp.MustCompile(`^\+?(\d{1,3}[ .\-]?)?\(?\d{2,3}\)?(?:[ .\-]?\d){4,7}`)
	phoneAtInWord = regexp.MustCompile(`^\+?\(?\d{2,3}\)?(?:[ .\-]?\d){4,7}`)
)

var phoneSeparators = regexp.MustCompile(`[\s\-]+`)

type span struct{ start, end int }

// phoneSpans finds phone-like runs scanning left to right. RE2 has no
// lookaround, so the guards are checked by hand: a match must not be
// followed by another digit group and must not start with a "DD." / "DD-"
// date-like prefix. A rejected start is retried one byte later.
func phoneSpans(text string) []span {
	var out []span
	for p := 0; p < len(text); p++ {
		c := text[p]
		if c != '+' && c != '(' && !isDigit(c) {
			continue
		}
		re := phoneAt
		if isDigit(c) && p > 0 && isWordByte(text[p-1]) {
			re = phoneAtInWord
		}
		loc := re.FindStringIndex(text[p:])
		if loc == nil {
			continue
		}
		end := p + loc[1]
		if followedByDigit(text[end:]) || datePrefix(text[p:end]) {
			continue
		}
		out = append(out, span{p, end})
		p = end - 1
	}
	return out
}

func isWordByte(b byte) bool {
	return isDigit(b) || b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func followedByDigit(rest string) bool {
	if rest == "" {
		return false
	}
	if isDigit(rest[0]) {
		return true
	}
	return len(rest) > 1 && (rest[0] == ' ' || rest[0] == '.' || rest[0] == '-') && isDigit(rest[1])
}

func datePrefix(match string) bool {
	return len(match) >= 3 && isDigit(match[0]) && isDigit(match[1]) && (match[2] == '.' || match[2] == '-')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// ExtractPhone returns the first phone number in text with blanks and dashes
// removed, or "" when none of at least 7 characters is present.
func ExtractPhone(text string) string {
	spans := phoneSpans(text)
	if len(spans) == 0 {
		return ""
	}
	phone := phoneSeparators.ReplaceAllString(text[spans[0].start:spans[0].end], "")
	if len(phone) < 7 {
		return ""
	}
	return phone
}

// RemovePhones strips phone numbers from text. Runs ending in "0000" are
// prices and stay.
func RemovePhones(text string) (string, []string) {
	spans := phoneSpans(text)
	if len(spans) == 0 {
		return strings.TrimSpace(text), nil
	}
	var (
		b       strings.Builder
		removed []string
		last    int
	)
	for _, s := range spans {
		match := text[s.start:s.end]
		if strings.HasSuffix(strings.TrimSpace(match), "0000") {
			continue
		}
		b.WriteString(text[last:s.start])
		removed = append(removed, strings.TrimSpace(match))
		last = s.end
	}
	b.WriteString(text[last:])
	return strings.TrimSpace(b.String()), removed
}

// CleanupPhone keeps only digits of phones longer than 8 characters.
func CleanupPhone(phone string) string {
	if len(phone) <= 8 {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
}

// StripCountryCode removes the +998 / 998 prefix from full-length numbers.
func StripCountryCode(phone string) string {
	if len(phone) != 12 && len(phone) != 13 {
		return phone
	}
	if strings.HasPrefix(phone, "+998") {
		return phone[4:]
	}
	if strings.HasPrefix(phone, "998") {
		return phone[3:]
	}
	return phone
}
