package textnorm

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var goodsNoiseWords = []string{
	"юк", "догруз", "груз", "bor", "бор", "paravoz", "yuklanadi", "ATROFI", "без режима", "стандарт",
	"исузу", "lar", "tent", "ref", "fura", "готов", "КЕРАК", "KERE", "unknown", "РЕФ-ТЕНТ", "Нужен",
	"null", "йук", "TAYYOR", "moshina", "kerak", "GRUZ", "КЕРЕ", "фура", "таййор", "тентофка", "тент",
	"плашатка", "hazardous", "реф", "срочни", "исузи", "not_specified", "yoki", "yuk", "mestniy",
	"mesni", "shaxar ichiga", "шахар ичига", "месни", "местни", "местний", "месныи", "ta", "та", "gruz",
	"yukbor", "yarim", "kk", "майда", "керак", "юка", "bo'sh", "katta",
}

var goodsNoisePattern = func() *regexp.Regexp {
	words := append([]string(nil), goodsNoiseWords...)
	// Longest first, so a word that fails the boundary check does not hide a
	// longer one starting at the same offset.
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	return regexp.MustCompile(`(?i)(?:` + quoteAll(words) + `)`)
}()

var blankRun = regexp.MustCompile(`\s+`)

func isGoodsBoundaryRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r >= 'а' && r <= 'я', r >= 'А' && r <= 'Я', r == 'ё', r == 'Ё':
		return true
	}
	return false
}

// CleanupGoods strips truck and request vocabulary from an extracted goods
// description. It returns "" when nothing meaningful is left.
func CleanupGoods(goods string) string {
	var b strings.Builder
	last := 0
	for _, loc := range goodsNoisePattern.FindAllStringIndex(goods, -1) {
		if r, _ := utf8.DecodeLastRuneInString(goods[:loc[0]]); loc[0] > 0 && isGoodsBoundaryRune(r) {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(goods[loc[1]:]); loc[1] < len(goods) && isGoodsBoundaryRune(r) {
			continue
		}
		b.WriteString(goods[last:loc[0]])
		b.WriteByte(' ')
		last = loc[1]
	}
	b.WriteString(goods[last:])

	out := strings.TrimSpace(blankRun.ReplaceAllString(b.String(), " "))
	if utf8.RuneCountInString(out) <= 1 {
		return ""
	}
	return out
}
