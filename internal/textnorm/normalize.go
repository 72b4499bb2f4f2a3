package textnorm

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var headerPattern = regexp.MustCompile(`^(.{1,32}?), \[(\d{2}\.\d{2}\.\d{4} \d{1,2}:\d{2})\]\n*`)

// StripHeader removes a forwarded "Name, [21.08.2024 9:59]" prefix.
func StripHeader(text string) string {
	return headerPattern.ReplaceAllString(text, "")
}

var (
	sameDayWords = []string{"bugun", "бугун", "xozirga", "хозирга", "сейчас", "hozir", "hozrga", "сегодня"}
	nextDayWords = []string{
		"ertaga", "ertalabga", "eralab", "ерталб", "эртангига", "ерталафка", "эрталабга",
		"ертагаликка", "ертагалиk", "ertagalik", "ерталабга", "эртага", "завтра",
	}
	sameDayPattern = wordsPattern(sameDayWords)
	nextDayPattern = wordsPattern(nextDayWords)
)

const shortDateLayout = "02-Jan-06"

func wordsPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// replaceWholeWords replaces matches of re that are not glued to other
// letters or digits on either side.
func replaceWholeWords(text string, re *regexp.Regexp, repl string) string {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		if before, _ := utf8.DecodeLastRuneInString(text[:loc[0]]); loc[0] > 0 && isWordRune(before) {
			continue
		}
		if after, _ := utf8.DecodeRuneInString(text[loc[1]:]); loc[1] < len(text) && isWordRune(after) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(repl)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// ResolveRelativeDates turns "today"/"tomorrow" words into short absolute
// dates relative to the message's own timestamp.
func ResolveRelativeDates(text string, sent time.Time) string {
	text = replaceWholeWords(text, sameDayPattern, sent.Format(shortDateLayout))
	return replaceWholeWords(text, nextDayPattern, sent.AddDate(0, 0, 1).Format(shortDateLayout))
}

var symbolReplacer = strings.NewReplacer(
	"милйон", "миллион",
	"➡️", " -> ",
	"👉", " -> ",
	"💰", "$",
)

var flagPattern = regexp.MustCompile(`[\x{1F1E6}-\x{1F1FF}]{2}`)

func firstFlag(line string) string {
	return flagPattern.FindString(line)
}

// InsertFlagRoutes rewrites vertical flag listings into explicit routes:
//
//	🇷🇺СМОЛЕНСК
//	🇺🇿КОКАНД 2850
//	🇺🇿ТАШКЕНТ 2650
//
// becomes "🇷🇺СМОЛЕНСК -> 🇺🇿КОКАНД 2850" and "🇷🇺СМОЛЕНСК -> 🇺🇿ТАШКЕНТ 2650".
func InsertFlagRoutes(text string) string {
	lines := strings.Split(text, "\n")
	lineAt := func(i int) string {
		if i < len(lines) {
			return lines[i]
		}
		return ""
	}

	var (
		result   []string
		pending  []string
		header   string
		sequence int
	)
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		current := firstFlag(line)
		next := firstFlag(lineAt(i + 1))
		nextNext := firstFlag(lineAt(i + 2))

		starts := sequence == 0 && current != next && next != "" && nextNext != "" &&
			!strings.Contains(lineAt(i+1), "растаможка")
		if current != "" && (sequence > 0 || starts) {
			sequence++
			if header == "" {
				header = line
				continue
			}
			pending = append(pending, header+" -> "+line)
			continue
		}

		result = append(result, pending...)
		result = append(result, raw)
		pending = nil
		header = ""
		sequence = 0
	}
	result = append(result, pending...)
	return strings.Join(result, "\n")
}

// DropBlankOddLines removes every second line when all of them are blank.
func DropBlankOddLines(text string) string {
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i += 2 {
		if strings.TrimSpace(lines[i]) != "" {
			return text
		}
	}
	kept := make([]string, 0, (len(lines)+1)/2)
	for i := 0; i < len(lines); i += 2 {
		kept = append(kept, lines[i])
	}
	return strings.Join(kept, "\n")
}

var emojiRun = regexp.MustCompile(`[\x{2011}-\x{26FF}\x{2700}-\x{27BF}\x{E000}-\x{F8FF}\x{FE0F}\x{1F000}-\x{1F7FF}\x{1F910}-\x{1F9FF}]+`)

// RemoveEmojis drops emoji runs. A run holding a flag becomes a blank and a
// run longer than five symbols becomes a "-----" separator.
func RemoveEmojis(text string) string {
	return emojiRun.ReplaceAllStringFunc(text, func(run string) string {
		if flagPattern.MatchString(run) {
			return " "
		}
		if utf8.RuneCountInString(run) > 5 {
			return "-----"
		}
		return ""
	})
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// CapitalizeRouteWords uppercases the first letter of words carrying a
// direction suffix ("-dan" from, "-ga" to).
func CapitalizeRouteWords(text string) string {
	return wordPattern.ReplaceAllStringFunc(text, func(word string) string {
		if !hasRouteSuffix(word) {
			return word
		}
		r, size := utf8.DecodeRuneInString(word)
		return string(unicode.ToUpper(r)) + word[size:]
	})
}

func hasRouteSuffix(word string) bool {
	for _, suffix := range []string{"dan", "ga", "дан", "га"} {
		if strings.HasSuffix(word, suffix) {
			return true
		}
	}
	return false
}

// Clean applies the structural normalization steps in order. Filler
// removal is separate, see RemoveFiller.
func Clean(text string, sent time.Time) string {
	text = ResolveRelativeDates(text, sent)
	text = symbolReplacer.Replace(text)
	text = InsertFlagRoutes(text)
	text = DropBlankOddLines(text)
	text = RemoveEmojis(text)
	text = CapitalizeRouteWords(text)
	return strings.TrimSpace(text)
}

var fillerWords = []string{
	"срочно", "sroshni", "assalomu", "alaykum", "assalom", "без посредников",
	"диспетчерла безовта килмасин", "здравствуйте", "bismillah", "напрямую от грузовладельца",
	"самые высокие ставки", "diqqat", "aleykum", "Assalomualaykum", "груз готов", "narx kelishamiz",
	"siroshni", "srochniy", "Surochna", "узидан", "ставка нормальная", "srochna", "srochno", "Шопир",
	"сирочни", "bezrejim", "bez rejm", "диспетчеры не нужны", "shòpir akalar", "Shopirakalar",
	"Shopir akalar", "akalar", "актуальные грузы", "акалар", "bez rejim", "яхшимисизлар", "яхшимисиз",
	"rejimsiz", "Akala ", "хурматли", "без режима", "без режим", "без температурного режима",
	"без температуры", "ассалому", "ассалом", "алайкум", "диспетчерла билан ишламаймиз", "алейкум",
}

var (
	cashTashkent       = regexp.MustCompile(`(?i)пули нактд Тoшкентда`)
	fillerPattern      = regexp.MustCompile(`(?i)(?:` + quoteAll(fillerWords) + `)`)
	currencyRun        = regexp.MustCompile(`\${3,}`)
	dashRun            = regexp.MustCompile(`[\-=]{4,}`)
	underscoreRun      = regexp.MustCompile(`_{4,}`)
	newlineRun         = regexp.MustCompile(`\n{4,}`)
	bareVolume         = regexp.MustCompile(`\d+`)
	volumeUnitFollow   = regexp.MustCompile(`(?i)^[\- ]*(kub|куб|сум|sum|kg|кг)`)
	millionRu          = regexp.MustCompile(`(?i)млн`)
	millionLatin       = regexp.MustCompile(`(?i)mln`)
	bareVolumeNumerals = map[string]struct{}{"96": {}, "105": {}, "120": {}, "130": {}, "140": {}}
)

func quoteAll(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// RemoveFiller strips greetings, pleas and other filler phrases, collapses
// separator runs, and marks bare truck volumes as cubic meters.
func RemoveFiller(text string) string {
	text = cashTashkent.ReplaceAllString(text, "пули нактд")
	text = fillerPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = currencyRun.ReplaceAllLiteralString(text, "$")
	text = dashRun.ReplaceAllString(text, "---")
	text = underscoreRun.ReplaceAllString(text, "___")
	text = newlineRun.ReplaceAllString(text, "\n\n\n")
	text = markBareVolumes(text)
	text = millionRu.ReplaceAllString(text, "миллион")
	text = millionLatin.ReplaceAllString(text, "million")
	return strings.TrimSpace(text)
}

// markBareVolumes appends "куб" to standalone 96/105/120/130/140 that are
// not already followed by a unit.
func markBareVolumes(text string) string {
	locs := bareVolume.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		number := text[loc[0]:loc[1]]
		if _, ok := bareVolumeNumerals[number]; !ok {
			continue
		}
		if before, _ := utf8.DecodeLastRuneInString(text[:loc[0]]); loc[0] > 0 && isWordRune(before) {
			continue
		}
		end := loc[1]
		for end < len(text) && (text[end] == ' ' || text[end] == '\t' || text[end] == '\n' || text[end] == '\r') {
			end++
		}
		if volumeUnitFollow.MatchString(text[loc[1]:]) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(number)
		b.WriteString("куб ")
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}
