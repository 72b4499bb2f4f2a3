package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Language is the ad language carried through the pipeline.
type Language string

const (
	Unknown Language = ""
	Russian Language = "ru"
	Uzbek   Language = "uz"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Uzbek has no lingua model. Its own Cyrillic letters identify it directly,
// and the close Turkic models stand in for it otherwise.
var uzbekLetters = []string{"ў", "қ", "ғ", "ҳ"}

// Detect returns the language of an ad, or Unknown for texts with too few
// letters to tell.
func Detect(text string) Language {
	sample := strings.ToLower(strings.TrimSpace(text))
	if sample == "" {
		return Unknown
	}

	letters, cyrillic := 0, 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letters++
			if unicode.Is(unicode.Cyrillic, r) {
				cyrillic++
			}
		}
	}
	if letters < 6 {
		return Unknown
	}
	for _, m := range uzbekLetters {
		if strings.Contains(sample, m) {
			return Uzbek
		}
	}
	if cyrillic*2 < letters {
		// Latin script ads in this market are Uzbek.
		return Uzbek
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return Russian
	}
	switch language {
	case lingua.Russian, lingua.Ukrainian, lingua.Belarusian, lingua.Bulgarian:
		return Russian
	default:
		return Uzbek
	}
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.Russian, lingua.Ukrainian, lingua.Belarusian, lingua.Bulgarian,
				lingua.Kazakh, lingua.Mongolian, lingua.Turkish, lingua.Azerbaijani,
			).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
