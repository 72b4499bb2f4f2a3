package textnorm

import (
	"regexp"
	"unicode/utf8"
)

type Kind string

const (
	KindLoad    Kind = "load"
	KindVehicle Kind = "vehicle"
)

const (
	truckWordsLatin = `fura|tent|isuzi|isuzu|chakman|cakman|Gazell|mowina|moshin|moshina|benzavoz|mashinasi|izoterma|tentofkalar|labo|damas|paravoz|ref`
	truckWordsRu    = `фура|фуры|исузи|тент|тенты|рефы|фурамиз|чакман|тентофкы|тентофка|мошина|газель|лабо|реф|тентовка|машина|изотерма`
)

// driverOfferPatterns recognize "have a free truck, need a load" phrasing.
var driverOfferPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(` + truckWordsLatin + `) kerak (bòsa|bo'lsa|bosa|bolsa)`),
	regexp.MustCompile(`(?i)(labo|damas) hizmati`),
	regexp.MustCompile(`(?i)возьмём`),
	regexp.MustCompile(`(?i)муравей`),
	regexp.MustCompile(`(?i)yuk (boʻsa|bo'lsa|bolsa|bòlsa)`),
	regexp.MustCompile(`(?i)kimda yuk (boʻsa|bo'lsa|bolsa|bor|bòlsa)`),
	regexp.MustCompile(`(?i)кимда (йук|юк) (бўса|бўлса|болса|бор)`),
	regexp.MustCompile(`(?i)юналишида юрамиз`),
	regexp.MustCompile(`(?i) булса оламиз\s+`),
	regexp.MustCompile(`(?i)освободится (` + truckWordsRu + `)`),
	regexp.MustCompile(`(?i)есть свобод(ный|ная|ные) (` + truckWordsRu + `)`),
	regexp.MustCompile(`(?i)(предлагайте|предложите|нужен|ищу) (груз)`),
	regexp.MustCompile(`(?i)yuk (kere|kerak|kk|boʻsa|bo'lsa|bormi|bolsa|k.k)[^a-zA-Z\s]?`),
	regexp.MustCompile(`(?i)(fura|tent|isuzi|isuzu|chakman|cakman|Gazell|mowina|benzavoz|moshin|mashina|moshina|mashinasi|izoterma|tentofkalar|labo|damas|paravoz|ref) bor([^a-zA-Z]|$)`),
	regexp.MustCompile(`(?i)[\s^a-zA-Z0-9]?(фура|исузи|тент|фурамиз|тентофка|чакман|мошина|газель|изотерма|лабо|реф|мошин|тентовка|машина|исузу) бор([^a-zA-Zа-яА-Я]|$)`),
	regexp.MustCompile(`(?i)[\s^a-zA-Z0-9]?(юк|йук|йуклар|юук|юклар)[\s^a-zA-Z0-9]?(керак|кк|кере|таклиф килинглар|оламиз|болса|булса|бу́лса|буса|боса|борми|оламиз|оламз)`),
	regexp.MustCompile(`(?i)[\s^a-zA-Z0-9]?(yuk|yuuk|yuklar|xizmatla)[\s^a-zA-Z0-9](kerak|kk|kere|keray|taklif qilinglar|olamiz|bulsa|bûlsa|busa|bosa|bo'ls|bo's)`),
}

// Classify routes a cleaned message to the vehicle stream when it reads as
// a driver offering a truck, and to the load stream otherwise.
func Classify(text string) Kind {
	for _, p := range driverOfferPatterns {
		if p.MatchString(text) {
			return KindVehicle
		}
	}
	return KindLoad
}

var closingPattern = regexp.MustCompile(`(?i)yopildi|епилди|йопилди`)

// IsClosing reports short "closed"/"sold" notices.
func IsClosing(text string) bool {
	return utf8.RuneCountInString(text) < 25 && closingPattern.MatchString(text)
}
