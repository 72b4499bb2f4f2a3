package extraction

import (
	"regexp"
	"strings"
)

// truckVocabulary rewrites the many spellings of a truck type into one brand
// code word the model maps reliably. Order matters: earlier rewrites change
// what later ones see.
var truckVocabulary = []struct {
	code     string
	variants []string
}{
	{"ford", []string{
		"кичик изузи", "майда исузи", "mayda isuzi", "кичик исузу", "кичик исузи", "kichchik isuzu",
		"kichik isuzi", "kichkina isuzu", "kichkina isuzi", "kichkina izuzi", "исузи кичкина",
		"кичкина исузи", "исузу кичкина", "кичкина исузу", "5 тонналик изузу", "кичкина изузи",
		"кичкина эсузи", "kichkina esuzi", "кичкина  есузи", "маленький исузу",
	}},
	{"bmw", []string{
		"katta isuzi", "kichik isuz", "mayda isuzu", "мини фура", "kata isuzu", "katta izuzi",
		"исузи катта", "катта исузи", "катта исузу", "катта изузи", "катта эсузи", "katta esuzi",
		"katta isuzu", "kotta isuzi", "kotta izuzi", "исузи котта", "котта исузи", "котта исузу",
		"котта изузи", "котта эсузи", "kotta esuzi", "большой исузу", "kotta isuzu", "исузу катта",
		"кота эсузи", "кота исузу", "кота исузи", "катта изузу", "катта исюзи",
	}},
	{"isuzu", []string{"isuzi", "izuzi", "исузи", "изузи", "izuzu", "эсузи", "исузу", "esuzi", "usuzi", "изузу"}},
	{"chevrolet", []string{
		"tent", "chodirli", "tentli", " ten ", "temtofka", "tend", "тент", "тенд", "тентованный",
		"тентофка", "тентовка", "tentovka", "tentofka", "тентовки", "тенты", "тента", "тентов",
		"тент кк", "tent kk", "tentlar", "тентлар", "tentofkalar", "tentopka", "tentga", "tentovkalar",
		"tentofkalarga", "tentovkalarga", "tentlarga", "тентофкаларга", "тентовкаларга", "тентларга",
	}},
	{"chevrolet porsche", []string{"тент/реф", "tent/ref", "реф/тент", "ref/tent", "тентреф", "tentref", "рефтент", "reftent"}},
	{"porsche", []string{"ref", "reefer", "реф", "reflar", "рефлар", "refrejerator", "рефа", "рефов", "reflarga", "рефларга"}},
	{"tesla", []string{"faf", "fav", "фав", "faw", "faz", "фаф"}},
	{"chrysler", []string{"мега", "меге", "mega", "mege"}},
	{"ferrari", []string{"лабо", "labo", "damas", "дамас"}},
	{"mazda", []string{"камаз", "kamaz", "qamaz", "kamas"}},
	{"cadillac", []string{"площадка", "ploshadka", "plashadka", "plawatka"}},
	{"audi", []string{"шаланда", "shalanda"}},
	{"toyota", []string{"трал", "тралл", "tral", "traller", "тралы", "трала"}},
	{"volkswagen", []string{"контейнеровоз", "konteyneravoz"}},
	{"honda", []string{
		"паровоз", "parovoz", "paravoz", "паравоз", "поезд", "паровой", "паровой_поезд", "автопаровоз",
		"автопаравоз", "паравозлар", "paravozlar", "паровозы", "parvoz",
	}},
	{"subaru", []string{"chakman", "cakman", "chaqman", "чакман", "chacman", "чакмон", "шакман", "shakman", "chakmon", "shaqman"}},
	{"lamborghini", []string{"реф-18", "ref-18", "режим -18", "ref -18", "реф -18", "ref+", "ref-"}},
	{"lexus", []string{"man", "ман"}},
	{"nissan", []string{"sprinter", "sprintr", "спринтер", "спринтр"}},
	{"mitsubishi", []string{"gazel", "газел", "газель"}},
	{"bentley", []string{"avtovoz", "автовоз", "автовозы", "avtovozlar"}},
	{"suzuki", []string{
		"изотерма", "изотерм", "izoterm", "izoterma", "изотермы", "isotherm", "isoterm", "izotermalar",
		"изотермалар", "izotermiz", "izotermik", "изотермик", "изотермический",
	}},
	{"maserati", []string{"kia bongo", "киа бонго", "киа bongo", "kia бонго", "bongo", "бонго", "кияа бонго", "кия бонго", "kiya bongo"}},
}

// vocabularyEdge is what may surround a vocabulary word: string edges,
// blanks, an escaped "\n" from the YAML payload, digits or punctuation.
const vocabularyEdge = `(^|\s|\\n|[0-9.,'"!?\-:;/\[\]()])`

type vocabularyRule struct {
	pattern *regexp.Regexp
	repl    string
}

var truckVocabularyRules = func() []vocabularyRule {
	var rules []vocabularyRule
	for _, entry := range truckVocabulary {
		for _, v := range entry.variants {
			rules = append(rules, vocabularyRule{
				pattern: regexp.MustCompile(`(?i)` + vocabularyEdge + regexp.QuoteMeta(v) + strings.Replace(vocabularyEdge, "^", "$", 1)),
				repl:    "${1}" + entry.code + "${2}",
			})
		}
	}
	return rules
}()

// RewriteTruckVocabulary replaces truck type spellings with brand code words.
func RewriteTruckVocabulary(text string) string {
	for _, rule := range truckVocabularyRules {
		text = rule.pattern.ReplaceAllString(text, rule.repl)
	}
	return text
}

var smallShipmentWords = regexp.MustCompile(`(?i)догруз|лахтак|папути|paputi|laxtak|ahchaga|ахчага|axchaga|кушимча юк|dogruz|poputi|қўшимча|dagruz|qoʻshimcha|quwimca|qoshimcha`)

// MarkSmallShipments rewrites part-load ("dagruz") words to "hazardous",
// the flag word the schema asks the model to detect.
func MarkSmallShipments(text string) string {
	return smallShipmentWords.ReplaceAllString(text, "hazardous")
}

var spacedDigits = regexp.MustCompile(`\d\s?\d\s?\d\s?\d\s?\d\s?\d\s?\d\s?\d`)

// JoinSpacedDigits removes single blanks inside 8-digit runs so phone
// numbers reach the model in one piece.
func JoinSpacedDigits(text string) string {
	return spacedDigits.ReplaceAllStringFunc(text, func(run string) string {
		return strings.Map(func(r rune) rune {
			if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' {
				return -1
			}
			return r
		}, run)
	})
}

var (
	cubicWord  = regexp.MustCompile(`(?i) (куба|cuba) `)
	routeArrow = regexp.MustCompile(`(?im)([\wа-яА-ЯёЁ]+(?:дан|dan))([\s.\]+|\[\wа-яА-ЯёЁ]+)([\wа-яА-ЯёЁ]+(?:га|ga))`)
)

// MarkRouteArrow rewrites "Xdan ... Yga" as "Xdan -> ... Yga".
func MarkRouteArrow(text string) string {
	return routeArrow.ReplaceAllString(text, "${1} -> ${2}${3}")
}

func prepareLoadPayload(payload string) string {
	payload = JoinSpacedDigits(payload)
	payload = RewriteTruckVocabulary(payload)
	payload = MarkSmallShipments(payload)
	if loc := cubicWord.FindStringIndex(payload); loc != nil {
		payload = payload[:loc[0]] + "куб" + payload[loc[1]:]
	}
	return MarkRouteArrow(payload)
}

func prepareVehiclePayload(payload string) string {
	payload = JoinSpacedDigits(payload)
	payload = RewriteTruckVocabulary(payload)
	return MarkSmallShipments(payload)
}
