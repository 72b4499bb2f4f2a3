package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"horse.fit/cargoscoop/internal/textnorm"
)

// Truck types stored on ads.
const (
	TruckNotSpecified = "not_specified"
	TruckIsuzu        = "isuzu"
	TruckSmallIsuzu   = "small_isuzu"
	TruckBigIsuzu     = "big_isuzu"
	TruckReefer       = "reefer"
	TruckReeferMode   = "reefer-mode"
	TruckTented       = "tented"
	TruckLabo         = "labo"
)

var brandTruckTypes = map[string]string{
	"none":        TruckNotSpecified,
	"isuzu":       TruckIsuzu,
	"ford":        TruckSmallIsuzu,
	"bmw":         TruckBigIsuzu,
	"lexus":       "man",
	"ferrari":     TruckLabo,
	"subaru":      "chakman",
	"mazda":       "kamaz",
	"cadillac":    "flatbed",
	"audi":        "barge",
	"toyota":      "lowboy",
	"tesla":       "faw",
	"chevrolet":   TruckTented,
	"volkswagen":  "containership",
	"honda":       "locomotive",
	"chrysler":    "mega",
	"porsche":     TruckReefer,
	"lamborghini": TruckReeferMode,
	"mitsubishi":  "gazel",
	"nissan":      "sprinter",
	"bentley":     "avtovoz",
	"suzuki":      "isotherm",
	"maserati":    "kia_bongo",
}

// TruckType maps a brand code word to a truck type. A plain reefer with the
// refrigeration mode requested is a reefer-mode truck.
func TruckType(code string, refrigerated bool) string {
	t, ok := brandTruckTypes[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return TruckNotSpecified
	}
	if t == TruckReefer && refrigerated {
		return TruckReeferMode
	}
	return t
}

var paymentTypes = map[string]bool{"cash": true, "transfer": true, "by_card": true, "cash_or_by_card": true, "combo": true}

var loadingSides = map[string]string{"боковая": "side", "задняя": "rear", "верхняя": "top"}

// ValidPrice applies the denomination heuristics to an extracted fare.
// Real fares are round: above 99999 they end in 0000, from 5000 they end in
// 00 or 50, below that in 0. A fare that is part of the phone is a misread.
func ValidPrice(fare *float64, phone string) *int64 {
	if fare == nil || *fare < 10 {
		return nil
	}
	digits := strconv.FormatFloat(*fare, 'f', -1, 64)
	if phone != "" && strings.Contains(phone, digits) {
		return nil
	}
	var ok bool
	switch {
	case *fare > 99999:
		ok = strings.HasSuffix(digits, "0000")
	case *fare >= 5000:
		ok = strings.HasSuffix(digits, "00") || strings.HasSuffix(digits, "50")
	default:
		ok = strings.HasSuffix(digits, "0")
	}
	if !ok {
		return nil
	}
	price := int64(*fare)
	return &price
}

func validPrepayment(price *int64, prepayment *float64) *int64 {
	if prepayment == nil {
		return nil
	}
	if price != nil && *price > 1_000_000 && *prepayment < 10000 {
		return nil
	}
	if *prepayment <= 0 {
		return nil
	}
	v := int64(*prepayment)
	return &v
}

var readyDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006-01", "2006"}

// ReadyDate parses an extracted ready date, moves it into the current year
// and drops it when it is already past.
func ReadyDate(raw *string, now time.Time) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	var parsed time.Time
	var err error
	for _, layout := range readyDateLayouts {
		if parsed, err = time.Parse(layout, strings.TrimSpace(*raw)); err == nil {
			break
		}
	}
	if err != nil {
		return nil
	}
	now = now.UTC()
	parsed = parsed.UTC()
	d := time.Date(now.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return nil
	}
	return &d
}

var (
	brandWords          = regexp.MustCompile(`(?i)\b(?:chevrolet|porsche|tesla|chrysler|bmw|ford|isuzu|ferrari|mazda|lexus|lamborghini|audi|toyota|volkswagen|honda|cadillac|subaru|none|mitsubishi|nissan|bentley|suzuki|maserati)\b`)
	multiBlank          = regexp.MustCompile(`\s{2,}`)
	goodsPunctuation    = regexp.MustCompile(`[!?:;]`)
	refrigeratedGoods   = regexp.MustCompile(`(?i)мясо|кури`)
	destinationIsOrigin = regexp.MustCompile(`(?:dan|дан)$`)
	nonLatin            = regexp.MustCompile(`[^a-zA-Z]+`)
)

func goodsName(load string) string {
	load = brandWords.ReplaceAllString(load, "")
	load = multiBlank.ReplaceAllString(load, " ")
	load = goodsPunctuation.ReplaceAllString(load, "")
	return strings.ToLower(strings.TrimSpace(load))
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func boolean(p *bool) bool { return p != nil && *p }

func positive(p *float64) *float64 {
	if p == nil || *p == 0 {
		return nil
	}
	v := *p
	return &v
}

func (r rawLoad) toLoad(phone string, now time.Time) Load {
	l := Load{
		Origin:      str(r.Origin),
		Destination: str(r.Destination),
		Phone:       phone,
		Fare:        r.Fare,
	}

	l.Price = ValidPrice(r.Fare, phone)
	if l.Price != nil && r.PrepaymentAmount != nil && float64(*l.Price) == *r.PrepaymentAmount {
		l.Price = nil
	}

	switch pt := str(r.PaymentType); {
	case pt == "none":
		l.PaymentType = TruckNotSpecified
	case paymentTypes[pt]:
		l.PaymentType = pt
	}

	l.ReadyDate = ReadyDate(r.LoadReadyDate, now)
	if c := str(r.CustomsClearanceLocation); c != "none" {
		l.CustomsLocation = c
	}

	goods := str(r.Load)
	typeFromGoods := TruckType(goods, false)
	l.Refrigerated = boolean(r.HasRefrigeratorMode) || (goods != "" && refrigeratedGoods.MatchString(goods))
	if r.TruckType != nil {
		l.CargoType = TruckType(at(r.TruckType, 0), l.Refrigerated)
		l.CargoType2 = TruckType(at(r.TruckType, 1), l.Refrigerated)
	} else {
		l.CargoType = typeFromGoods
		l.CargoType2 = typeFromGoods
	}

	if r.RequiredVehicleCount != nil && *r.RequiredVehicleCount < 40 {
		n := int(*r.RequiredVehicleCount)
		l.RequiredTrucks = &n
	}
	if goods != "" && utf8.RuneCountInString(goods) < 100 && typeFromGoods == TruckNotSpecified {
		l.Goods = goodsName(goods)
	}
	if r.Weight != nil && *r.Weight > 0 && *r.Weight < 80 {
		w := *r.Weight
		l.Weight = &w
	}
	switch {
	case l.Weight != nil && *l.Weight == 120:
		v := 120.0
		l.Volume = &v
	case r.Volume != nil && *r.Volume >= 30 && *r.Volume <= 400:
		v := *r.Volume
		l.Volume = &v
	}

	if destinationIsOrigin.MatchString(l.Destination) {
		l.Origin, l.Destination = l.Destination, l.Origin
	}
	if (l.Destination == "" || l.Destination == "none") && l.Origin != "" {
		parts := nonLatin.Split(l.Origin, -1)
		l.Origin = parts[0]
		l.Destination = ""
		if len(parts) > 1 {
			l.Destination = parts[1]
		}
	}

	l.Hazardous = boolean(r.IsLoadHazardous)
	if l.Weight != nil {
		l.Dagruz = *l.Weight < 1 || (l.Hazardous && *l.Weight < 2)
	} else {
		l.Dagruz = l.Hazardous
	}

	l.LoadingSide = loadingSides[str(r.LoadingSide)]
	l.Prepayment = validPrepayment(l.Price, r.PrepaymentAmount)
	l.HasPrepayment = boolean(r.HasPrepayment) || l.Prepayment != nil
	return l
}

func (r rawVehicle) toVehicle(phone string) Vehicle {
	v := Vehicle{
		Origin:    str(r.Origin),
		CargoType: TruckType(at(r.TruckType, 0), false),
		Phone:     phone,
		Weight:    positive(r.CargoWeight),
		Volume:    positive(r.CargoVolume),
		Hazardous: boolean(r.IsLoadHazardous),
	}
	v.CargoType2 = TruckType(at(r.TruckType, 1), false)
	for _, d := range r.Destinations {
		if d = strings.TrimSpace(d); d != "" {
			v.Destinations = append(v.Destinations, d)
		}
	}
	if r.AvailableVehicleCount != nil && *r.AvailableVehicleCount > 0 {
		n := int(*r.AvailableVehicleCount)
		v.AvailableTrucks = &n
	}
	v.Dagruz = v.Hazardous || (v.Weight != nil && *v.Weight < 0.6)
	return v
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

// filled reports whether a load carries any detail beyond its route.
func (l Load) filled() bool {
	filledText := func(s string) bool { return s != "" && s != "none" && s != TruckNotSpecified && s != "0" }
	filledNumber := func(p *float64) bool { return p != nil && *p != 0 }
	return filledText(l.CargoType) || filledText(l.CargoType2) || filledText(l.PaymentType) ||
		l.ReadyDate != nil || filledNumber(l.Weight) || filledNumber(l.Volume) || filledNumber(l.Fare) ||
		(l.Price != nil && *l.Price != 0) || filledText(l.LoadingSide) || filledText(l.Goods) ||
		filledText(l.CustomsLocation)
}

func cleanPhone(p *string) string {
	if p == nil {
		return ""
	}
	return textnorm.CleanupPhone(*p)
}
