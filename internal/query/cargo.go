package query

import "horse.fit/cargoscoop/internal/extraction"

const ns = extraction.TruckNotSpecified

func typeIs(t string) Predicate {
	return Or(Where("cargo_type = ?", t), Where("cargo_type2 = ?", t))
}

func unspecified(extra Predicate) Predicate {
	return And(Where("cargo_type = ? AND cargo_type2 = ?", ns, ns), extra)
}

func weightBetween(lo, hi float64) Predicate {
	return Where("weight >= ? AND weight < ?", lo, hi)
}

// sizedIsuzu matches a plain isuzu record whose weight falls in the class
// range or is unknown.
func sizedIsuzu(lo, hi float64) []Predicate {
	inClass := Or(weightBetween(lo, hi), Where("weight IS NULL"))
	return []Predicate{
		unspecified(weightBetween(lo, hi)),
		And(Where("cargo_type = ?", extraction.TruckIsuzu), inClass),
		And(Where("cargo_type2 = ?", extraction.TruckIsuzu), inClass),
	}
}

// CargoType expands a selected truck type into every stored combination
// that can carry it.
func CargoType(t string) Predicate {
	if t == "" {
		return Predicate{}
	}
	set := []Predicate{typeIs(t)}
	switch t {
	case extraction.TruckIsuzu:
		set = append(set, typeIs(extraction.TruckSmallIsuzu), typeIs(extraction.TruckBigIsuzu))
	case extraction.TruckSmallIsuzu:
		set = append(set, sizedIsuzu(3, 6)...)
	case extraction.TruckBigIsuzu:
		set = append(set, sizedIsuzu(10, 17)...)
	case extraction.TruckReefer:
		set = append(set, typeIs(extraction.TruckReeferMode))
	case extraction.TruckTented:
		set = append(set, unspecified(Where("weight >= ?", 20)))
	case extraction.TruckLabo:
		set = append(set, unspecified(And(
			Where("origin_country_id = ? AND destination_country_id = ?", HomeCountryID, HomeCountryID),
			Where("weight < ?", 1),
		)))
	}
	return Or(set...)
}
