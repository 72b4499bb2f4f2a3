package places

import (
	"regexp"
	"sort"
	"strings"
)

var (
	originSuffix      = regexp.MustCompile(`(?i)(дан|dan)$`)
	destinationSuffix = regexp.MustCompile(`(?i)(ga|га)$`)
	splitNoise        = regexp.MustCompile(`(?i)(\)|(^|\s)из(\s|$))`)
	splitSeparators   = regexp.MustCompile(`[ ,(]`)
)

// maxSplitParts bounds how many fragments of a place string are resolved
// one by one. Longer strings are descriptions, not place lists.
const maxSplitParts = 5

type Side int

const (
	SideOrigin Side = iota
	SideDestination
)

// RouteMatch holds the resolved ids of both route ends. City ids are nil
// when only a country matched.
type RouteMatch struct {
	Origin      *Match
	Destination *Match

	OriginCityID         *int64
	OriginCountryID      *int64
	DestinationCityID    *int64
	DestinationCountryID *int64
}

// Complete reports whether the origin city and some destination place are known.
func (r RouteMatch) Complete() bool {
	return r.OriginCityID != nil && (r.DestinationCityID != nil || r.DestinationCountryID != nil)
}

func (c *Catalog) ResolveRoute(origin, destination string) RouteMatch {
	var out RouteMatch
	if m, ok := c.ResolveSide(origin, SideOrigin); ok {
		out.Origin = &m
		out.OriginCityID, out.OriginCountryID = ids(m)
	}
	if m, ok := c.ResolveSide(destination, SideDestination); ok {
		out.Destination = &m
		out.DestinationCityID, out.DestinationCountryID = ids(m)
	}
	return out
}

func ids(m Match) (cityID, countryID *int64) {
	country := m.CountryOf()
	if m.Kind == KindCity {
		city := m.ID
		return &city, &country
	}
	return nil, &country
}

// ResolveSide resolves one route end. The whole string and each of its
// fragments are tried; parent cities of other matched cities are dropped so
// "region, city" collapses onto the city.
func (c *Catalog) ResolveSide(text string, side Side) (Match, bool) {
	text = strings.TrimSpace(text)
	switch side {
	case SideOrigin:
		text = originSuffix.ReplaceAllString(text, "")
	case SideDestination:
		text = destinationSuffix.ReplaceAllString(text, "")
	}
	if text == "" {
		return Match{}, false
	}

	whole, wholeOK := c.Resolve(text, false)

	parts := splitSeparators.Split(splitNoise.ReplaceAllString(text, " "), -1)
	if len(parts) >= maxSplitParts {
		if wholeOK {
			return whole, true
		}
		return c.ResolveLongest(text)
	}

	var found []Match
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, "через") {
			continue
		}
		if m, ok := c.Resolve(part, false); ok {
			found = append(found, m)
		}
	}
	if wholeOK {
		found = append(found, whole)
	}
	if len(found) == 0 {
		return c.ResolveLongest(text)
	}

	kept := found[:0:0]
	for _, m := range found {
		if m.Kind == KindCity && isParentOfAny(m.ID, found) {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return Match{}, false
	}
	sort.SliceStable(kept, func(i, j int) bool { return preferred(kept[i], kept[j]) })
	return kept[0], true
}

func isParentOfAny(id int64, matches []Match) bool {
	for _, m := range matches {
		if m.Kind == KindCity && m.ParentID != nil && *m.ParentID == id {
			return true
		}
	}
	return false
}

// preferred ranks a city with a parent first, then any city, then countries.
func preferred(a, b Match) bool {
	aParent, bParent := a.ParentID != nil, b.ParentID != nil
	if aParent && bParent {
		return a.Kind == KindCity && b.Kind != KindCity
	}
	if aParent != bParent {
		return aParent
	}
	return a.Kind == KindCity && b.Kind != KindCity
}
