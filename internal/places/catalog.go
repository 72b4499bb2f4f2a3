package places

import (
	"sort"
	"strings"
)

const (
	// DefaultThreshold is the minimum trigram similarity for a place match.
	DefaultThreshold = 0.31
	// GoodsThreshold and GoodsMaxDistance bound goods-name matches.
	GoodsThreshold   = 0.4
	GoodsMaxDistance = 7
)

type Kind string

const (
	KindCity    Kind = "city"
	KindCountry Kind = "country"
)

type City struct {
	ID        int64
	Name      string
	Variants  []string
	CountryID int64
	ParentID  *int64
	Lat       *float64
	Lng       *float64
}

type Country struct {
	ID       int64
	Name     string
	Variants []string
	ParentID *int64
}

type Good struct {
	ID       int64
	Name     string
	Variants []string
}

// Match is one resolved place.
type Match struct {
	ID         int64
	Kind       Kind
	Name       string
	Variant    string
	CountryID  *int64
	ParentID   *int64
	Similarity float64
	Distance   int
}

// CountryOf returns the country id a match belongs to.
func (m Match) CountryOf() int64 {
	if m.Kind == KindCountry || m.CountryID == nil {
		return m.ID
	}
	return *m.CountryID
}

type variant struct {
	ownerID int64
	kind    Kind
	folded  string
	tokens  int
	grams   trigramSet
}

// Catalog is the read-only reference set of places and goods.
type Catalog struct {
	threshold float64

	cities    map[int64]City
	countries map[int64]Country
	goods     map[int64]Good

	placeVariants []variant
	goodVariants  []variant

	cityChildren    map[int64][]int64
	countryChildren map[int64][]int64
}

type Option func(*Catalog)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(c *Catalog) {
		if threshold > 0 && threshold < 1 {
			c.threshold = threshold
		}
	}
}

func NewCatalog(cities []City, countries []Country, goods []Good, opts ...Option) *Catalog {
	c := &Catalog{
		threshold:       DefaultThreshold,
		cities:          make(map[int64]City, len(cities)),
		countries:       make(map[int64]Country, len(countries)),
		goods:           make(map[int64]Good, len(goods)),
		cityChildren:    map[int64][]int64{},
		countryChildren: map[int64][]int64{},
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, city := range cities {
		c.cities[city.ID] = city
		if city.ParentID != nil {
			c.cityChildren[*city.ParentID] = append(c.cityChildren[*city.ParentID], city.ID)
		}
		c.placeVariants = appendVariants(c.placeVariants, city.ID, KindCity, city.Name, city.Variants)
	}
	for _, country := range countries {
		c.countries[country.ID] = country
		if country.ParentID != nil {
			c.countryChildren[*country.ParentID] = append(c.countryChildren[*country.ParentID], country.ID)
		}
		c.placeVariants = appendVariants(c.placeVariants, country.ID, KindCountry, country.Name, country.Variants)
	}
	for _, good := range goods {
		c.goods[good.ID] = good
		c.goodVariants = appendVariants(c.goodVariants, good.ID, "", good.Name, good.Variants)
	}
	return c
}

func appendVariants(dst []variant, id int64, kind Kind, name string, names []string) []variant {
	seen := map[string]struct{}{}
	for _, raw := range append([]string{name}, names...) {
		folded := Fold(raw)
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		dst = append(dst, variant{
			ownerID: id,
			kind:    kind,
			folded:  folded,
			tokens:  tokenCount(folded),
			grams:   trigrams(folded),
		})
	}
	return dst
}

func (c *Catalog) City(id int64) (City, bool) {
	city, ok := c.cities[id]
	return city, ok
}

func (c *Catalog) Country(id int64) (Country, bool) {
	country, ok := c.countries[id]
	return country, ok
}

// Cities returns every city in the catalog, ordered by id.
func (c *Catalog) Cities() []City {
	out := make([]City, 0, len(c.cities))
	for _, city := range c.cities {
		out = append(out, city)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve returns the best city or country for text. In strict mode the
// best match is rejected when its variant has a different number of words
// than text.
func (c *Catalog) Resolve(text string, strict bool) (Match, bool) {
	q := Fold(text)
	if q == "" {
		return Match{}, false
	}
	grams := trigrams(q)

	var best Match
	bestTokens := 0
	found := false
	for _, v := range c.placeVariants {
		sim := grams.similarity(v.grams)
		if sim <= c.threshold {
			continue
		}
		candidate := c.placeMatch(v, sim, distance(q, v.folded))
		if !found || better(candidate, best) {
			best = candidate
			bestTokens = v.tokens
			found = true
		}
	}
	if found && strict && bestTokens != tokenCount(q) {
		return Match{}, false
	}
	return best, found
}

// better orders by similarity desc, edit distance asc, then city before
// country and lower id for a stable pick.
func better(a, b Match) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.Kind != b.Kind {
		return a.Kind == KindCity
	}
	return a.ID < b.ID
}

func (c *Catalog) placeMatch(v variant, sim float64, dist int) Match {
	m := Match{ID: v.ownerID, Kind: v.kind, Variant: v.folded, Similarity: sim, Distance: dist}
	switch v.kind {
	case KindCity:
		city := c.cities[v.ownerID]
		countryID := city.CountryID
		m.Name = city.Name
		m.CountryID = &countryID
		m.ParentID = city.ParentID
	case KindCountry:
		m.Name = c.countries[v.ownerID].Name
	}
	return m
}

// ResolveLongest walks word prefixes of text from the longest to the
// shortest and keeps the most similar strict match.
func (c *Catalog) ResolveLongest(text string) (Match, bool) {
	words := strings.Fields(text)
	var best Match
	found := false
	for n := len(words); n >= 1; n-- {
		m, ok := c.Resolve(strings.Join(words[:n], " "), true)
		if !ok {
			continue
		}
		if !found || m.Similarity > best.Similarity {
			best = m
			found = true
		}
	}
	return best, found
}

// MatchGoods returns the reference good closest to text.
func (c *Catalog) MatchGoods(text string) (Good, bool) {
	q := Fold(text)
	if q == "" {
		return Good{}, false
	}
	grams := trigrams(q)
	var (
		bestID   int64
		bestSim  float64
		bestDist int
		found    bool
	)
	for _, v := range c.goodVariants {
		sim := grams.similarity(v.grams)
		if sim <= GoodsThreshold {
			continue
		}
		dist := distance(q, v.folded)
		if dist >= GoodsMaxDistance {
			continue
		}
		if !found || sim > bestSim || (sim == bestSim && dist < bestDist) {
			bestID, bestSim, bestDist, found = v.ownerID, sim, dist, true
		}
	}
	if !found {
		return Good{}, false
	}
	return c.goods[bestID], true
}

// ChildCities returns ids plus every descendant city id.
func (c *Catalog) ChildCities(ids ...int64) []int64 {
	return expand(ids, c.cityChildren)
}

// ChildCountries returns ids plus their direct and nested child countries.
func (c *Catalog) ChildCountries(ids ...int64) []int64 {
	return expand(ids, c.countryChildren)
}

func expand(ids []int64, children map[int64][]int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := map[int64]struct{}{}
	queue := append([]int64(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		queue = append(queue, children[id]...)
	}
	return out
}
