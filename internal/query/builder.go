package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/places"
)

// HomeCountryID and PartnerCountryID form the restricted country pair whose
// domestic traffic repeats far more often than cross-border routes.
const (
	HomeCountryID    int64 = 1
	PartnerCountryID int64 = 8
)

// RestrictedCountries is the country pair with the lower duplication ceiling.
var RestrictedCountries = []int64{HomeCountryID, PartnerCountryID}

const (
	RecencyWindow = 7 * 24 * time.Hour

	ExpirationCeiling            = 3
	ViewCeiling                  = 28
	RestrictedDuplicationCeiling = 245
	DuplicationCeiling           = 650
)

// LoadOrder sorts newest first, then shortest route, highest price and
// ads with a phone.
const LoadOrder = "created_at DESC, distance ASC, price DESC, CASE WHEN phone IS NULL THEN 0 ELSE 1 END DESC"

const VehicleOrder = "published_at DESC, id DESC"

// Location is a device position used instead of a typed origin.
type Location struct {
	Lat float64
	Lng float64
}

// LoadFilter is a user's load search.
type LoadFilter struct {
	// OwnerID selects the user's own ads and ignores every place filter.
	OwnerID *int64

	OriginCityID         *int64
	OriginCountryID      *int64
	DestinationCityID    *int64
	DestinationCountryID *int64

	Location        *Location
	DestinationName string

	CargoType string
	Dagruz    bool

	// MarkedExpired are ads the user reported as gone.
	MarkedExpired []int64

	Start int
}

type VehicleFilter struct {
	OwnerID         *int64
	OriginCountryID *int64
	OriginCityID    *int64
	CargoType       string
	Start           int
}

// Places is the reference hierarchy the builder expands filters with.
type Places interface {
	ChildCities(ids ...int64) []int64
	ChildCountries(ids ...int64) []int64
	Resolve(text string, strict bool) (places.Match, bool)
}

type Builder struct {
	places Places
	geo    places.GeoIndex
	now    func() time.Time
}

type Option func(*Builder)

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(p Places, geo places.GeoIndex, opts ...Option) *Builder {
	b := &Builder{places: p, geo: geo, now: globaltime.UTC}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Live is the base predicate of every load search.
func (b *Builder) Live() Predicate {
	return Where(
		"is_archived = ? AND is_deleted = ? AND expiration_button_counter < ? AND open_message_counter < ? AND created_at > ?",
		false, false, ExpirationCeiling, ViewCeiling, b.now().Add(-RecencyWindow),
	)
}

// DuplicationCeilings drops ads reposted past the ceiling of their country
// pair.
func DuplicationCeilings() Predicate {
	return Or(
		Where("duplication_counter < ? AND destination_country_id IN ? AND origin_country_id IN ?",
			RestrictedDuplicationCeiling, RestrictedCountries, RestrictedCountries),
		Where("duplication_counter < ? AND (destination_country_id <> ? OR origin_country_id <> ?)",
			DuplicationCeiling, HomeCountryID, HomeCountryID),
	)
}

// Loads builds the plan of a load search.
func (b *Builder) Loads(ctx context.Context, f LoadFilter) (Plan, error) {
	parts := []Predicate{b.Live()}

	if f.OwnerID != nil {
		parts = append(parts, Where("owner_id = ?", *f.OwnerID))
	} else {
		if len(f.MarkedExpired) > 0 {
			parts = append(parts, Where("id NOT IN ?", f.MarkedExpired))
		}
		route, err := b.loadPlaces(ctx, f)
		if err != nil {
			return Plan{}, err
		}
		parts = append(parts, route)
	}

	parts = append(parts, DuplicationCeilings())
	if f.CargoType != "" {
		parts = append(parts, CargoType(f.CargoType), Where("is_dagruz = ?", false))
	}
	if f.Dagruz {
		parts = append(parts, Where("is_dagruz = ?", true))
	}

	limit, offset := Page(f.Start)
	return Plan{Where: And(parts...), Order: LoadOrder, Limit: limit, Offset: offset}, nil
}

func (b *Builder) loadPlaces(ctx context.Context, f LoadFilter) (Predicate, error) {
	if f.Location != nil {
		return b.nearby(ctx, f)
	}

	var parts []Predicate
	if f.OriginCountryID != nil {
		parts = append(parts, In("origin_country_id", b.places.ChildCountries(*f.OriginCountryID)))
	}
	if f.DestinationCountryID != nil {
		parts = append(parts, In("destination_country_id", b.places.ChildCountries(*f.DestinationCountryID)))
	} else {
		parts = append(parts, Where("destination_country_id IS NOT NULL"))
	}
	if f.OriginCityID != nil {
		parts = append(parts, In("origin_city_id", b.places.ChildCities(*f.OriginCityID)))
	}
	if f.DestinationCityID != nil {
		parts = append(parts, In("destination_city_id", b.places.ChildCities(*f.DestinationCityID)))
	}
	return And(parts...), nil
}

// nearby replaces origin matching with the cities around the device and
// resolves the destination by name. Without any nearby city the search is
// not narrowed.
func (b *Builder) nearby(ctx context.Context, f LoadFilter) (Predicate, error) {
	if b.geo == nil {
		return Predicate{}, fmt.Errorf("location search without a geo index")
	}
	ids, err := b.geo.Nearby(ctx, f.Location.Lat, f.Location.Lng, places.NearbyRadiusMeters, places.NearbyLimit)
	if err != nil {
		return Predicate{}, fmt.Errorf("nearby cities: %w", err)
	}
	if len(ids) == 0 {
		return Predicate{}, nil
	}
	parts := []Predicate{Where("origin_city_id IN ?", ids)}
	name := strings.TrimSpace(f.DestinationName)
	if name == "" {
		return And(parts...), nil
	}
	m, ok := b.places.Resolve(name, false)
	if !ok {
		return And(parts...), nil
	}
	if m.Kind == places.KindCity {
		parts = append(parts,
			Where("destination_city_id IN ?", b.places.ChildCities(m.ID)),
			Where("destination_country_id = ?", m.CountryOf()),
		)
	} else {
		parts = append(parts, Where("destination_country_id = ?", m.ID))
	}
	return And(parts...), nil
}

// Vehicles builds the plan of a vehicle search.
func (b *Builder) Vehicles(f VehicleFilter) Plan {
	parts := []Predicate{Where("is_archived = ? AND is_deleted = ?", false, false)}
	if f.OwnerID != nil {
		parts = append(parts, Where("owner_id = ?", *f.OwnerID))
	} else {
		if f.OriginCountryID != nil {
			parts = append(parts, In("origin_country_id", b.places.ChildCountries(*f.OriginCountryID)))
		}
		if f.OriginCityID != nil {
			parts = append(parts, In("origin_city_id", b.places.ChildCities(*f.OriginCityID)))
		}
	}
	// Vehicles declare their own type; there is no weight-class expansion.
	if f.CargoType != "" {
		parts = append(parts, typeIs(f.CargoType))
	}
	limit, offset := Page(f.Start)
	return Plan{Where: And(parts...), Order: VehicleOrder, Limit: limit, Offset: offset}
}
