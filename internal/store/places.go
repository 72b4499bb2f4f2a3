package store

import (
	"context"
	"fmt"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/places"
)

// ReferencePlaces loads the city, country and goods tables.
func (s *Store) ReferencePlaces(ctx context.Context) ([]places.City, []places.Country, []places.Good, error) {
	var cityRows []db.City
	if err := s.gorm(ctx).Order("id").Find(&cityRows).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load cities: %w", err)
	}
	var countryRows []db.Country
	if err := s.gorm(ctx).Order("id").Find(&countryRows).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load countries: %w", err)
	}
	var goodRows []db.Good
	if err := s.gorm(ctx).Order("id").Find(&goodRows).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load goods: %w", err)
	}

	cities := make([]places.City, len(cityRows))
	for i, c := range cityRows {
		cities[i] = places.City{ID: c.ID, Name: c.Name, Variants: c.Variants, CountryID: c.CountryID, ParentID: c.ParentID, Lat: c.Lat, Lng: c.Lng}
	}
	countries := make([]places.Country, len(countryRows))
	for i, c := range countryRows {
		countries[i] = places.Country{ID: c.ID, Name: c.Name, Variants: c.Variants, ParentID: c.ParentID}
	}
	goods := make([]places.Good, len(goodRows))
	for i, g := range goodRows {
		goods[i] = places.Good{ID: g.ID, Name: g.Name, Variants: g.Variants}
	}
	return cities, countries, goods, nil
}

// LoadCatalog builds the in-memory place resolver from the reference tables.
func (s *Store) LoadCatalog(ctx context.Context, opts ...places.Option) (*places.Catalog, error) {
	cities, countries, goods, err := s.ReferencePlaces(ctx)
	if err != nil {
		return nil, err
	}
	return places.NewCatalog(cities, countries, goods, opts...), nil
}
