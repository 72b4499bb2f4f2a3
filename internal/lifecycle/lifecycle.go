// Package lifecycle moves stored ads forward through live, archived and
// deleted. Nothing here ever brings a deleted ad back.
package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/query"
	"horse.fit/cargoscoop/internal/telegram"
)

const (
	KindLoad    = "load"
	KindVehicle = "vehicle"
)

// Archived is an ad the sweep just archived with the number of user marks
// (expired for loads, invalid for vehicles) it carried.
type Archived struct {
	ID    int64
	Marks int
}

// Route is a city pair worth keeping price statistics for.
type Route struct {
	OriginCityID      int64
	DestinationCityID int64
}

type PriceSample struct {
	Price  int64
	Weight float64
}

// Store is the persistence the lifecycle jobs need.
type Store interface {
	RecheckLoads(ctx context.Context, channel string, since time.Time, counterBelow, limit int) ([]db.Load, error)
	RecheckVehicles(ctx context.Context, channel string, since time.Time, limit int) ([]db.Vehicle, error)
	RefreshLoads(ctx context.Context, ids []int64) error
	RefreshVehicles(ctx context.Context, ids []int64) error
	RetireLoads(ctx context.Context, ids []int64) error
	RetireVehicles(ctx context.Context, ids []int64) error

	ArchiveLoads(ctx context.Context, where query.Predicate) ([]Archived, error)
	ArchiveVehicles(ctx context.Context, where query.Predicate) ([]Archived, error)
	PruneMarks(ctx context.Context, kind string, ids []int64) (int64, error)
	RemoveDuplicateLoads(ctx context.Context) (int64, error)

	ResetSearchLimits(ctx context.Context, loads, vehicles int) (int64, error)
	BackfillOwners(ctx context.Context) (int64, error)
	SwapRoutes(ctx context.Context, fromCountryID, toCountryID int64, goodsWords []string) (int64, error)
	PopularRoutes(ctx context.Context, where query.Predicate, minLoads int) ([]Route, error)
	PriceSamples(ctx context.Context, where query.Predicate) ([]PriceSample, error)
	SaveKiloPrice(ctx context.Context, stat db.KiloPriceStatistic) error
}

// MessageSource fetches channel messages by id. Messages missing from the
// result were deleted upstream.
type MessageSource interface {
	MessagesByID(ctx context.Context, channel string, ids []int64) ([]telegram.Message, error)
}

// Observer is told how many ads each rule moved.
type Observer interface {
	ObserveArchived(kind, reason string, n int)
}

type Manager struct {
	store    Store
	places   Hierarchy
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

// Hierarchy expands a city into its descendants for route statistics.
type Hierarchy interface {
	ChildCities(ids ...int64) []int64
}

type Option func(*Manager)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store Store, places Hierarchy, opts ...Option) *Manager {
	m := &Manager{store: store, places: places, logger: zerolog.Nop(), now: globaltime.UTC}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) observe(kind, reason string, n int) {
	if m.observer != nil && n > 0 {
		m.observer.ObserveArchived(kind, reason, n)
	}
}
