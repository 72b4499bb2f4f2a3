package lifecycle

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/query"
)

const (
	DefaultLoadSearchLimit    = 20
	DefaultVehicleSearchLimit = 2

	// MinPriceSamples is the smallest filtered sample stored as a statistic.
	MinPriceSamples = 15

	priceHistory        = 60 * 24 * time.Hour
	priceCounterCeiling = 200
	minSamplePrice      = 1000000
	minSampleWeight     = 4
	maxSampleWeight     = 27
)

// reversedGoods are goods whose 1 -> 2 routes are in practice posted the
// wrong way round.
var reversedGoods = []string{
	"мясо", "пиломатериал", "мдф, дсп", "дсп", "дсп-мдф", "мдф",
	"подсолнечное масло", "фанера", "тахта", "фанер",
}

type DailyReport struct {
	LimitsReset     int64
	OwnersFilled    int64
	RoutesSwapped   int64
	StatisticsSaved int
}

// Daily resets user quotas, backfills owners, fixes reversed routes and
// recomputes per-kilo price statistics.
func (m *Manager) Daily(ctx context.Context) (DailyReport, error) {
	var report DailyReport
	var err error

	if report.LimitsReset, err = m.store.ResetSearchLimits(ctx, DefaultLoadSearchLimit, DefaultVehicleSearchLimit); err != nil {
		return report, fmt.Errorf("reset search limits: %w", err)
	}
	if report.OwnersFilled, err = m.store.BackfillOwners(ctx); err != nil {
		return report, fmt.Errorf("backfill owners: %w", err)
	}
	if report.RoutesSwapped, err = m.store.SwapRoutes(ctx, query.HomeCountryID, 2, reversedGoods); err != nil {
		return report, fmt.Errorf("swap reversed routes: %w", err)
	}
	if report.StatisticsSaved, err = m.Statistics(ctx); err != nil {
		return report, err
	}

	m.logger.Info().
		Int64("limits_reset", report.LimitsReset).
		Int64("owners_filled", report.OwnersFilled).
		Int64("routes_swapped", report.RoutesSwapped).
		Int("statistics_saved", report.StatisticsSaved).
		Msg("daily maintenance done")
	return report, nil
}

// Statistics stores today's per-kilo price statistic for every popular
// route touching the restricted pair.
func (m *Manager) Statistics(ctx context.Context) (int, error) {
	now := m.now()
	since := now.Add(-priceHistory)
	routes, err := m.store.PopularRoutes(ctx, query.And(
		query.Or(
			query.Where("origin_country_id IN ?", query.RestrictedCountries),
			query.Where("destination_country_id IN ?", query.RestrictedCountries),
		),
		query.Where("origin_city_id IS NOT NULL AND destination_city_id IS NOT NULL AND created_at >= ?", since),
	), MinPriceSamples)
	if err != nil {
		return 0, fmt.Errorf("popular routes: %w", err)
	}

	day := globaltime.Local(now).Format(time.DateOnly)
	saved := 0
	for _, route := range routes {
		samples, err := m.store.PriceSamples(ctx, query.And(
			query.In("origin_city_id", m.places.ChildCities(route.OriginCityID)),
			query.In("destination_city_id", m.places.ChildCities(route.DestinationCityID)),
			query.Where("created_at >= ? AND duplication_counter < ?", since, priceCounterCeiling),
			query.Where("price IS NOT NULL AND price > ?", minSamplePrice),
			query.Where("weight IS NOT NULL AND weight > ? AND weight < ?", minSampleWeight, maxSampleWeight),
		))
		if err != nil {
			return saved, fmt.Errorf("price samples %d-%d: %w", route.OriginCityID, route.DestinationCityID, err)
		}
		stat, ok := KiloPrices(samples)
		if !ok || stat.Count < MinPriceSamples {
			continue
		}
		stat.Date = day
		stat.OriginCityID = route.OriginCityID
		stat.DestinationCityID = route.DestinationCityID
		if err := m.store.SaveKiloPrice(ctx, stat); err != nil {
			return saved, fmt.Errorf("save price statistic: %w", err)
		}
		saved++
	}
	return saved, nil
}

// KiloPrices summarizes price per kilogram after dropping IQR outliers.
func KiloPrices(samples []PriceSample) (db.KiloPriceStatistic, bool) {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Weight <= 0 {
			continue
		}
		values = append(values, round1(float64(s.Price)/(s.Weight*1000)))
	}
	if len(values) == 0 {
		return db.KiloPriceStatistic{}, false
	}
	sort.Float64s(values)

	q1, q3 := quartile(values, 0.25), quartile(values, 0.75)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	var kept []float64
	for _, v := range values {
		if v >= lo && v <= hi {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return db.KiloPriceStatistic{}, false
	}

	sum := 0.0
	for _, v := range kept {
		sum += v
	}
	return db.KiloPriceStatistic{
		Average: round2(sum / float64(len(kept))),
		Median:  round2(median(kept)),
		Max:     round2(kept[len(kept)-1]),
		Min:     round2(kept[0]),
		Count:   len(kept),
	}, true
}

// quartile interpolates linearly between the closest ranks of sorted data.
func quartile(sorted []float64, q float64) float64 {
	pos := float64(len(sorted)-1) * q
	base := int(math.Floor(pos))
	if base+1 < len(sorted) {
		return sorted[base] + (pos-float64(base))*(sorted[base+1]-sorted[base])
	}
	return sorted[base]
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
