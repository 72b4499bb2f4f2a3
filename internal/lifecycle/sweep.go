package lifecycle

import (
	"context"
	"fmt"
	"time"

	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/query"
)

// Rule archives the live ads matching Where.
type Rule struct {
	Name  string
	Where query.Predicate
}

func bothRestricted() query.Predicate {
	return query.Where("origin_country_id IN ? AND destination_country_id IN ?",
		query.RestrictedCountries, query.RestrictedCountries)
}

// LoadRules are the hourly archival rules for loads at now.
func LoadRules(now time.Time) []Rule {
	return []Rule{
		{"duplication", query.Where("duplication_counter > ?", query.DuplicationCeiling)},
		{"restricted_duplication", query.And(
			query.Where("duplication_counter > ?", query.RestrictedDuplicationCeiling),
			bothRestricted(),
		)},
		{"restricted_age", query.And(
			bothRestricted(),
			query.Where("created_at < ?", globaltime.DaysAgo(now, 4.5)),
		)},
		{"ready_date", query.Where("load_ready_date < ?", globaltime.DaysAgo(now, 1.5))},
		{"age", query.Where("created_at < ?", globaltime.DaysAgo(now, 6))},
		{"published", query.Where("published_at < ?", globaltime.DaysAgo(now, 3))},
		{"expired_marks", query.Where("expiration_button_counter > ? AND open_message_counter > ?", 3, 6)},
		{"expired_views", query.Where("expiration_button_counter > ? AND open_message_counter > ?", 2, 22)},
	}
}

// VehicleRules are the hourly archival rules for vehicles at now.
func VehicleRules(now time.Time) []Rule {
	return []Rule{
		{"duplication", query.Where("duplication_counter > ?", 200)},
		{"age", query.Where("created_at < ?", globaltime.DaysAgo(now, 4))},
		{"published", query.Where("published_at <= ?", globaltime.DaysAgo(now, 2.8))},
		{"invalid_marks", query.Where("invalid_button_counter > ?", 3)},
	}
}

// SweepReport counts what the hourly sweep changed.
type SweepReport struct {
	LoadsArchived     int
	VehiclesArchived  int
	MarksPruned       int64
	DuplicatesRemoved int64
}

// Hourly archives stale and overexposed ads, drops user marks pointing at
// them, and retires repeated live loads.
func (m *Manager) Hourly(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := m.now()

	loads, err := m.archive(ctx, KindLoad, LoadRules(now), m.store.ArchiveLoads)
	if err != nil {
		return report, err
	}
	report.LoadsArchived = len(loads)
	n, err := m.store.PruneMarks(ctx, KindLoad, marked(loads))
	if err != nil {
		return report, fmt.Errorf("prune expired marks: %w", err)
	}
	report.MarksPruned += n

	vehicles, err := m.archive(ctx, KindVehicle, VehicleRules(now), m.store.ArchiveVehicles)
	if err != nil {
		return report, err
	}
	report.VehiclesArchived = len(vehicles)
	n, err = m.store.PruneMarks(ctx, KindVehicle, marked(vehicles))
	if err != nil {
		return report, fmt.Errorf("prune invalid marks: %w", err)
	}
	report.MarksPruned += n

	removed, err := m.store.RemoveDuplicateLoads(ctx)
	if err != nil {
		return report, fmt.Errorf("remove duplicate loads: %w", err)
	}
	report.DuplicatesRemoved = removed
	m.observe(KindLoad, "duplicate", int(removed))

	m.logger.Info().
		Int("loads_archived", report.LoadsArchived).
		Int("vehicles_archived", report.VehiclesArchived).
		Int64("marks_pruned", report.MarksPruned).
		Int64("duplicates_removed", report.DuplicatesRemoved).
		Msg("hourly sweep done")
	return report, nil
}

func (m *Manager) archive(ctx context.Context, kind string, rules []Rule, apply func(context.Context, query.Predicate) ([]Archived, error)) ([]Archived, error) {
	var all []Archived
	for _, rule := range rules {
		got, err := apply(ctx, rule.Where)
		if err != nil {
			return all, fmt.Errorf("archive %ss by %s: %w", kind, rule.Name, err)
		}
		if len(got) > 0 {
			m.logger.Debug().Str("ad_kind", kind).Str("rule", rule.Name).Int("count", len(got)).Msg("archived")
		}
		m.observe(kind, rule.Name, len(got))
		all = append(all, got...)
	}
	return all, nil
}

func marked(ads []Archived) []int64 {
	var ids []int64
	for _, a := range ads {
		if a.Marks > 0 {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
