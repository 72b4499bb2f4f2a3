package store

import (
	"context"
	"fmt"
	"time"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/query"
)

// SearchLoads runs a load search plan and returns the page with the total
// number of matches.
func (s *Store) SearchLoads(ctx context.Context, plan query.Plan) ([]db.Load, int64, error) {
	var total int64
	if err := plan.Where.Apply(s.gorm(ctx).Model(&db.Load{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count loads: %w", err)
	}
	var rows []db.Load
	if err := plan.Apply(s.gorm(ctx)).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("search loads: %w", err)
	}
	return rows, total, nil
}

func (s *Store) SearchVehicles(ctx context.Context, plan query.Plan) ([]db.Vehicle, int64, error) {
	var total int64
	if err := plan.Where.Apply(s.gorm(ctx).Model(&db.Vehicle{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count vehicles: %w", err)
	}
	var rows []db.Vehicle
	if err := plan.Apply(s.gorm(ctx)).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("search vehicles: %w", err)
	}
	return rows, total, nil
}

// MarkedAdIDs returns the ads a user marked as gone.
func (s *Store) MarkedAdIDs(ctx context.Context, userID int64, kind string) ([]int64, error) {
	var ids []int64
	err := s.gorm(ctx).Model(&db.MarkedAd{}).
		Where("user_id = ? AND ad_kind = ?", userID, kind).
		Order("ad_id").Pluck("ad_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("marked ads: %w", err)
	}
	return ids, nil
}

// Stats is the live inventory summary.
type Stats struct {
	LiveLoads     int64      `json:"live_loads"`
	LoadsToday    int64      `json:"loads_today"`
	LiveVehicles  int64      `json:"live_vehicles"`
	VehiclesToday int64      `json:"vehicles_today"`
	Channels      int64      `json:"channels"`
	LastCrawlAt   *time.Time `json:"last_crawl_at,omitempty"`
}

// Stats counts live ads overall and since the start of the local day.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	local := globaltime.Local(s.now())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()).UTC()

	live := "is_archived = ? AND is_deleted = ?"
	counts := []struct {
		model any
		where string
		args  []any
		dst   *int64
	}{
		{&db.Load{}, live, []any{false, false}, &out.LiveLoads},
		{&db.Load{}, live + " AND published_at >= ?", []any{false, false, dayStart}, &out.LoadsToday},
		{&db.Vehicle{}, live, []any{false, false}, &out.LiveVehicles},
		{&db.Vehicle{}, live + " AND published_at >= ?", []any{false, false, dayStart}, &out.VehiclesToday},
		{&db.Channel{}, "disabled = ?", []any{false}, &out.Channels},
	}
	for _, c := range counts {
		if err := s.gorm(ctx).Model(c.model).Where(c.where, c.args...).Count(c.dst).Error; err != nil {
			return out, fmt.Errorf("stats: %w", err)
		}
	}

	var last []db.Channel
	if err := s.gorm(ctx).Where("crawled_at IS NOT NULL").Order("crawled_at DESC").Limit(1).Find(&last).Error; err != nil {
		return out, fmt.Errorf("stats: %w", err)
	}
	if len(last) > 0 {
		out.LastCrawlAt = last[0].CrawledAt
	}
	return out, nil
}
