package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/lifecycle"
	"horse.fit/cargoscoop/internal/query"
)

// RecheckLoads returns the channel's live loads touched since since, oldest
// touch first.
func (s *Store) RecheckLoads(ctx context.Context, channel string, since time.Time, counterBelow, limit int) ([]db.Load, error) {
	var rows []db.Load
	err := s.gorm(ctx).
		Where("channel = ? AND updated_at > ? AND duplication_counter < ? AND message_id IS NOT NULL", channel, since, counterBelow).
		Where("is_archived = ? AND is_deleted = ?", false, false).
		Order("updated_at ASC").Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select loads to recheck: %w", err)
	}
	return rows, nil
}

func (s *Store) RecheckVehicles(ctx context.Context, channel string, since time.Time, limit int) ([]db.Vehicle, error) {
	var rows []db.Vehicle
	err := s.gorm(ctx).
		Where("channel = ? AND updated_at > ? AND message_id IS NOT NULL", channel, since).
		Where("is_archived = ? AND is_deleted = ?", false, false).
		Order("updated_at ASC").Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select vehicles to recheck: %w", err)
	}
	return rows, nil
}

func (s *Store) RefreshLoads(ctx context.Context, ids []int64) error {
	return s.refresh(ctx, &db.Load{}, ids)
}

func (s *Store) RefreshVehicles(ctx context.Context, ids []int64) error {
	return s.refresh(ctx, &db.Vehicle{}, ids)
}

func (s *Store) refresh(ctx context.Context, model any, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.gorm(ctx).Model(model).
		Where("id IN ? AND is_deleted = ?", ids, false).
		UpdateColumn("updated_at", s.now()).Error
	if err != nil {
		return fmt.Errorf("refresh ads: %w", err)
	}
	return nil
}

// RetireLoads archives and deletes loads whose message is gone.
func (s *Store) RetireLoads(ctx context.Context, ids []int64) error {
	return s.retire(ctx, &db.Load{}, ids)
}

func (s *Store) RetireVehicles(ctx context.Context, ids []int64) error {
	return s.retire(ctx, &db.Vehicle{}, ids)
}

func (s *Store) retire(ctx context.Context, model any, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := s.now()
	err := s.gorm(ctx).Model(model).
		Where("id IN ? AND is_deleted = ?", ids, false).
		UpdateColumns(map[string]any{"is_archived": true, "is_deleted": true, "deleted_at": now, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("retire ads: %w", err)
	}
	return nil
}

// ArchiveLoads archives the live loads matching where and reports them with
// their expiration marks.
func (s *Store) ArchiveLoads(ctx context.Context, where query.Predicate) ([]lifecycle.Archived, error) {
	return s.archive(ctx, &db.Load{}, "expiration_button_counter", where)
}

// ArchiveVehicles is ArchiveLoads for vehicles, reporting invalid marks.
func (s *Store) ArchiveVehicles(ctx context.Context, where query.Predicate) ([]lifecycle.Archived, error) {
	return s.archive(ctx, &db.Vehicle{}, "invalid_button_counter", where)
}

func (s *Store) archive(ctx context.Context, model any, marksColumn string, where query.Predicate) ([]lifecycle.Archived, error) {
	var out []lifecycle.Archived
	err := s.pool.Transaction(ctx, func(tx *gorm.DB) error {
		var rows []struct {
			ID    int64
			Marks int
		}
		sel := tx.Model(model).
			Select("id, " + marksColumn + " AS marks").
			Where("is_archived = ? AND is_deleted = ?", false, false)
		if err := where.Apply(sel).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]int64, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
			out = append(out, lifecycle.Archived{ID: r.ID, Marks: r.Marks})
		}
		return tx.Model(model).Where("id IN ?", ids).
			UpdateColumns(map[string]any{"is_archived": true, "updated_at": s.now()}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("archive ads: %w", err)
	}
	return out, nil
}

// PruneMarks drops the user marks pointing at the given ads.
func (s *Store) PruneMarks(ctx context.Context, kind string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.gorm(ctx).Where("ad_kind = ? AND ad_id IN ?", kind, ids).Delete(&db.MarkedAd{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune %s marks: %w", kind, res.Error)
	}
	return res.RowsAffected, nil
}

// RemoveDuplicateLoads retires every live load repeating the phone, text
// and route of a newer one.
func (s *Store) RemoveDuplicateLoads(ctx context.Context) (int64, error) {
	now := s.now()
	res := s.gorm(ctx).Exec(`
UPDATE loads
SET is_archived = ?, is_deleted = ?, deleted_at = ?, updated_at = ?
WHERE id IN (
  SELECT id FROM (
    SELECT id, ROW_NUMBER() OVER (
      PARTITION BY phone, text_hash, origin, destination
      ORDER BY published_at DESC, id DESC
    ) AS rn
    FROM loads
    WHERE is_archived = ? AND is_deleted = ?
      AND phone IS NOT NULL AND text_hash <> '' AND origin <> '' AND destination <> ''
  ) ranked
  WHERE rn > 1
)`, true, true, now, now, false, false)
	if res.Error != nil {
		return 0, fmt.Errorf("remove duplicate loads: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// BackfillOwners links loads to the stored profile of their sender.
func (s *Store) BackfillOwners(ctx context.Context) (int64, error) {
	res := s.gorm(ctx).Exec(`
UPDATE loads
SET owner_id = sender_id
WHERE owner_id IS NULL AND sender_id IS NOT NULL
  AND sender_id IN (SELECT id FROM senders)`)
	if res.Error != nil {
		return 0, fmt.Errorf("backfill owners: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SwapRoutes reverses both route ends of live loads posted from -> to whose
// goods contain one of goodsWords.
func (s *Store) SwapRoutes(ctx context.Context, fromCountryID, toCountryID int64, goodsWords []string) (int64, error) {
	if len(goodsWords) == 0 {
		return 0, nil
	}
	var (
		likes []string
		args  = []any{fromCountryID, toCountryID}
	)
	for _, w := range goodsWords {
		likes = append(likes, "goods_norm"+likeClause)
		args = append(args, contains(w))
	}
	res := s.gorm(ctx).Exec(`
UPDATE loads
SET origin_country_id = destination_country_id,
    destination_country_id = origin_country_id,
    origin_city_id = destination_city_id,
    destination_city_id = origin_city_id,
    origin = destination,
    destination = origin,
    origin_norm = destination_norm,
    destination_norm = origin_norm
WHERE is_deleted = false
  AND origin_country_id = ? AND destination_country_id = ?
  AND (`+strings.Join(likes, " OR ")+`)`, args...)
	if res.Error != nil {
		return 0, fmt.Errorf("swap routes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PopularRoutes groups the loads matching where by city pair and keeps the
// pairs with at least minLoads loads.
func (s *Store) PopularRoutes(ctx context.Context, where query.Predicate, minLoads int) ([]lifecycle.Route, error) {
	var rows []lifecycle.Route
	tx := s.gorm(ctx).Model(&db.Load{}).
		Select("origin_city_id, destination_city_id").
		Where("is_deleted = ?", false)
	err := where.Apply(tx).
		Group("origin_city_id, destination_city_id").
		Having("COUNT(*) >= ?", minLoads).
		Order("origin_city_id, destination_city_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("popular routes: %w", err)
	}
	return rows, nil
}

func (s *Store) PriceSamples(ctx context.Context, where query.Predicate) ([]lifecycle.PriceSample, error) {
	var rows []lifecycle.PriceSample
	tx := s.gorm(ctx).Model(&db.Load{}).Select("price, weight").Where("is_deleted = ?", false)
	if err := where.Apply(tx).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("price samples: %w", err)
	}
	return rows, nil
}

// SaveKiloPrice upserts the statistic of its day and route.
func (s *Store) SaveKiloPrice(ctx context.Context, stat db.KiloPriceStatistic) error {
	err := s.gorm(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "origin_city_id"}, {Name: "destination_city_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"average", "median", "max", "min", "count"}),
	}).Create(&stat).Error
	if err != nil {
		return fmt.Errorf("save kilo price: %w", err)
	}
	return nil
}

// LatestKiloPrice is the newest statistic of a route, or ErrNotFound.
func (s *Store) LatestKiloPrice(ctx context.Context, originCityID, destinationCityID int64) (*db.KiloPriceStatistic, error) {
	var rows []db.KiloPriceStatistic
	err := s.gorm(ctx).
		Where("origin_city_id = ? AND destination_city_id = ?", originCityID, destinationCityID).
		Order("date DESC").Limit(1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest kilo price: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}
