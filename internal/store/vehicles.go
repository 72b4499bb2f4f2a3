package store

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/dedup"
)

// FindVehicle returns the most recently published vehicle matching q, or nil.
func (s *Store) FindVehicle(ctx context.Context, q dedup.VehicleQuery) (*db.Vehicle, error) {
	tx := s.gorm(ctx).Where("is_deleted = ?", false)
	if q.ParamsHash != "" {
		tx = tx.Where("params_hash = ?", q.ParamsHash)
	}
	if q.Origin != "" {
		tx = tx.Where("origin_norm = ?", strings.ToLower(strings.TrimSpace(q.Origin)))
	}
	if q.PhoneSuffix != "" {
		tx = tx.Where("phone"+likeClause, endsWith(q.PhoneSuffix))
	}
	if q.LiveOnly {
		tx = tx.Where("is_archived = ?", false)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("published_at >= ?", q.Since)
	}

	var rows []db.Vehicle
	if err := tx.Order("published_at DESC, id DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find vehicle: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) InsertVehicle(ctx context.Context, v *db.Vehicle) error {
	if v.Destinations == nil {
		v.Destinations = []string{}
	}
	return s.gorm(ctx).Create(v).Error
}

// SaveVehicle writes every column of a live vehicle.
func (s *Store) SaveVehicle(ctx context.Context, v *db.Vehicle) error {
	v.UpdatedAt = s.now()
	err := s.gorm(ctx).Model(v).
		Where("is_deleted = ?", false).
		Select("*").Omit("id", "created_at").
		Updates(v).Error
	if err != nil {
		return fmt.Errorf("save vehicle %d: %w", v.ID, err)
	}
	return nil
}

func (s *Store) VehicleByID(ctx context.Context, id int64) (*db.Vehicle, error) {
	var v db.Vehicle
	if err := s.gorm(ctx).Where("id = ?", id).Take(&v).Error; err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vehicle %d: %w", id, err)
	}
	return &v, nil
}
