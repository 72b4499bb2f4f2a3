package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/dedup"
)

// ExistingLoadIDs returns the ids among ids that still name a stored load.
func (s *Store) ExistingLoadIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return existingIDs(s.gorm(ctx).Model(&db.Load{}), ids)
}

func (s *Store) ExistingVehicleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return existingIDs(s.gorm(ctx).Model(&db.Vehicle{}), ids)
}

func existingIDs(tx *gorm.DB, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []int64
	if err := tx.Where("id IN ? AND is_deleted = ?", ids, false).Order("id").Pluck("id", &out).Error; err != nil {
		return nil, fmt.Errorf("select existing ids: %w", err)
	}
	return out, nil
}

func touchValues(t dedup.Touch, at any) map[string]any {
	return map[string]any{
		"url":                 t.URL,
		"channel":             t.Channel,
		"message_id":          t.MessageID,
		"published_at":        t.Published,
		"duplication_counter": gorm.Expr("duplication_counter + 1"),
		"updated_at":          at,
	}
}

// TouchLoads points the loads at the latest sighting of their message.
func (s *Store) TouchLoads(ctx context.Context, ids []int64, t dedup.Touch) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.gorm(ctx).Model(&db.Load{}).
		Where("id IN ? AND is_deleted = ?", ids, false).
		UpdateColumns(touchValues(t, s.now())).Error
	if err != nil {
		return fmt.Errorf("touch loads: %w", err)
	}
	return nil
}

// TouchVehicles is TouchLoads for vehicles, which are also brought back
// from the archive.
func (s *Store) TouchVehicles(ctx context.Context, ids []int64, t dedup.Touch) error {
	if len(ids) == 0 {
		return nil
	}
	values := touchValues(t, s.now())
	values["is_archived"] = false
	err := s.gorm(ctx).Model(&db.Vehicle{}).
		Where("id IN ? AND is_deleted = ?", ids, false).
		UpdateColumns(values).Error
	if err != nil {
		return fmt.Errorf("touch vehicles: %w", err)
	}
	return nil
}

// FindLoad returns the most recently published load matching q, or nil.
func (s *Store) FindLoad(ctx context.Context, q dedup.LoadQuery) (*db.Load, error) {
	tx := s.gorm(ctx).Where("is_deleted = ?", false)
	if len(q.ParamsHashes) > 0 {
		tx = tx.Where("params_hash IN ?", q.ParamsHashes)
	}
	if q.OriginLike != "" {
		tx = tx.Where("origin_norm"+likeClause, contains(q.OriginLike))
	}
	if q.DestLike != "" {
		tx = tx.Where("destination_norm"+likeClause, contains(q.DestLike))
	}
	if q.Goods != "" {
		tx = tx.Where("goods_norm = ?", strings.ToLower(strings.TrimSpace(q.Goods)))
	}
	if sql, args := contactClause(q.PhoneSuffixes, q.SenderID); sql != "" {
		tx = tx.Where(sql, args...)
	}
	if q.Route != nil {
		tx = eqOrNull(tx, "origin_city_id", q.Route.OriginCityID)
		tx = eqOrNull(tx, "destination_city_id", q.Route.DestinationCityID)
		tx = eqOrNull(tx, "destination_country_id", q.Route.DestinationCountryID)
	}
	if q.LiveOnly {
		tx = tx.Where("is_archived = ?", false)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("published_at >= ?", q.Since)
	}

	var rows []db.Load
	if err := tx.Order("published_at DESC, id DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find load: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// contactClause matches any of the phone suffixes or the sender.
func contactClause(suffixes []string, senderID int64) (string, []any) {
	var (
		parts []string
		args  []any
	)
	for _, suffix := range suffixes {
		parts = append(parts, "phone"+likeClause)
		args = append(args, endsWith(suffix))
	}
	if senderID != 0 {
		parts = append(parts, "sender_id = ?")
		args = append(args, senderID)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// MarkEchoes bumps the different-phone counter of every load sharing the
// phone-stripped description and returns them.
func (s *Store) MarkEchoes(ctx context.Context, q dedup.EchoQuery) ([]db.Load, error) {
	var rows []db.Load
	err := s.pool.Transaction(ctx, func(tx *gorm.DB) error {
		find := tx.Where("is_deleted = ? AND no_phone_hash = ? AND text_hash <> ?", false, q.NoPhoneHash, q.ExceptHash)
		if q.OriginLike != "" {
			find = find.Where("origin_norm"+likeClause, contains(q.OriginLike))
		}
		if q.DestLike != "" {
			find = find.Where("destination_norm"+likeClause, contains(q.DestLike))
		}
		if !q.Since.IsZero() {
			find = find.Where("published_at >= ?", q.Since)
		}
		if err := find.Order("published_at DESC, id DESC").Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]int64, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
			rows[i].DiffPhoneDupCount++
		}
		return tx.Model(&db.Load{}).Where("id IN ?", ids).
			UpdateColumn("duplication_counter_different_phone", gorm.Expr("duplication_counter_different_phone + 1")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("mark echoes: %w", err)
	}
	return rows, nil
}

func (s *Store) InsertLoad(ctx context.Context, l *db.Load) error {
	if l.DuplicateURLs == nil {
		l.DuplicateURLs = []string{}
	}
	return s.gorm(ctx).Create(l).Error
}

// SaveLoad writes every column of a live load. Deleted loads are left as
// they are.
func (s *Store) SaveLoad(ctx context.Context, l *db.Load) error {
	l.UpdatedAt = s.now()
	err := s.gorm(ctx).Model(l).
		Where("is_deleted = ?", false).
		Select("*").Omit("id", "created_at").
		Updates(l).Error
	if err != nil {
		return fmt.Errorf("save load %d: %w", l.ID, err)
	}
	return nil
}

// CountContactLoads counts low-counter loads by the sender or any of the
// phones.
func (s *Store) CountContactLoads(ctx context.Context, senderID int64, phoneSuffixes []string, counterBelow int) (int64, error) {
	sql, args := contactClause(phoneSuffixes, senderID)
	if sql == "" {
		return 0, nil
	}
	var n int64
	err := s.gorm(ctx).Model(&db.Load{}).
		Where("is_deleted = ? AND duplication_counter < ?", false, counterBelow).
		Where(sql, args...).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count contact loads: %w", err)
	}
	return n, nil
}

func (s *Store) CountSenderLoads(ctx context.Context, senderID int64) (int64, error) {
	if senderID == 0 {
		return 0, nil
	}
	var n int64
	err := s.gorm(ctx).Model(&db.Load{}).
		Where("is_deleted = ? AND sender_id = ?", false, senderID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count sender loads: %w", err)
	}
	return n, nil
}

// Distance looks the route up in either direction.
func (s *Store) Distance(ctx context.Context, fromCityID, toCityID int64) (*db.DistanceMatrix, error) {
	var rows []db.DistanceMatrix
	err := s.gorm(ctx).
		Where("(origin_city_id = ? AND destination_city_id = ?) OR (origin_city_id = ? AND destination_city_id = ?)",
			fromCityID, toCityID, toCityID, fromCityID).
		Limit(1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find distance: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) LoadByID(ctx context.Context, id int64) (*db.Load, error) {
	var l db.Load
	if err := s.gorm(ctx).Where("id = ?", id).Take(&l).Error; err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %d: %w", id, err)
	}
	return &l, nil
}
