package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/textnorm"
)

// EnsureSender returns the stored profile of p.ID, creating it from p when
// missing. A profile phone learned later is filled in.
func (s *Store) EnsureSender(ctx context.Context, p db.Sender) (*db.Sender, error) {
	if p.ID == 0 {
		return nil, fmt.Errorf("sender id is required")
	}
	if p.OtherPhones == nil {
		p.OtherPhones = []string{}
	}
	var out db.Sender
	if err := s.gorm(ctx).Where(db.Sender{ID: p.ID}).Attrs(p).FirstOrCreate(&out).Error; err != nil {
		if !db.IsDuplicateKey(err) {
			return nil, fmt.Errorf("ensure sender %d: %w", p.ID, err)
		}
		// Created concurrently; read the winner.
		if err := s.gorm(ctx).Where("id = ?", p.ID).Take(&out).Error; err != nil {
			return nil, fmt.Errorf("ensure sender %d: %w", p.ID, err)
		}
	}
	if out.Phone == nil && p.Phone != nil && *p.Phone != "" {
		out.Phone = p.Phone
		if err := s.gorm(ctx).Model(&out).Select("phone").Updates(&out).Error; err != nil {
			return nil, fmt.Errorf("update sender %d phone: %w", p.ID, err)
		}
	}
	return &out, nil
}

// AddSenderPhone appends phone to the sender's observed phones once.
func (s *Store) AddSenderPhone(ctx context.Context, senderID int64, phone string) error {
	phone = strings.TrimSpace(phone)
	if senderID == 0 || phone == "" {
		return nil
	}
	return s.pool.Transaction(ctx, func(tx *gorm.DB) error {
		var sender db.Sender
		if err := tx.Where("id = ?", senderID).Take(&sender).Error; err != nil {
			if db.IsNoRows(err) {
				return nil
			}
			return fmt.Errorf("load sender %d: %w", senderID, err)
		}
		if sender.Phone != nil && *sender.Phone == phone {
			return nil
		}
		for _, known := range sender.OtherPhones {
			if known == phone {
				return nil
			}
		}
		sender.OtherPhones = append(sender.OtherPhones, phone)
		if err := tx.Model(&sender).Select("other_phones").Updates(&sender).Error; err != nil {
			return fmt.Errorf("add sender %d phone: %w", senderID, err)
		}
		return nil
	})
}

// Blocklist loads the spammer and spam-phrase tables.
func (s *Store) Blocklist(ctx context.Context) (*textnorm.Blocklist, error) {
	var spammers []int64
	if err := s.gorm(ctx).Model(&db.Spammer{}).Pluck("sender_id", &spammers).Error; err != nil {
		return nil, fmt.Errorf("load spammers: %w", err)
	}
	var words []string
	if err := s.gorm(ctx).Model(&db.SpamWord{}).Pluck("word", &words).Error; err != nil {
		return nil, fmt.Errorf("load spam words: %w", err)
	}
	return textnorm.NewBlocklist(spammers, words), nil
}

// ResetSearchLimits raises every user's daily search quota back to the
// given floors.
func (s *Store) ResetSearchLimits(ctx context.Context, loads, vehicles int) (int64, error) {
	var total int64
	res := s.gorm(ctx).Model(&db.Sender{}).Where("vehicle_search_limit < ?", vehicles).
		UpdateColumn("vehicle_search_limit", vehicles)
	if res.Error != nil {
		return 0, fmt.Errorf("reset vehicle search limits: %w", res.Error)
	}
	total += res.RowsAffected
	res = s.gorm(ctx).Model(&db.Sender{}).Where("load_search_limit < ?", loads).
		UpdateColumn("load_search_limit", loads)
	if res.Error != nil {
		return 0, fmt.Errorf("reset load search limits: %w", res.Error)
	}
	return total + res.RowsAffected, nil
}
