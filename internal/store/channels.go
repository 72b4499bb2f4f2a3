package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"horse.fit/cargoscoop/internal/db"
)

// Channels lists crawl sources ordered by session. Disabled channels are
// included only when asked for.
func (s *Store) Channels(ctx context.Context, includeDisabled bool) ([]db.Channel, error) {
	tx := s.gorm(ctx)
	if !includeDisabled {
		tx = tx.Where("disabled = ?", false)
	}
	var rows []db.Channel
	if err := tx.Order("session, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return rows, nil
}

func (s *Store) ChannelByName(ctx context.Context, name string) (*db.Channel, error) {
	var ch db.Channel
	if err := s.gorm(ctx).Where("name = ?", strings.TrimSpace(name)).Take(&ch).Error; err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("channel %q: %w", name, err)
	}
	return &ch, nil
}

// UpsertChannel registers a channel or updates its session and crawl flags.
// The checkpoint of an existing channel is kept.
func (s *Store) UpsertChannel(ctx context.Context, ch *db.Channel) error {
	ch.Name = strings.TrimSpace(ch.Name)
	if ch.Name == "" {
		return fmt.Errorf("channel name is required")
	}
	if ch.Session == "" {
		ch.Session = "main"
	}
	err := s.gorm(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"session", "crawl_loads", "crawl_vehicles", "disabled", "updated_at"}),
	}).Create(ch).Error
	if err != nil {
		return fmt.Errorf("upsert channel %q: %w", ch.Name, err)
	}
	return nil
}

// SetChannelTitle fills the title of a channel that has none yet.
func (s *Store) SetChannelTitle(ctx context.Context, channelID int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	err := s.gorm(ctx).Model(&db.Channel{}).
		Where("id = ? AND (title IS NULL OR title = '')", channelID).
		UpdateColumns(map[string]any{"title": title, "updated_at": s.now()}).Error
	if err != nil {
		return fmt.Errorf("set channel %d title: %w", channelID, err)
	}
	return nil
}

// AdvanceCheckpoint records the newest processed message of a channel.
func (s *Store) AdvanceCheckpoint(ctx context.Context, channelID int64, lastMessageID string, at time.Time) error {
	err := s.gorm(ctx).Model(&db.Channel{}).
		Where("id = ?", channelID).
		UpdateColumns(map[string]any{"last_message_id": lastMessageID, "crawled_at": at, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("advance channel %d checkpoint: %w", channelID, err)
	}
	return nil
}

func (s *Store) StartRun(ctx context.Context, run *db.CrawlRun) error {
	if err := s.gorm(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("start crawl run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, run *db.CrawlRun) error {
	err := s.gorm(ctx).Model(run).
		Select("status", "finished_at", "messages_fetched", "messages_kept", "loads_saved", "vehicles_saved", "checkpoint", "error_message").
		Updates(run).Error
	if err != nil {
		return fmt.Errorf("finish crawl run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns the latest crawl runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]db.CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []db.CrawlRun
	if err := s.gorm(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list crawl runs: %w", err)
	}
	return rows, nil
}
