// Package store holds the gorm repositories behind the resolver, the
// crawler, the lifecycle sweeps and the search API.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/globaltime"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	pool *db.Pool
	now  func() time.Time
}

type Option func(*Store)

// WithClock sets the clock stamped on updated rows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(pool *db.Pool, opts ...Option) (*Store, error) {
	if pool == nil || pool.GORM() == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	s := &Store{pool: pool, now: globaltime.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) gorm(ctx context.Context) *gorm.DB {
	return s.pool.GORM().WithContext(ctx)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// contains is a LIKE pattern matching lowercase s anywhere.
func contains(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// endsWith is a LIKE pattern matching values ending in s.
func endsWith(s string) string {
	return "%" + likeEscaper.Replace(s)
}

const (
	likeClause = ` LIKE ? ESCAPE '\'`
)

// eqOrNull constrains col to id, or to NULL when id is nil.
func eqOrNull(tx *gorm.DB, col string, id *int64) *gorm.DB {
	if id == nil {
		return tx.Where(col + " IS NULL")
	}
	return tx.Where(col+" = ?", *id)
}
