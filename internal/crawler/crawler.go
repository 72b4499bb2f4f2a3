// Package crawler pulls new channel messages, gates them, and hands the
// survivors to extraction and deduplication.
package crawler

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"horse.fit/cargoscoop/internal/cache"
	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/dedup"
	"horse.fit/cargoscoop/internal/extraction"
	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/lifecycle"
	"horse.fit/cargoscoop/internal/telegram"
	"horse.fit/cargoscoop/internal/textnorm"
)

const (
	nightPageSize = 40
	dayPageSize   = 100

	// MinMessages is the smallest page worth processing.
	MinMessages = 10
	// MinLoadTexts is the smallest number of unique load texts sent to
	// extraction in one pass.
	MinLoadTexts = 6

	maxFailures = 5
	failureTTL  = 6 * time.Hour
	lockTTL     = 15 * time.Minute
)

// Crawl run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Source is the message gateway of one session.
type Source interface {
	Messages(ctx context.Context, channel string, minID int64, limit int) ([]telegram.Message, error)
	MessagesByID(ctx context.Context, channel string, ids []int64) ([]telegram.Message, error)
	Channel(ctx context.Context, channel string) (telegram.Channel, error)
	User(ctx context.Context, id int64) (telegram.Sender, error)
}

type Store interface {
	Channels(ctx context.Context, includeDisabled bool) ([]db.Channel, error)
	SetChannelTitle(ctx context.Context, channelID int64, title string) error
	AdvanceCheckpoint(ctx context.Context, channelID int64, lastMessageID string, at time.Time) error
	StartRun(ctx context.Context, run *db.CrawlRun) error
	FinishRun(ctx context.Context, run *db.CrawlRun) error
	Blocklist(ctx context.Context) (*textnorm.Blocklist, error)
}

type Extractor interface {
	ExtractLoads(ctx context.Context, texts []string) ([]extraction.LoadResult, error)
	ExtractVehicles(ctx context.Context, texts []string) ([]extraction.VehicleResult, error)
}

// Resolver is the dedup cascade together with its content memo.
type Resolver interface {
	Recall(ctx context.Context, kind textnorm.Kind, src dedup.Source) (dedup.Outcome, bool, error)
	Remember(ctx context.Context, kind textnorm.Kind, textHash string, ids []int64) error
	ResolveLoad(ctx context.Context, c dedup.LoadCandidate) (dedup.Outcome, error)
	ResolveVehicle(ctx context.Context, c dedup.VehicleCandidate) (dedup.Outcome, error)
}

// Rechecker confirms that stored ads of a channel still exist upstream.
type Rechecker interface {
	Recheck(ctx context.Context, src lifecycle.MessageSource, channel string) (lifecycle.RecheckReport, error)
}

type Observer interface {
	ObserveMessage(channel string, verdict textnorm.Verdict)
	ObserveCrawl(channel, status string, took time.Duration)
}

type Crawler struct {
	store     Store
	sources   map[string]Source
	extractor Extractor
	resolver  Resolver
	rechecker Rechecker
	cache     cache.Cache
	observer  Observer
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Crawler)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Crawler) { c.logger = logger }
}

// WithRechecker runs the lifecycle recheck after every channel pass.
func WithRechecker(r Rechecker) Option {
	return func(c *Crawler) { c.rechecker = r }
}

// WithCache enables the per-channel crawl lock and failure backoff.
func WithCache(cc cache.Cache) Option {
	return func(c *Crawler) { c.cache = cc }
}

func WithObserver(o Observer) Option {
	return func(c *Crawler) { c.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

// New builds a crawler. sources are keyed by session name.
func New(store Store, sources map[string]Source, ex Extractor, res Resolver, opts ...Option) *Crawler {
	c := &Crawler{
		store:     store,
		sources:   sources,
		extractor: ex,
		resolver:  res,
		logger:    zerolog.Nop(),
		now:       globaltime.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseCheckpoint reads a stored checkpoint. Legacy values carry a trailing
// letter; anything unreadable starts from the beginning.
func ParseCheckpoint(raw string) int64 {
	raw = strings.TrimRightFunc(strings.TrimSpace(raw), unicode.IsLetter)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// PageSize is the number of messages requested per pass at t.
func PageSize(t time.Time) int {
	if globaltime.IsLowTraffic(t) {
		return nightPageSize
	}
	return dayPageSize
}

func (c *Crawler) observeMessage(channel string, v textnorm.Verdict) {
	if c.observer != nil {
		c.observer.ObserveMessage(channel, v)
	}
}

func (c *Crawler) observeCrawl(channel, status string, took time.Duration) {
	if c.observer != nil {
		c.observer.ObserveCrawl(channel, status, took)
	}
}
