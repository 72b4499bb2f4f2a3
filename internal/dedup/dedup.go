// Package dedup decides whether an extracted ad repeats a stored, still
// live ad and merges or inserts accordingly.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/cargoscoop/internal/cache"
	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/textnorm"
)

type Decision string

const (
	DecisionInsert Decision = "insert"
	DecisionMerge  Decision = "merge"
	// DecisionMemo is a repeat caught by the content memo; only the seen
	// metadata of the remembered records is refreshed.
	DecisionMemo Decision = "memo"
	// DecisionEcho is a cross-sender copy that produces no record.
	DecisionEcho Decision = "echo"
	// DecisionSkip covers candidates that are never persisted.
	DecisionSkip Decision = "skip"
)

// SentinelID is remembered for texts that produced no record, so a repeat is
// recognised without being tied to a real ad. Migrations keep it off real
// records.
const SentinelID = db.ReservedID

const (
	duplicateURLCeiling        = 40
	unarchiveCounterCeiling    = 280
	unarchiveExpirationCeiling = 4
	likelyOwnerMaxAds          = 4
	likelyOwnerCounterCeiling  = 15
	likelyOwnerMaxLength       = 200
	dispatcherMinLoads         = 3
	minPhoneLength             = 8

	lockTTL  = 30 * time.Second
	lockWait = 10 * time.Second
)

// Windows bound how far back each rule looks for a stored duplicate.
type Windows struct {
	Params      time.Duration
	PhoneGoods  time.Duration
	Contact     time.Duration
	Geography   time.Duration
	Description time.Duration
	Vehicle     time.Duration
}

var DefaultWindows = Windows{
	Params:      4 * 24 * time.Hour,
	PhoneGoods:  5 * 24 * time.Hour,
	Contact:     2 * 24 * time.Hour,
	Geography:   2 * 24 * time.Hour,
	Description: 8 * 24 * time.Hour,
	Vehicle:     2 * 24 * time.Hour,
}

// EchoPolicy controls the cross-sender description rule.
type EchoPolicy string

const (
	// EchoObserved drops a cross-sender copy when a matched record carries a
	// phone or neither side has one.
	EchoObserved EchoPolicy = "observed"
	// EchoOff only counts cross-sender copies and lets them through.
	EchoOff EchoPolicy = "off"
)

func ParseEchoPolicy(raw string) (EchoPolicy, error) {
	switch p := EchoPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "", EchoObserved:
		return EchoObserved, nil
	case EchoOff:
		return EchoOff, nil
	default:
		return "", fmt.Errorf("unknown echo policy %q", raw)
	}
}

// Source is the channel message an ad was extracted from.
type Source struct {
	Channel   string
	MessageID int64
	Published time.Time
	Sender    *textnorm.Sender
	Text      string
	Hashes    textnorm.Hashes
	Language  string
}

func (s Source) URL() string {
	return MessageURL(s.Channel, s.MessageID)
}

func (s Source) senderID() int64 {
	if s.Sender == nil {
		return 0
	}
	return s.Sender.ID
}

// MessageURL is the public link of a channel message.
func MessageURL(channel string, messageID int64) string {
	return fmt.Sprintf("https://t.me/%s/%d", strings.TrimSpace(channel), messageID)
}

// Outcome is the disposition of one candidate. IDs are the records it
// produced or refreshed, or SentinelID when none.
type Outcome struct {
	Decision Decision
	Rule     string
	IDs      []int64
}

// Touch is the refresh applied to remembered records.
type Touch struct {
	URL       string
	Channel   string
	MessageID int64
	Published time.Time
}

// LoadQuery selects one live load. Zero fields are not constrained; deleted
// records never match.
type LoadQuery struct {
	ParamsHashes  []string
	OriginLike    string
	DestLike      string
	PhoneSuffixes []string
	SenderID      int64
	Goods         string
	Route         *places.RouteMatch
	LiveOnly      bool
	Since         time.Time
}

// EchoQuery selects loads sharing a phone-stripped description.
type EchoQuery struct {
	OriginLike  string
	DestLike    string
	NoPhoneHash string
	ExceptHash  string
	Since       time.Time
}

type VehicleQuery struct {
	ParamsHash  string
	Origin      string
	PhoneSuffix string
	LiveOnly    bool
	Since       time.Time
}

// Store is the persistence the resolver needs.
type Store interface {
	ExistingLoadIDs(ctx context.Context, ids []int64) ([]int64, error)
	ExistingVehicleIDs(ctx context.Context, ids []int64) ([]int64, error)
	TouchLoads(ctx context.Context, ids []int64, t Touch) error
	TouchVehicles(ctx context.Context, ids []int64, t Touch) error

	FindLoad(ctx context.Context, q LoadQuery) (*db.Load, error)
	MarkEchoes(ctx context.Context, q EchoQuery) ([]db.Load, error)
	InsertLoad(ctx context.Context, l *db.Load) error
	SaveLoad(ctx context.Context, l *db.Load) error

	FindVehicle(ctx context.Context, q VehicleQuery) (*db.Vehicle, error)
	InsertVehicle(ctx context.Context, v *db.Vehicle) error
	SaveVehicle(ctx context.Context, v *db.Vehicle) error

	EnsureSender(ctx context.Context, s db.Sender) (*db.Sender, error)
	AddSenderPhone(ctx context.Context, senderID int64, phone string) error
	CountContactLoads(ctx context.Context, senderID int64, phoneSuffixes []string, counterBelow int) (int64, error)
	CountSenderLoads(ctx context.Context, senderID int64) (int64, error)
	Distance(ctx context.Context, fromCityID, toCityID int64) (*db.DistanceMatrix, error)
}

// Places resolves route ends and goods names.
type Places interface {
	Resolve(text string, strict bool) (places.Match, bool)
	ResolveRoute(origin, destination string) places.RouteMatch
	MatchGoods(text string) (places.Good, bool)
}

// DecisionObserver is told about every resolved candidate.
type DecisionObserver interface {
	ObserveDecision(kind string, decision Decision, rule string)
}

// Resolver runs the duplicate cascades for loads and vehicles.
type Resolver struct {
	store    Store
	cache    cache.Cache
	places   Places
	logger   zerolog.Logger
	windows  Windows
	echo     EchoPolicy
	observer DecisionObserver
	now      func() time.Time

	loadChain    []LoadStrategy
	vehicleChain []VehicleStrategy
}

type Option func(*Resolver)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithWindows(w Windows) Option {
	return func(r *Resolver) { r.windows = w }
}

func WithEchoPolicy(p EchoPolicy) Option {
	return func(r *Resolver) { r.echo = p }
}

func WithObserver(o DecisionObserver) Option {
	return func(r *Resolver) { r.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(store Store, c cache.Cache, p Places, opts ...Option) *Resolver {
	r := &Resolver{
		store:   store,
		cache:   c,
		places:  p,
		logger:  zerolog.Nop(),
		windows: DefaultWindows,
		echo:    EchoObserved,
		now:     globaltime.UTC,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.loadChain = LoadChain()
	r.vehicleChain = VehicleChain()
	return r
}

func (r *Resolver) observe(kind string, o Outcome) {
	if r.observer != nil {
		r.observer.ObserveDecision(kind, o.Decision, o.Rule)
	}
}

// withLock serializes resolution of one content hash across workers.
func (r *Resolver) withLock(ctx context.Context, key string, fn func() (Outcome, error)) (Outcome, error) {
	if err := cache.Acquire(ctx, r.cache, key, lockTTL, lockWait); err != nil {
		return Outcome{}, err
	}
	defer func() {
		if err := cache.Release(context.WithoutCancel(ctx), r.cache, key); err != nil {
			r.logger.Warn().Err(err).Str("lock", key).Msg("release resolution lock")
		}
	}()
	return fn()
}

func skipped(rule string) Outcome {
	return Outcome{Decision: DecisionSkip, Rule: rule, IDs: []int64{SentinelID}}
}
