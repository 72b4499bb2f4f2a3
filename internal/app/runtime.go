package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/cargoscoop/internal/cache"
	"horse.fit/cargoscoop/internal/cli"
	"horse.fit/cargoscoop/internal/config"
	"horse.fit/cargoscoop/internal/crawler"
	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/dedup"
	"horse.fit/cargoscoop/internal/extraction"
	"horse.fit/cargoscoop/internal/httpapi"
	"horse.fit/cargoscoop/internal/httpx"
	"horse.fit/cargoscoop/internal/lifecycle"
	"horse.fit/cargoscoop/internal/logging"
	"horse.fit/cargoscoop/internal/metrics"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/query"
	"horse.fit/cargoscoop/internal/store"
	"horse.fit/cargoscoop/internal/telegram"
)

const geoKey = "cargoscoop:geo:cities"

// runtime is the config, logger and database every command starts from.
type runtime struct {
	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
	pool      *db.Pool
}

// openRuntime loads the environment and connects to the database. On
// failure it returns the exit code the command should end with.
func openRuntime(command string, envLoader *cli.EnvLoader) (*runtime, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, 1
	}

	logger, closer, err := logging.NewWithFile(cfg.Environment, cfg.LogLevel, logging.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, 1
	}
	logger = logger.With().Str("command", command).Logger()

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		_ = closer.Close()
		return nil, 1
	}
	return &runtime{cfg: cfg, logger: logger, logCloser: closer, pool: pool}, 0
}

func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.pool != nil {
		_ = r.pool.Close()
	}
	if r.logCloser != nil {
		_ = r.logCloser.Close()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// services is the domain graph built on top of a runtime.
type services struct {
	store     *store.Store
	catalog   *places.Catalog
	geo       places.GeoIndex
	cache     cache.Cache
	metrics   *metrics.Metrics
	builder   *query.Builder
	sources   map[string]crawler.Source
	extractor *extraction.Extractor
	resolver  *dedup.Resolver
	lifecycle *lifecycle.Manager
	crawler   *crawler.Crawler
}

func (s *services) Close() {
	if s != nil && s.cache != nil {
		_ = s.cache.Close()
	}
}

// wire builds every component from the runtime configuration. The Redis
// cache also backs the GEO index when REDIS_URL is set.
func wire(ctx context.Context, rt *runtime) (*services, error) {
	cfg := rt.cfg
	logger := rt.logger

	st, err := store.New(rt.pool)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	catalog, err := st.LoadCatalog(ctx, places.WithThreshold(cfg.PlaceSimilarityThreshold))
	if err != nil {
		return nil, fmt.Errorf("load place catalog: %w", err)
	}

	svc := &services{store: st, catalog: catalog, metrics: metrics.New()}

	if cfg.RedisURL != "" {
		rc, err := cache.OpenRedis(ctx, cfg.RedisURL, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		geo := places.NewRedisGeo(rc.Client(), geoKey)
		if err := geo.Load(ctx, catalog.Cities()); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("load geo index: %w", err)
		}
		svc.cache, svc.geo = rc, geo
	} else {
		svc.cache, svc.geo = cache.NewMemory(), places.NewMemoryGeo(catalog.Cities())
	}

	svc.sources, err = buildSources(cfg)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.builder = query.NewBuilder(catalog, svc.geo)
	svc.extractor = extraction.NewExtractor(
		extraction.NewChatClient(extraction.ClientConfig{
			Endpoint: cfg.ExtractionEndpoint,
			APIKey:   cfg.ExtractionAPIKey,
			Model:    cfg.ExtractionModel,
			Seed:     int64(cfg.ExtractionSeed),
			RPS:      cfg.ExtractionRPS,
			Timeout:  cfg.ExtractionTimeout,
			Retry:    httpx.Policy{},
		}),
		extraction.WithLogger(logger.With().Str("component", "extraction").Logger()),
		extraction.WithObserver(svc.metrics),
	)
	svc.resolver = dedup.NewResolver(st, svc.cache, catalog,
		dedup.WithLogger(logger.With().Str("component", "dedup").Logger()),
		dedup.WithWindows(dedupWindows(cfg)),
		dedup.WithEchoPolicy(dedup.EchoPolicy(strings.ToLower(strings.TrimSpace(cfg.EchoPolicy)))),
		dedup.WithObserver(svc.metrics),
	)
	svc.lifecycle = lifecycle.NewManager(st, catalog,
		lifecycle.WithLogger(logger.With().Str("component", "lifecycle").Logger()),
		lifecycle.WithObserver(svc.metrics),
	)
	svc.crawler = crawler.New(st, svc.sources, svc.extractor, svc.resolver,
		crawler.WithLogger(logger.With().Str("component", "crawler").Logger()),
		crawler.WithRechecker(svc.lifecycle),
		crawler.WithCache(svc.cache),
		crawler.WithObserver(svc.metrics),
	)
	return svc, nil
}

// buildSources opens one gateway client per configured session.
func buildSources(cfg *config.Config) (map[string]crawler.Source, error) {
	sessions := cfg.Sessions()
	if len(sessions) == 0 {
		return nil, fmt.Errorf("SOURCE_SESSIONS lists no sessions")
	}
	out := make(map[string]crawler.Source, len(sessions))
	for _, session := range sessions {
		client, err := telegram.NewClient(telegram.Config{
			Endpoint: cfg.SourceEndpoint,
			Token:    cfg.SourceToken,
			Session:  session,
			RPS:      cfg.SourceRPS,
		})
		if err != nil {
			return nil, fmt.Errorf("source session %s: %w", session, err)
		}
		out[session] = client
	}
	return out, nil
}

// dedupWindows overrides the configurable windows. The sender window bounds
// both the contact and the geography rules.
func dedupWindows(cfg *config.Config) dedup.Windows {
	w := dedup.DefaultWindows
	w.Params = cfg.DedupParamsWindow
	w.PhoneGoods = cfg.DedupPhoneGoodsWindow
	w.Contact = cfg.DedupSenderWindow
	w.Geography = cfg.DedupSenderWindow
	w.Description = cfg.DedupDescriptionWindow
	return w
}

func newAPIServer(rt *runtime, svc *services, host string, port int, readTimeout, writeTimeout, shutdownTimeout time.Duration) *httpapi.Server {
	return httpapi.NewServer(svc.store, svc.builder, svc.catalog,
		rt.logger.With().Str("component", "httpapi").Logger(),
		httpapi.Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			AllowedOrigins:  rt.cfg.CORSAllowedOriginsList(),
		},
		httpapi.WithMetrics(svc.metrics),
	)
}
