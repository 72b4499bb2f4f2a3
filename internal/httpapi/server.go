package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/query"
	"horse.fit/cargoscoop/internal/store"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Store is the read side the API serves from.
type Store interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (store.Stats, error)
	Channels(ctx context.Context, includeDisabled bool) ([]db.Channel, error)
	SearchLoads(ctx context.Context, plan query.Plan) ([]db.Load, int64, error)
	SearchVehicles(ctx context.Context, plan query.Plan) ([]db.Vehicle, int64, error)
	MarkedAdIDs(ctx context.Context, userID int64, kind string) ([]int64, error)
}

// Places resolves free-text place names.
type Places interface {
	Resolve(text string, strict bool) (places.Match, bool)
	ResolveSide(text string, side places.Side) (places.Match, bool)
}

// Metrics instruments the router and serves the scrape endpoint.
type Metrics interface {
	Middleware() echo.MiddlewareFunc
	Handler() http.Handler
}

type Server struct {
	store    Store
	builder  *query.Builder
	places   Places
	metrics  Metrics
	validate *validator.Validate
	logger   zerolog.Logger
	opts     Options
}

type Option func(*Server)

func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func NewServer(st Store, builder *query.Builder, p Places, logger zerolog.Logger, opts Options, extra ...Option) *Server {
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		store:    st,
		builder:  builder,
		places:   p,
		validate: validate,
		logger:   logger,
		opts:     opts,
	}
	for _, opt := range extra {
		opt(s)
	}
	return s
}

// Handler builds the router. It is separate from Start so tests can drive
// it through httptest.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
	}
	if len(s.opts.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.opts.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       3600,
		}))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.logger.Debug()
			if v.Error != nil {
				ev = s.logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/channels", s.handleChannels)
	api.POST("/loads/search", s.handleLoadSearch)
	api.POST("/vehicles/search", s.handleVehicleSearch)
	api.GET("/places/resolve", s.handleResolvePlace)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	return e
}

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil || s.builder == nil {
		return fmt.Errorf("server is not initialized")
	}
	e := s.Handler()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("api server started")
	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if v, ok := he.Message.(string); ok && strings.TrimSpace(v) != "" {
			message = v
		} else if text := http.StatusText(status); text != "" {
			message = text
		}
	}

	if status >= 500 {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("database ping failed")
		return internalError(c, "Database unavailable")
	}
	return success(c, map[string]any{
		"service": "cargoscoop",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

type channelItem struct {
	Name          string     `json:"name"`
	Title         *string    `json:"title,omitempty"`
	Session       string     `json:"session"`
	Checkpoint    string     `json:"checkpoint"`
	CrawlLoads    bool       `json:"crawl_loads"`
	CrawlVehicles bool       `json:"crawl_vehicles"`
	Disabled      bool       `json:"disabled"`
	CrawledAt     *time.Time `json:"crawled_at,omitempty"`
}

func (s *Server) handleChannels(c echo.Context) error {
	rows, err := s.store.Channels(c.Request().Context(), true)
	if err != nil {
		s.logger.Error().Err(err).Msg("query channels failed")
		return internalError(c, "Failed to load channels")
	}
	items := make([]channelItem, 0, len(rows))
	for _, ch := range rows {
		items = append(items, channelItem{
			Name:          ch.Name,
			Title:         ch.Title,
			Session:       ch.Session,
			Checkpoint:    ch.LastMessageID,
			CrawlLoads:    ch.CrawlLoads,
			CrawlVehicles: ch.CrawlVehicles,
			Disabled:      ch.Disabled,
			CrawledAt:     ch.CrawledAt,
		})
	}
	return success(c, map[string]any{"items": items})
}

type placeItem struct {
	ID         int64       `json:"id"`
	Kind       places.Kind `json:"kind"`
	Name       string      `json:"name"`
	Variant    string      `json:"variant"`
	CountryID  int64       `json:"country_id"`
	Similarity float64     `json:"similarity"`
}

func (s *Server) handleResolvePlace(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return failValidation(c, map[string]string{"q": "is required"})
	}

	var (
		m  places.Match
		ok bool
	)
	switch side := strings.ToLower(strings.TrimSpace(c.QueryParam("side"))); side {
	case "":
		m, ok = s.places.Resolve(q, c.QueryParam("strict") == "true")
	case "origin":
		m, ok = s.places.ResolveSide(q, places.SideOrigin)
	case "destination":
		m, ok = s.places.ResolveSide(q, places.SideDestination)
	default:
		return failValidation(c, map[string]string{"side": "must be origin or destination"})
	}
	if !ok {
		return failNotFound(c, "No place matches the query")
	}
	return success(c, placeItem{
		ID:         m.ID,
		Kind:       m.Kind,
		Name:       m.Name,
		Variant:    m.Variant,
		CountryID:  m.CountryOf(),
		Similarity: m.Similarity,
	})
}

// validationErrors flattens validator output into field -> rule messages
// keyed by the JSON name.
func validationErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["body"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out[fe.Field()] = msg
	}
	return out
}
