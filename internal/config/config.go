package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	LogFile       string `envconfig:"LOG_FILE" default:""`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE" default:"100"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"10"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	RedisURL string `envconfig:"REDIS_URL" default:""`
	RedisDB  int    `envconfig:"REDIS_DB" default:"0"`

	SourceEndpoint string  `envconfig:"SOURCE_ENDPOINT" default:"http://127.0.0.1:8090"`
	SourceToken    string  `envconfig:"SOURCE_TOKEN" default:""`
	SourceSessions string  `envconfig:"SOURCE_SESSIONS" default:"main"`
	SourceRPS      float64 `envconfig:"SOURCE_RPS" default:"2"`

	ExtractionEndpoint string        `envconfig:"EXTRACTION_ENDPOINT" default:"https://api.openai.com/v1"`
	ExtractionAPIKey   string        `envconfig:"EXTRACTION_API_KEY" default:""`
	ExtractionModel    string        `envconfig:"EXTRACTION_MODEL" default:"gpt-4o-mini"`
	ExtractionSeed     int           `envconfig:"EXTRACTION_SEED" default:"525212"`
	ExtractionRPS      float64       `envconfig:"EXTRACTION_RPS" default:"1"`
	ExtractionTimeout  time.Duration `envconfig:"EXTRACTION_TIMEOUT" default:"90s"`

	CrawlInterval     time.Duration `envconfig:"CRAWL_INTERVAL" default:"5m"`
	LifecycleInterval time.Duration `envconfig:"LIFECYCLE_INTERVAL" default:"1h"`

	PlaceSimilarityThreshold float64       `envconfig:"PLACE_SIMILARITY_THRESHOLD" default:"0.31"`
	DedupParamsWindow        time.Duration `envconfig:"DEDUP_PARAMS_WINDOW" default:"96h"`
	DedupPhoneGoodsWindow    time.Duration `envconfig:"DEDUP_PHONE_GOODS_WINDOW" default:"120h"`
	DedupSenderWindow        time.Duration `envconfig:"DEDUP_SENDER_WINDOW" default:"48h"`
	DedupDescriptionWindow   time.Duration `envconfig:"DEDUP_DESCRIPTION_WINDOW" default:"192h"`
	EchoPolicy               string        `envconfig:"ECHO_POLICY" default:"observed"`

	HTTPHost           string `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort           int    `envconfig:"HTTP_PORT" default:"8080"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.LogFile != "" && (c.LogMaxSizeMB < 1 || c.LogMaxBackups < 0 || c.LogMaxAgeDays < 0) {
		return fmt.Errorf("LOG_MAX_SIZE must be >= 1 and LOG_MAX_BACKUPS, LOG_MAX_AGE_DAYS >= 0")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SourceRPS <= 0 {
		return fmt.Errorf("SOURCE_RPS must be > 0")
	}
	if c.ExtractionRPS <= 0 {
		return fmt.Errorf("EXTRACTION_RPS must be > 0")
	}
	if strings.TrimSpace(c.ExtractionModel) == "" {
		return fmt.Errorf("EXTRACTION_MODEL is required")
	}
	if c.CrawlInterval < time.Minute {
		return fmt.Errorf("CRAWL_INTERVAL must be >= 1m")
	}
	if c.LifecycleInterval < time.Minute {
		return fmt.Errorf("LIFECYCLE_INTERVAL must be >= 1m")
	}
	if c.PlaceSimilarityThreshold <= 0 || c.PlaceSimilarityThreshold >= 1 {
		return fmt.Errorf("PLACE_SIMILARITY_THRESHOLD must be in (0,1)")
	}
	for name, window := range map[string]time.Duration{
		"DEDUP_PARAMS_WINDOW":      c.DedupParamsWindow,
		"DEDUP_PHONE_GOODS_WINDOW": c.DedupPhoneGoodsWindow,
		"DEDUP_SENDER_WINDOW":      c.DedupSenderWindow,
		"DEDUP_DESCRIPTION_WINDOW": c.DedupDescriptionWindow,
	} {
		if window <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.EchoPolicy)) {
	case "observed", "off":
	default:
		return fmt.Errorf("ECHO_POLICY must be one of observed, off")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be in 1..65535")
	}
	return nil
}

// Sessions returns the configured upstream session names, deduplicated.
func (c *Config) Sessions() []string {
	if c == nil {
		return nil
	}
	return splitList(c.SourceSessions)
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
