package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	AuthToken string `env:"AUTH_TOKEN,notEmpty"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver       string `env:"STORE_DRIVER" envDefault:"postgres"`
	DBURL             string `env:"DB_URL"`
	SQLitePath        string `env:"SQLITE_PATH" envDefault:"bookshelf.db"`
	DBMaxConns        int    `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns        int    `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxIdleSecs     int    `env:"DB_MAX_CONN_IDLE_SECS" envDefault:"300"`
	DBMaxLifeSecs     int    `env:"DB_MAX_CONN_LIFETIME_SECS" envDefault:"3600"`
	DBConnTimeoutSecs int    `env:"DB_CONN_TIMEOUT_SECS" envDefault:"10"`
	DBStatementCache  int    `env:"DB_STATEMENT_CACHE_CAPACITY" envDefault:"256"`

	ReadTimeoutSecs  int `env:"SERVER_READ_TIMEOUT" envDefault:"15"`
	WriteTimeoutSecs int `env:"SERVER_WRITE_TIMEOUT" envDefault:"15"`
	IdleTimeoutSecs  int `env:"SERVER_IDLE_TIMEOUT" envDefault:"60"`

	BookInfoURL         string `env:"BOOKINFO_URL"`
	BookInfoAPIKey      string `env:"BOOKINFO_API_KEY"`
	BookInfoTimeoutSecs int    `env:"BOOKINFO_TIMEOUT_SECS" envDefault:"5"`

	RatingDuplicatePolicy string `env:"RATING_DUPLICATE_POLICY" envDefault:"reject"`
	RatingMaxAttempts     int    `env:"RATING_MAX_ATTEMPTS" envDefault:"3"`
	DefaultLocale         string `env:"DEFAULT_LOCALE" envDefault:"ar"`
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (cfg Config) Validate() error {
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DBURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", DriverPostgres, DriverSQLite)
	}
	if cfg.BookInfoURL != "" && cfg.BookInfoAPIKey == "" {
		return fmt.Errorf("BOOKINFO_API_KEY is required when BOOKINFO_URL is set")
	}
	if cfg.BookInfoTimeoutSecs <= 0 {
		return fmt.Errorf("BOOKINFO_TIMEOUT_SECS must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.RatingDuplicatePolicy)) {
	case "reject", "replace":
	default:
		return fmt.Errorf("RATING_DUPLICATE_POLICY must be reject or replace")
	}
	if cfg.RatingMaxAttempts < 1 {
		return fmt.Errorf("RATING_MAX_ATTEMPTS must be at least 1")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.DefaultLocale)) {
	case "ar", "en":
	default:
		return fmt.Errorf("DEFAULT_LOCALE must be ar or en")
	}
	return nil
}
