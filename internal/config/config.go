package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TRANSIT"

// Config holds all configuration for transitd
type Config struct {
	// Database
	DBDriver     string `mapstructure:"db_driver" validate:"oneof=sqlite pgx"`
	DatabasePath string `mapstructure:"database_path" validate:"required"`

	// Service-day clock
	Timezone string `mapstructure:"timezone" validate:"required,timezone"`

	// HTTP API
	ListenAddr  string   `mapstructure:"listen_addr" validate:"required,hostname_port|startswith=:"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Real-time polling
	TripUpdatesURL  string        `mapstructure:"trip_updates_url" validate:"omitempty,url"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"min=1s"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"min=1m"`
	Retention       time.Duration `mapstructure:"retention" validate:"min=1h"`

	// Static data refresh
	StaticGTFSURL         string        `mapstructure:"static_gtfs_url" validate:"omitempty,url"`
	StaticRefreshInterval time.Duration `mapstructure:"static_refresh_interval" validate:"min=1h"`
	CacheDir              string        `mapstructure:"cache_dir"`

	// Publishing
	NATSURL           string `mapstructure:"nats_url" validate:"omitempty,url"`
	NATSSubjectPrefix string `mapstructure:"nats_subject_prefix" validate:"required"`

	LogDevelopment bool `mapstructure:"log_development"`
}

var defaults = map[string]any{
	"db_driver":               "sqlite",
	"database_path":           "/data/transit.db",
	"timezone":                serviceday.DefaultTimezone,
	"listen_addr":             ":8080",
	"cors_origins":            []string{"*"},
	"trip_updates_url":        "",
	"poll_interval":           30 * time.Second,
	"cleanup_interval":        time.Hour,
	"retention":               30 * 24 * time.Hour,
	"static_gtfs_url":         "",
	"static_refresh_interval": 7 * 24 * time.Hour,
	"cache_dir":               "/data/cache",
	"nats_url":                "",
	"nats_subject_prefix":     "transit.schedule",
	"log_development":         false,
}

// Load reads configuration from an optional .env file, an optional config file named by
// TRANSIT_CONFIG and TRANSIT_* environment variables, in increasing precedence.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
