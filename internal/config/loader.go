package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/rpattn/obsquery/internal/cache"
	"github.com/rpattn/obsquery/internal/db"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/logger"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/schema/validator"
)

// EnvPrefix prefixes environment overrides, e.g. OBSQUERY_DATABASE_HOST.
const EnvPrefix = "OBSQUERY"

// QueryConfig bounds specification validation and cached orderings.
type QueryConfig struct {
	MaxArrayLength   int
	MaxSubqueryDepth int
	MaxCachedIDs     int
	Wrap             bool
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Query    QueryConfig
	GC       cache.GCConfig
	Server   ServerConfig
	Log      logger.Config
	// Filters are the site-wide content filter defaults.
	Filters domain.Preferences
}

func setDefaults(v *viper.Viper) {
	d := db.DefaultConfig()
	v.SetDefault("database.driver", d.Driver)
	v.SetDefault("database.host", d.Host)
	v.SetDefault("database.port", d.Port)
	v.SetDefault("database.user", d.User)
	v.SetDefault("database.password", d.Password)
	v.SetDefault("database.dbname", d.DBName)
	v.SetDefault("database.sslmode", d.SSLMode)
	v.SetDefault("database.path", d.Path)
	v.SetDefault("database.max_conns", d.MaxConns)

	v.SetDefault("query.max_array_length", validator.DefaultMaxArrayLength)
	v.SetDefault("query.max_subquery_depth", query.DefaultMaxSubqueryDepth)
	v.SetDefault("query.max_cached_ids", cache.DefaultMaxCachedIDs)
	v.SetDefault("query.wrap", false)

	gc := cache.DefaultGCConfig()
	v.SetDefault("gc.schedule", gc.Schedule)
	v.SetDefault("gc.unused_ttl", gc.UnusedTTL)
	v.SetDefault("gc.used_ttl", gc.UsedTTL)
	v.SetDefault("gc.batch_size", gc.BatchSize)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads config.yaml from configPath, if present, over the defaults and
// applies OBSQUERY_ environment overrides.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // allow environment overrides

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Str("path", configPath).Msg("no config.yaml found, using defaults and env vars")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}

	cfg := Config{
		Database: db.Config{
			Driver:   v.GetString("database.driver"),
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			Path:     v.GetString("database.path"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		Query: QueryConfig{
			MaxArrayLength:   v.GetInt("query.max_array_length"),
			MaxSubqueryDepth: v.GetInt("query.max_subquery_depth"),
			MaxCachedIDs:     v.GetInt("query.max_cached_ids"),
			Wrap:             v.GetBool("query.wrap"),
		},
		GC: cache.GCConfig{
			Schedule:  v.GetString("gc.schedule"),
			UnusedTTL: v.GetDuration("gc.unused_ttl"),
			UsedTTL:   v.GetDuration("gc.used_ttl"),
			BatchSize: v.GetInt("gc.batch_size"),
		},
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
		Filters: domain.Preferences{},
	}

	if v.IsSet("filters") {
		if err := v.UnmarshalKey("filters", &cfg.Filters); err != nil {
			return Config{}, fmt.Errorf("failed to parse filters: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDBConfig loads only the database section.
func LoadDBConfig(configPath string) (db.Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return db.Config{}, err
	}
	return cfg.Database, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	for name, setting := range c.Filters {
		switch setting.State {
		case domain.FilterOn, domain.FilterOff, domain.FilterEither:
		default:
			return fmt.Errorf("filter %s has unknown state %q", name, setting.State)
		}
	}
	return nil
}
