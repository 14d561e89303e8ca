package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lmia-map/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Dataset   DatasetConfig   `yaml:"dataset" mapstructure:"dataset"`
	Viewport  ViewportConfig  `yaml:"viewport" mapstructure:"viewport"`
	Gazetteer GazetteerConfig `yaml:"gazetteer" mapstructure:"gazetteer"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port              int           `yaml:"port" mapstructure:"port"`
	CORSOrigins       []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst    int           `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DatasetConfig configures the period catalog and its cache.
type DatasetConfig struct {
	DataDir         string        `yaml:"data_dir" mapstructure:"data_dir"`
	CacheMaxPeriods int           `yaml:"cache_max_periods" mapstructure:"cache_max_periods"`
	CacheTTL        time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	LoadTimeout     time.Duration `yaml:"load_timeout" mapstructure:"load_timeout"`
	Preload         []string      `yaml:"preload" mapstructure:"preload"`
}

// ViewportConfig tunes the aggregation pipeline.
type ViewportConfig struct {
	RegionTopN       int           `yaml:"region_top_n" mapstructure:"region_top_n"`
	CityTopN         int           `yaml:"city_top_n" mapstructure:"city_top_n"`
	CityMode         string        `yaml:"city_mode" mapstructure:"city_mode"`
	ClusterAlgorithm string        `yaml:"cluster_algorithm" mapstructure:"cluster_algorithm"`
	GridCellDegrees  float64       `yaml:"grid_cell_degrees" mapstructure:"grid_cell_degrees"`
	ClusterTimeout   time.Duration `yaml:"cluster_timeout" mapstructure:"cluster_timeout"`
	ClusterWorkers   int           `yaml:"cluster_workers" mapstructure:"cluster_workers"`
	MinClusterSize   int           `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
}

// GazetteerConfig selects the place-name backend used during ingest.
type GazetteerConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedisConfig configures the optional response cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// SyncConfig lists the LMIA publications to download.
type SyncConfig struct {
	BaseURL       string     `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string     `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSecond float64    `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Files         []SyncFile `yaml:"files" mapstructure:"files"`
}

// SyncFile is one publication. URL may be relative to SyncConfig.BaseURL.
type SyncFile struct {
	Year int    `yaml:"year" mapstructure:"year"`
	URL  string `yaml:"url" mapstructure:"url"`
	Name string `yaml:"name" mapstructure:"name"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LMIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("dataset.data_dir", "data")
	v.SetDefault("dataset.cache_max_periods", 8)
	v.SetDefault("dataset.cache_ttl", time.Hour)
	v.SetDefault("dataset.load_timeout", 30*time.Second)
	v.SetDefault("dataset.preload", []string{})
	v.SetDefault("viewport.region_top_n", 5)
	v.SetDefault("viewport.city_top_n", 10)
	v.SetDefault("viewport.city_mode", "cluster")
	v.SetDefault("viewport.cluster_algorithm", "greedy")
	v.SetDefault("viewport.grid_cell_degrees", 0.01)
	v.SetDefault("viewport.cluster_timeout", 2*time.Second)
	v.SetDefault("viewport.cluster_workers", 4)
	v.SetDefault("viewport.min_cluster_size", 2)
	v.SetDefault("gazetteer.driver", "static")
	v.SetDefault("gazetteer.sqlite_path", "gazetteer.db")
	v.SetDefault("gazetteer.database_url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)
	v.SetDefault("sync.base_url", "")
	v.SetDefault("sync.user_agent", "lmia-map/1.0")
	v.SetDefault("sync.rate_per_second", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// PreloadPeriods parses dataset.preload into periods.
func (c *Config) PreloadPeriods() ([]model.Period, error) {
	out := make([]model.Period, 0, len(c.Dataset.Preload))
	for _, key := range c.Dataset.Preload {
		p, err := model.ParsePeriodKey(key)
		if err != nil {
			return nil, eris.Wrap(err, "config: dataset.preload")
		}
		out = append(out, p)
	}
	return out, nil
}

// Validate checks the settings a command needs. mode is one of "serve",
// "ingest", "gazetteer" or "sync".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535 (got %d)", c.Server.Port))
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server.rate_limit_rps must not be negative")
		}
		if c.Dataset.CacheMaxPeriods <= 0 {
			errs = append(errs, "dataset.cache_max_periods must be positive")
		}
		if !slices.Contains([]string{"cluster", "group"}, c.Viewport.CityMode) {
			errs = append(errs, fmt.Sprintf("viewport.city_mode must be cluster or group (got %q)", c.Viewport.CityMode))
		}
		if !slices.Contains([]string{"greedy", "grid"}, c.Viewport.ClusterAlgorithm) {
			errs = append(errs, fmt.Sprintf("viewport.cluster_algorithm must be greedy or grid (got %q)", c.Viewport.ClusterAlgorithm))
		}
		if c.Viewport.ClusterAlgorithm == "grid" && c.Viewport.GridCellDegrees <= 0 {
			errs = append(errs, "viewport.grid_cell_degrees must be positive")
		}
		if _, err := c.PreloadPeriods(); err != nil {
			errs = append(errs, err.Error())
		}
		if c.Dataset.DataDir == "" {
			errs = append(errs, "dataset.data_dir is required")
		}
	case "ingest", "gazetteer":
		switch c.Gazetteer.Driver {
		case "static":
			if mode == "gazetteer" {
				errs = append(errs, "gazetteer.driver must be sqlite or postgres to import places")
			}
		case "sqlite":
			if c.Gazetteer.SQLitePath == "" {
				errs = append(errs, "gazetteer.sqlite_path is required")
			}
		case "postgres":
			if c.Gazetteer.DatabaseURL == "" {
				errs = append(errs, "gazetteer.database_url is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("gazetteer.driver must be static, sqlite or postgres (got %q)", c.Gazetteer.Driver))
		}
	case "sync":
		if c.Dataset.DataDir == "" {
			errs = append(errs, "dataset.data_dir is required")
		}
		if len(c.Sync.Files) == 0 {
			errs = append(errs, "sync.files is empty")
		}
		for i, f := range c.Sync.Files {
			if f.Year <= 0 || f.URL == "" {
				errs = append(errs, fmt.Sprintf("sync.files[%d] needs year and url", i))
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
