package advsearch

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds the configuration settings for the service.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// Search backend
	DavURL        string `mapstructure:"dav_url"`
	DavUser       string `mapstructure:"dav_user"`
	DavPassword   string `mapstructure:"dav_password"`
	DavToken      string `mapstructure:"dav_token"`
	SearchLimit   int    `mapstructure:"search_limit"`
	SearchRetries int    `mapstructure:"search_retries"`

	// Saved queries
	StoreDriver string `mapstructure:"store_driver"`
	StorePath   string `mapstructure:"store_path"`
	DatabaseURL string `mapstructure:"database_url"`

	// If set, /api/v1 requires a bearer token signed with this key.
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	ParseCacheSize int    `mapstructure:"parse_cache_size"`
	LogLevel       string `mapstructure:"log_level"`
}

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

var globalConfig Config

func init() {
	globalConfig = DefaultConfig()
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "0.0.0.0:8080",
		SearchLimit:    100,
		SearchRetries:  3,
		StoreDriver:    StoreFile,
		StorePath:      "./data/queries.dat",
		TokenTTL:       24 * time.Hour,
		ParseCacheSize: 1024,
		LogLevel:       "info",
	}
}

func Configure(cfg Config) {
	globalConfig = cfg
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}
}

// CurrentConfig returns the configuration installed by Configure.
func CurrentConfig() Config {
	return globalConfig
}
