package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/smhanov/advsearch"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func init() {
	def := advsearch.DefaultConfig()

	pflag.String("config", "", "Path to the configuration file")
	pflag.String("listen-addr", def.ListenAddr, "Host and port for the API server")
	pflag.String("dav-url", "", "WebDAV search endpoint of the storage backend")
	pflag.String("dav-user", "", "User for basic auth against the backend")
	pflag.String("dav-password", "", "Password for basic auth against the backend")
	pflag.String("dav-token", "", "Bearer token for the backend, used instead of basic auth")
	pflag.Int("search-limit", def.SearchLimit, "Default page size for searches")
	pflag.Int("search-retries", def.SearchRetries, "Retries for failed backend requests")
	pflag.String("store-driver", def.StoreDriver, "Saved query store: file or postgres")
	pflag.String("store-path", def.StorePath, "Path of the saved query file")
	pflag.String("database-url", "", "PostgreSQL connection string for the postgres store")
	pflag.String("jwt-secret", "", "If set, API requests need a bearer token signed with this key")
	pflag.Duration("token-ttl", def.TokenTTL, "Lifetime of tokens issued with --token")
	pflag.Int("parse-cache-size", def.ParseCacheSize, "Number of parsed queries to cache, 0 to disable")
	pflag.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")

	f := pflag.CommandLine
	normalizeFunc := f.GetNormalizeFunc()
	f.SetNormalizeFunc(func(flags *pflag.FlagSet, name string) pflag.NormalizedName {
		result := normalizeFunc(flags, name)
		name = strings.ReplaceAll(string(result), "-", "_")
		return pflag.NormalizedName(name)
	})
}

// LoadConfig merges .env, the config file, ADVSEARCH_* environment variables
// and flags, in increasing order of precedence, and installs the result.
func LoadConfig() (advsearch.Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return advsearch.Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	pflag.Parse()

	viper.SetEnvPrefix("advsearch")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return advsearch.Config{}, err
	}
	viper.AutomaticEnv()

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("advsearch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/advsearch")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return advsearch.Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg advsearch.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return advsearch.Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	advsearch.Configure(cfg)
	return cfg, nil
}
