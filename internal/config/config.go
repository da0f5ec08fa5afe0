package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Broker struct {
		URL            string `yaml:"url"`
		Host           string `yaml:"host"`
		Login          string `yaml:"login"`
		Passcode       string `yaml:"passcode"`
		ReconnectDelay string `yaml:"reconnect_delay"`
		WriteTimeout   string `yaml:"write_timeout"`
	} `yaml:"broker"`
	API struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	History struct {
		TTL string `yaml:"ttl"`
	} `yaml:"history"`
	Snapshot struct {
		TTL string `yaml:"ttl"`
	} `yaml:"snapshot"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path, then applies environment overrides. A
// missing file is not an error: the environment alone can configure the client.
// A .env file in the working directory is loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Broker.URL, "BROKER_URL")
	override(&cfg.Broker.Login, "BROKER_LOGIN")
	override(&cfg.Broker.Passcode, "BROKER_PASSCODE")
	override(&cfg.Broker.ReconnectDelay, "BROKER_RECONNECT_DELAY")
	override(&cfg.API.BaseURL, "API_BASE_URL")
	override(&cfg.API.Token, "API_TOKEN")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	override(&cfg.Postgres.URL, "DATABASE_URL")
	override(&cfg.Log.Level, "LOG_LEVEL")
	override(&cfg.Log.Format, "LOG_FORMAT")
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
