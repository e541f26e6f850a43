package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// MaxHistoryCapacity is the hard upper bound of the recent-places list.
const MaxHistoryCapacity = 5

// Config is the process-wide configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Places  PlacesConfig  `yaml:"places"`
	Cache   CacheConfig   `yaml:"cache"`
	Map     MapConfig     `yaml:"map"`
	History HistoryConfig `yaml:"history"`
	Auth    AuthConfig    `yaml:"auth"`
	Stream  StreamConfig  `yaml:"stream"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
	Paths   PathsConfig   `yaml:"paths"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// PlacesConfig configures the place details provider.
type PlacesConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Language      string        `yaml:"language"`
	Timeout       time.Duration `yaml:"timeout"`
	PhotoMaxWidth int           `yaml:"photo_max_width"`
}

// CacheConfig configures the redis details cache. Disabled means lookups
// always hit the provider.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
}

type MapConfig struct {
	DefaultCenter CenterConfig `yaml:"default_center"`
	DefaultZoom   int          `yaml:"default_zoom"`
	DetailZoom    int          `yaml:"detail_zoom"`
}

type CenterConfig struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// AuthConfig holds the token settings and the bcrypt-hashed users.
type AuthConfig struct {
	Enabled    bool              `yaml:"enabled"`
	SigningKey string            `yaml:"signing_key"`
	TokenTTL   time.Duration     `yaml:"token_ttl"`
	Users      map[string]string `yaml:"users"`
}

type StreamConfig struct {
	PingInterval  time.Duration `yaml:"ping_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	QueueCapacity int           `yaml:"queue_capacity"`
	TaskTimeout   time.Duration `yaml:"task_timeout"`
}

type SessionConfig struct {
	MaxInactiveTime time.Duration `yaml:"max_inactive_time"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	LookupTimeout   time.Duration `yaml:"lookup_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PathsConfig struct {
	CategoryLabels string `yaml:"category_labels"`
}

// Default returns a config usable without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, fills defaults, then applies env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	log.Debug().
		Str("path", path).
		Str("addr", cfg.Server.Addr).
		Str("places_base_url", cfg.Places.BaseURL).
		Bool("cache", cfg.Cache.Enabled).
		Bool("auth", cfg.Auth.Enabled).
		Msg("config loaded")

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	if c.Places.BaseURL == "" {
		c.Places.BaseURL = "https://maps.googleapis.com/maps/api/place"
	}
	if c.Places.Language == "" {
		c.Places.Language = "es"
	}
	if c.Places.Timeout == 0 {
		c.Places.Timeout = 10 * time.Second
	}
	if c.Places.PhotoMaxWidth == 0 {
		c.Places.PhotoMaxWidth = 400
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Map.DefaultCenter == (CenterConfig{}) {
		c.Map.DefaultCenter = CenterConfig{Lat: 4.711, Lng: -74.072}
	}
	if c.Map.DefaultZoom == 0 {
		c.Map.DefaultZoom = 12
	}
	if c.Map.DetailZoom == 0 {
		c.Map.DetailZoom = 15
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = MaxHistoryCapacity
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = 30 * time.Second
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = 5 * time.Second
	}
	if c.Stream.QueueCapacity == 0 {
		c.Stream.QueueCapacity = 100
	}
	if c.Stream.TaskTimeout == 0 {
		c.Stream.TaskTimeout = 10 * time.Second
	}
	if c.Session.MaxInactiveTime == 0 {
		c.Session.MaxInactiveTime = 30 * time.Minute
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = time.Minute
	}
	if c.Session.LookupTimeout == 0 {
		c.Session.LookupTimeout = c.Places.Timeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// applyEnv lets secrets come from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("PLACES_API_KEY"); v != "" {
		c.Places.APIKey = v
	}
	if v := os.Getenv("PLACES_BASE_URL"); v != "" {
		c.Places.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
		c.Cache.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		// ignore parse errors, keep the file value
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Cache.DB = n
		}
	}
	if v := os.Getenv("AUTH_SIGNING_KEY"); v != "" {
		c.Auth.SigningKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Places.APIKey == "" {
		return errors.New("places API key is required (set PLACES_API_KEY env var or config)")
	}
	if c.History.Capacity < 1 || c.History.Capacity > MaxHistoryCapacity {
		return errors.Errorf("history capacity must be between 1 and %d, got %d", MaxHistoryCapacity, c.History.Capacity)
	}
	if c.Map.DetailZoom < 0 || c.Map.DefaultZoom < 0 {
		return errors.New("zoom levels must not be negative")
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required when the cache is enabled")
	}
	if c.Auth.Enabled && c.Auth.SigningKey == "" {
		return errors.New("auth signing key is required when auth is enabled (set AUTH_SIGNING_KEY)")
	}
	return nil
}
