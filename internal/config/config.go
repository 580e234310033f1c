// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order of precedence (environment wins).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "NEWS_AGGREGATOR_CONFIG"

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	NewsAPI  NewsAPIConfig  `yaml:"newsapi"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig describes the Postgres connection. URL, when set, takes
// precedence over the individual fields.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	Name         string `yaml:"name"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

type HTTPConfig struct {
	Port string `yaml:"port"`
}

type NewsAPIConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig drives the background jobs. Sample counts, when positive,
// replace the explicit Countries/Categories with a random draw per run.
type SyncConfig struct {
	Disabled          bool          `yaml:"disabled"`
	SourcesInterval   time.Duration `yaml:"sourcesInterval"`
	HeadlinesInterval time.Duration `yaml:"headlinesInterval"`
	Countries         []string      `yaml:"countries"`
	Categories        []string      `yaml:"categories"`
	Sources           []string      `yaml:"sources"`
	Query             string        `yaml:"query"`
	Language          string        `yaml:"language"`
	SampleCountries   int           `yaml:"sampleCountries"`
	SampleCategories  int           `yaml:"sampleCategories"`
	Concurrency       int           `yaml:"concurrency"`
	LockTTL           time.Duration `yaml:"lockTTL"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env (if present), the YAML file named by NEWS_AGGREGATOR_CONFIG
// (if set) and then applies environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg, nil
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			Name:         "news_db",
			User:         "news_user",
			Password:     "news_pass",
			MaxOpenConns: 10,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			CacheTTL: 10 * time.Minute,
		},
		HTTP:    HTTPConfig{Port: "8080"},
		NewsAPI: NewsAPIConfig{BaseURL: "https://newsapi.org/v2", Timeout: 30 * time.Second},
		Sync: SyncConfig{
			SourcesInterval:   24 * time.Hour,
			HeadlinesInterval: time.Hour,
			Concurrency:       1,
			LockTTL:           15 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASS")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")

	setString(&c.HTTP.Port, "PORT")

	setString(&c.NewsAPI.APIKey, "NEWS_API_KEY")
	setString(&c.NewsAPI.BaseURL, "NEWS_API_URL")

	setString(&c.Logging.Level, "LOG_LEVEL")

	setBool(&c.Sync.Disabled, "SYNC_DISABLED")
	setDuration(&c.Sync.SourcesInterval, "SYNC_SOURCES_INTERVAL")
	setDuration(&c.Sync.HeadlinesInterval, "SYNC_HEADLINES_INTERVAL")
	setList(&c.Sync.Countries, "SYNC_COUNTRIES")
	setList(&c.Sync.Categories, "SYNC_CATEGORIES")
	setList(&c.Sync.Sources, "SYNC_SOURCES")
	setString(&c.Sync.Query, "SYNC_QUERY")
	setString(&c.Sync.Language, "SYNC_LANGUAGE")
	setInt(&c.Sync.SampleCountries, "SYNC_SAMPLE_COUNTRIES")
	setInt(&c.Sync.SampleCategories, "SYNC_SAMPLE_CATEGORIES")
	setInt(&c.Sync.Concurrency, "SYNC_CONCURRENCY")
}

// normalize replaces unusable values with defaults.
func (c *Config) normalize() {
	def := Default()
	if c.Sync.SourcesInterval <= 0 {
		c.Sync.SourcesInterval = def.Sync.SourcesInterval
	}
	if c.Sync.HeadlinesInterval <= 0 {
		c.Sync.HeadlinesInterval = def.Sync.HeadlinesInterval
	}
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = 1
	}
	if c.Sync.LockTTL <= 0 {
		c.Sync.LockTTL = def.Sync.LockTTL
	}
	if c.NewsAPI.Timeout <= 0 {
		c.NewsAPI.Timeout = def.NewsAPI.Timeout
	}
	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = def.Redis.CacheTTL
	}
	if c.HTTP.Port == "" {
		c.HTTP.Port = def.HTTP.Port
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	*dst = SplitList(v)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
