package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPServer struct {
	Port string `mapstructure:"port"`
}

type DbServer struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"pass"`
	Name     string `mapstructure:"name"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (config *DbServer) GetConnectionStr() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		config.User, config.Pass, config.Host, config.Port, config.Name,
	)
}

type HTTPClient struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type Logging struct {
	Level string `mapstructure:"level"`
}

type Feed struct {
	BaseURL string `mapstructure:"base_url"`
}

type Cache struct {
	Backend   string `mapstructure:"backend"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TTLHours  int    `mapstructure:"ttl_hours"`
	MaxItems  int64  `mapstructure:"max_items"`
}

func (c Cache) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Scheduler struct {
	RunAt           string   `mapstructure:"run_at"`
	Location        string   `mapstructure:"location"`
	RetentionMonths int      `mapstructure:"retention_months"`
	Holidays        []string `mapstructure:"holidays"`
}

// RunAtClock returns hour and minute of the daily run.
func (s Scheduler) RunAtClock() (int, int, error) {
	t, err := time.Parse("15:04", s.RunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid scheduler.run_at %q: %w", s.RunAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

type Migrations struct {
	MaxRetries             int `mapstructure:"max_retries"`
	InitialIntervalSeconds int `mapstructure:"initial_interval_seconds"`
}

type AppConfig struct {
	HTTPServer HTTPServer `mapstructure:"http_server"`
	DbServer   DbServer   `mapstructure:"db_server"`
	HTTPClient HTTPClient `mapstructure:"http_client"`
	Logging    Logging    `mapstructure:"logging"`
	Feed       Feed       `mapstructure:"feed"`
	Cache      Cache      `mapstructure:"cache"`
	Redis      Redis      `mapstructure:"redis"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Migrations Migrations `mapstructure:"migrations"`
}

func Init() (*AppConfig, error) {
	return Load("config.yaml")
}

// Load reads the yaml file at path (if present), then environment overrides.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetDefault("http_server.port", "8080")
	v.SetDefault("db_server.max_conns", 10)
	v.SetDefault("http_client.timeout_seconds", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("feed.base_url", "https://www.tcmb.gov.tr/kurlar")
	v.SetDefault("cache.backend", "redis")
	v.SetDefault("cache.key_prefix", "exchange_rate")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.max_items", 10000)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("scheduler.run_at", "15:30")
	v.SetDefault("scheduler.location", "Europe/Istanbul")
	v.SetDefault("scheduler.retention_months", 2)
	v.SetDefault("scheduler.holidays", []string{"01-01", "04-23", "05-01", "05-19", "07-15", "08-30", "10-29"})
	v.SetDefault("migrations.max_retries", 5)
	v.SetDefault("migrations.initial_interval_seconds", 10)

	// db server env vars
	_ = v.BindEnv("db_server.host", "DB_HOST")
	_ = v.BindEnv("db_server.port", "DB_PORT")
	_ = v.BindEnv("db_server.user", "DB_USER")
	_ = v.BindEnv("db_server.pass", "DB_PASS")
	_ = v.BindEnv("db_server.name", "DB_NAME")
	_ = v.BindEnv("db_server.max_conns", "DB_MAX_CONNS")

	// redis env vars
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")

	_ = v.BindEnv("http_server.port", "HTTP_PORT")
	_ = v.BindEnv("http_client.timeout_seconds", "HTTP_CLIENT_TIMEOUT_SECONDS")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("feed.base_url", "FEED_BASE_URL")
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("scheduler.retention_months", "RETENTION_MONTHS")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) validate() error {
	if cfg.Scheduler.RetentionMonths <= 0 {
		return fmt.Errorf("scheduler.retention_months must be positive, got %d", cfg.Scheduler.RetentionMonths)
	}
	if _, _, err := cfg.Scheduler.RunAtClock(); err != nil {
		return err
	}
	if cfg.Cache.Backend != "redis" && cfg.Cache.Backend != "memory" {
		return fmt.Errorf("cache.backend must be \"redis\" or \"memory\", got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be positive, got %d", cfg.Cache.TTLHours)
	}
	return nil
}
