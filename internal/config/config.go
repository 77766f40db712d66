package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Storage   StorageConfig
	STT       STTConfig
	Extract   ExtractConfig
	Pipeline  PipelineConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// StorageConfig points at the object store holding uploaded recordings.
type StorageConfig struct {
	BaseURL    string
	Bucket     string
	ServiceKey string
	Timeout    time.Duration
}

// STTConfig configures the speech-to-text provider.
type STTConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// ExtractConfig configures the generative extraction provider.
type ExtractConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// PipelineConfig holds cross-stage settings for memo analysis.
type PipelineConfig struct {
	// Timezone is the canonical zone used to resolve relative date
	// phrases ("tomorrow at 3pm") independent of where the server runs.
	Timezone string
}

type RateLimitConfig struct {
	Enabled   bool
	MaxReqs   int
	WindowSec int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Storage: StorageConfig{
			BaseURL:    k.String("storage.base.url"),
			Bucket:     k.String("storage.bucket"),
			ServiceKey: k.String("storage.service.key"),
		},
		STT: STTConfig{
			BaseURL:  k.String("stt.base.url"),
			APIKey:   k.String("stt.api.key"),
			Model:    k.String("stt.model"),
			Language: k.String("stt.language"),
		},
		Extract: ExtractConfig{
			BaseURL: k.String("extract.base.url"),
			APIKey:  k.String("extract.api.key"),
			Model:   k.String("extract.model"),
		},
		Pipeline: PipelineConfig{
			Timezone: k.String("pipeline.timezone"),
		},
		RateLimit: RateLimitConfig{
			Enabled:   k.Bool("ratelimit.enabled"),
			MaxReqs:   k.Int("ratelimit.max.reqs"),
			WindowSec: k.Int("ratelimit.window.sec"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "voxnote"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "voxnote"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "audio-memos"
	}
	if cfg.STT.BaseURL == "" {
		cfg.STT.BaseURL = "https://api.openai.com"
	}
	if cfg.STT.Model == "" {
		cfg.STT.Model = "whisper-1"
	}
	if cfg.STT.Language == "" {
		cfg.STT.Language = "ko"
	}
	if cfg.Extract.BaseURL == "" {
		cfg.Extract.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Extract.Model == "" {
		cfg.Extract.Model = "gemini-1.5-pro"
	}
	if cfg.Pipeline.Timezone == "" {
		cfg.Pipeline.Timezone = "Asia/Seoul"
	}
	if cfg.RateLimit.MaxReqs == 0 {
		cfg.RateLimit.MaxReqs = 10
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse timeouts
	cfg.Storage.Timeout, err = parseTimeout(k.String("storage.timeout"), 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("parsing storage timeout: %w", err)
	}
	cfg.STT.Timeout, err = parseTimeout(k.String("stt.timeout"), 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("parsing stt timeout: %w", err)
	}
	cfg.Extract.Timeout, err = parseTimeout(k.String("extract.timeout"), 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("parsing extract timeout: %w", err)
	}

	return cfg, nil
}

func parseTimeout(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
