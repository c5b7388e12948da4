package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // bearer key for the public API
}

type AdminConfig struct {
	Password     string        `yaml:"password"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SecureCookie bool          `yaml:"secure_cookie"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Lane            string        `yaml:"lane"`    // lane a worker process consumes
	Workers         int           `yaml:"workers"` // worker goroutines per process
	PollInterval    time.Duration `yaml:"poll_interval"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ResultTTL       time.Duration `yaml:"result_ttl"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	RetentionDays   int           `yaml:"retention_days"`
}

type WorkflowConfig struct {
	DefaultLimit int           `yaml:"default_limit"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

type ResolverConfig struct {
	OpenAIKey     string `yaml:"openai_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	GeminiKey     string `yaml:"gemini_key"`
	GeminiURL     string `yaml:"gemini_url"`
	Model         string `yaml:"model"`
}

type GitHubConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

type LinkedInConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Resolver ResolverConfig `yaml:"resolver"`
	GitHub   GitHubConfig   `yaml:"github"`
	LinkedIn LinkedInConfig `yaml:"linkedin"`
	Notify   NotifyConfig   `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Queue.Lane == "" {
		cfg.Queue.Lane = "default"
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 500 * time.Millisecond
	}
	if cfg.Queue.JobTimeout <= 0 {
		cfg.Queue.JobTimeout = time.Hour
	}
	if cfg.Queue.ResultTTL <= 0 {
		cfg.Queue.ResultTTL = 24 * time.Hour
	}
	if cfg.Queue.MonitorInterval <= 0 {
		cfg.Queue.MonitorInterval = 15 * time.Second
	}
	if cfg.Queue.RetentionDays <= 0 {
		cfg.Queue.RetentionDays = 7
	}
	if cfg.Workflow.DefaultLimit <= 0 {
		cfg.Workflow.DefaultLimit = 50
	}
	if cfg.Workflow.SessionTTL <= 0 {
		cfg.Workflow.SessionTTL = 24 * time.Hour
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Resolver.Model == "" {
		cfg.Resolver.Model = "gpt-4o-mini"
	}
	if cfg.GitHub.BaseURL == "" {
		cfg.GitHub.BaseURL = "https://api.github.com"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if _, ok := map[string]bool{"high": true, "default": true, "low": true}[cfg.Queue.Lane]; !ok {
		return nil, fmt.Errorf("queue.lane must be high|default|low, got %q", cfg.Queue.Lane)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
