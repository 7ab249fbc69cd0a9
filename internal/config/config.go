package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"listing_syncer/internal/domain"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	API      APIConfig      `yaml:"api"`
	Sync     SyncConfig     `yaml:"sync"`
	State    StateConfig    `yaml:"state"`
	HTTP     HTTPConfig     `yaml:"http"`
	LogLevel string         `yaml:"log_level"`
}

// RabbitMQConfig configures listing change events. An empty URL disables publishing.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	AuthURL   string        `yaml:"auth_url"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

type SyncConfig struct {
	Interval             time.Duration     `yaml:"interval"`
	ReconcileInterval    time.Duration     `yaml:"reconcile_interval"`
	ExpireInterval       time.Duration     `yaml:"expire_interval"`
	PageSize             int               `yaml:"page_size"`
	LongLookback         time.Duration     `yaml:"long_lookback"`
	LongLookbackPageSize int               `yaml:"long_lookback_page_size"`
	ChapterSize          int               `yaml:"chapter_size"`
	HistoryPageSize      int               `yaml:"history_page_size"`
	HistoryBatchSize     int               `yaml:"history_batch_size"`
	ActiveBatchSize      int               `yaml:"active_batch_size"`
	ImportBatchSize      int               `yaml:"import_batch_size"`
	StateTTL             time.Duration     `yaml:"state_ttl"`
	Filters              map[string]string `yaml:"filters"`
	TaskMaxAttempts      int               `yaml:"task_max_attempts"`
	TaskVisibility       time.Duration     `yaml:"task_visibility"`
	PollInterval         time.Duration     `yaml:"poll_interval"`
}

// ApprovedOnly reports whether the listing filter restricts the sync to approved listings.
func (s SyncConfig) ApprovedOnly() bool {
	return s.Filters["set"] == "toonly"
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML, expanding environment references.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// Validate checks settings without which no run can succeed.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return &domain.ConfigurationError{Field: "api.base_url", Msg: "must be set"}
	}
	if c.API.Username == "" || c.API.Password == "" {
		return &domain.ConfigurationError{Field: "api.username/api.password", Msg: "credentials missing"}
	}
	return nil
}

// authURL places the login endpoint at the root of the API host.
func authURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.TrimRight(baseURL, "/") + "/rest-auth/login/"
	}
	return u.Scheme + "://" + u.Host + "/rest-auth/login/"
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.URL != "" {
		if c.RabbitMQ.Exchange == "" {
			c.RabbitMQ.Exchange = "listing_syncer"
		}
		if c.RabbitMQ.RoutingKey == "" {
			c.RabbitMQ.RoutingKey = "listings"
		}
		if c.RabbitMQ.QueueName == "" {
			c.RabbitMQ.QueueName = "cms_listings"
		}
	}
	if c.API.AuthURL == "" && c.API.BaseURL != "" {
		c.API.AuthURL = authURL(c.API.BaseURL)
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = 5
	}
	if c.API.Burst == 0 {
		c.API.Burst = 5
	}
	if c.API.Breaker.MaxRequests == 0 {
		c.API.Breaker.MaxRequests = 3
	}
	if c.API.Breaker.Interval == 0 {
		c.API.Breaker.Interval = time.Minute
	}
	if c.API.Breaker.Timeout == 0 {
		c.API.Breaker.Timeout = 2 * time.Minute
	}
	if c.API.Breaker.ConsecutiveFailures == 0 {
		c.API.Breaker.ConsecutiveFailures = 5
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = time.Hour
	}
	if c.Sync.ReconcileInterval == 0 {
		c.Sync.ReconcileInterval = 24 * time.Hour
	}
	if c.Sync.ExpireInterval == 0 {
		c.Sync.ExpireInterval = 24 * time.Hour
	}
	if c.Sync.PageSize == 0 {
		c.Sync.PageSize = 50
	}
	if c.Sync.LongLookback == 0 {
		c.Sync.LongLookback = 30 * 24 * time.Hour
	}
	if c.Sync.LongLookbackPageSize == 0 {
		c.Sync.LongLookbackPageSize = 20
	}
	if c.Sync.ChapterSize == 0 {
		c.Sync.ChapterSize = 5
	}
	if c.Sync.HistoryPageSize == 0 {
		c.Sync.HistoryPageSize = 200
	}
	if c.Sync.HistoryBatchSize == 0 {
		c.Sync.HistoryBatchSize = 500
	}
	if c.Sync.ActiveBatchSize == 0 {
		c.Sync.ActiveBatchSize = 500
	}
	if c.Sync.ImportBatchSize == 0 {
		c.Sync.ImportBatchSize = 25
	}
	if c.Sync.StateTTL == 0 {
		c.Sync.StateTTL = 24 * time.Hour
	}
	if c.Sync.TaskMaxAttempts == 0 {
		c.Sync.TaskMaxAttempts = 3
	}
	if c.Sync.TaskVisibility == 0 {
		c.Sync.TaskVisibility = 10 * time.Minute
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = 2 * time.Second
	}
	if c.State.Dir == "" {
		c.State.Dir = "data/state"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
