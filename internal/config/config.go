// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds everything the client needs to reach a table.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	FastPoll       time.Duration `yaml:"fast_poll"`
	SlowPoll       time.Duration `yaml:"slow_poll"`
	QuickChatPoll  time.Duration `yaml:"quick_chat_poll"`

	SessionFile string `yaml:"session_file"`

	RedisAddr      string `yaml:"redis_addr"`
	RedisDB        int    `yaml:"redis_db"`
	SessionKey     string `yaml:"session_key"`
	HistorianQueue string `yaml:"historian_queue"`

	HistorianBatchSize int           `yaml:"historian_batch_size"`
	HistorianFlush     time.Duration `yaml:"historian_flush"`
	Postgres           Postgres      `yaml:"postgres"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BaseURL:        "http://localhost:8080",
		RequestTimeout: 8 * time.Second,
		FastPoll:       700 * time.Millisecond,
		SlowPoll:       1200 * time.Millisecond,
		QuickChatPoll:  1500 * time.Millisecond,
		SessionFile:    defaultSessionFile(),
		SessionKey:     "tablesync:session",
		HistorianQueue: "tablesync_records",
		LogLevel:       "info",

		HistorianBatchSize: 20,
		HistorianFlush:     500 * time.Millisecond,
		Postgres: Postgres{
			Host:     "localhost",
			Port:     "5432",
			Database: "tablesync",
		},
	}
}

// Postgres locates the historian database.
type Postgres struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

// URL is the pgx connection string.
func (p Postgres) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		url.QueryEscape(p.User), url.QueryEscape(p.Password), p.Host, p.Port, p.Database)
}

// Load layers the YAML file named by TABLESYNC_CONFIG (if any) over the
// defaults, then environment variables over both.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("TABLESYNC_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.BaseURL = getEnv("TABLESYNC_BASE_URL", c.BaseURL)
	c.RequestTimeout = getEnvDuration("TABLESYNC_REQUEST_TIMEOUT", c.RequestTimeout)
	c.FastPoll = getEnvDuration("TABLESYNC_FAST_POLL", c.FastPoll)
	c.SlowPoll = getEnvDuration("TABLESYNC_SLOW_POLL", c.SlowPoll)
	c.QuickChatPoll = getEnvDuration("TABLESYNC_QUICKCHAT_POLL", c.QuickChatPoll)
	c.SessionFile = getEnv("TABLESYNC_SESSION_FILE", c.SessionFile)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.SessionKey = getEnv("TABLESYNC_SESSION_KEY", c.SessionKey)
	c.HistorianQueue = getEnv("HISTORIAN_QUEUE_NAME", c.HistorianQueue)
	c.LogLevel = getEnv("TABLESYNC_LOG_LEVEL", c.LogLevel)

	c.HistorianBatchSize = getEnvInt("HISTORIAN_BATCH_SIZE", c.HistorianBatchSize)
	c.HistorianFlush = getEnvDuration("HISTORIAN_FLUSH_MS", c.HistorianFlush)
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.Host = getEnv("PG_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnv("PG_PORT", c.Postgres.Port)
	c.Postgres.Database = getEnv("PG_DATABASE", c.Postgres.Database)
}

// Validate rejects settings the loops cannot run with.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if c.FastPoll <= 0 || c.SlowPoll <= 0 || c.QuickChatPoll <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level is the parsed log level, falling back to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".tablesync-session.json"
	}
	return dir + string(os.PathSeparator) + "tablesync" + string(os.PathSeparator) + "session.json"
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("700ms") or bare milliseconds ("700").
func getEnvDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
