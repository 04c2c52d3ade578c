package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("TABLESYNC_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 700*time.Millisecond, cfg.FastPoll)
	assert.Equal(t, 1200*time.Millisecond, cfg.SlowPoll)
	assert.Equal(t, 1500*time.Millisecond, cfg.QuickChatPoll)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
}

func TestYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tablesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://cards.example:9000
fast_poll: 500ms
slow_poll: 2s
redis_addr: localhost:6379
redis_db: 2
log_level: debug
`), 0o600))

	t.Setenv("TABLESYNC_CONFIG", path)
	t.Setenv("TABLESYNC_SLOW_POLL", "1500")
	t.Setenv("REDIS_DB", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://cards.example:9000", cfg.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.FastPoll)
	assert.Equal(t, 1500*time.Millisecond, cfg.SlowPoll, "env wins over yaml")
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 5, cfg.RedisDB)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
}

func TestBadInputs(t *testing.T) {
	t.Setenv("TABLESYNC_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TABLESYNC_CONFIG", "")
	t.Setenv("TABLESYNC_LOG_LEVEL", "chatty")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("TABLESYNC_LOG_LEVEL", "")
	t.Setenv("TABLESYNC_FAST_POLL", "0s")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("TABLESYNC_FAST_POLL", "soon")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 700*time.Millisecond, cfg.FastPoll, "unparseable values keep the previous layer")
}

func TestHistorianSettings(t *testing.T) {
	t.Setenv("TABLESYNC_CONFIG", "")
	t.Setenv("HISTORIAN_FLUSH_MS", "250")
	t.Setenv("POSTGRES_USER", "sync")
	t.Setenv("POSTGRES_PASSWORD", "p@ss")
	t.Setenv("PG_HOST", "db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.HistorianBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.HistorianFlush)
	assert.Equal(t, "postgres://sync:p%40ss@db:5432/tablesync", cfg.Postgres.URL())
}
