package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  timeout: "20s"
logging:
  level: debug
  console: true
delivery:
  default_recipients: [42, 99]
  rate_per_sec: 0.5
  retry:
    max_attempts: 5
    base_delay: "2s"
monitor:
  enabled: true
  interval: "30s"
  cpu_threshold: 75
scheduler:
  enabled: true
  timezone: "UTC"
`)

	m := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []int64{42, 99}, cfg.Delivery.DefaultRecipients)
	assert.Same(t, cfg, m.Get())
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "telegram": {"token": "t"},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}, "telegram": {"enabled": false, "chat_id": 0}},
  "delivery": {"retry": {}},
  "subscriptions": {"path": "subs.json"},
  "monitor": {"enabled": false},
  "scheduler": {"enabled": false},
  "http": {"enabled": false}
}`)

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "subs.json", cfg.Subscriptions.Path)
}

func TestUnknownFieldRejected(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "t"
  totally_unknown: 1
`)
	_, err := NewManager(path).Load()
	assert.Error(t, err)
}

func TestTrailingDataRejected(t *testing.T) {
	path := writeFile(t, "config.json", `{"telegram":{"token":"t"}}{"extra":true}`)
	_, err := NewManager(path).Load()
	assert.Error(t, err)
}

func TestResolveDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"

	s, err := cfg.Resolve()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, s.Telegram.Timeout)
	assert.Equal(t, "info", s.Logging.Level)
	assert.Equal(t, "Markdown", s.Delivery.ParseMode)
	assert.Equal(t, 4096, s.Delivery.MaxMessageLen)
	assert.Equal(t, 3, s.Delivery.Retry.MaxAttempts)
	assert.Equal(t, time.Second, s.Delivery.Retry.BaseDelay)
	assert.Equal(t, 2.0, s.Delivery.Retry.ExpBase)
	assert.Equal(t, "subscriptions.json", s.SubscriptionsPath)
	assert.Equal(t, time.Minute, s.Monitor.Interval)
	assert.Equal(t, 80.0, s.Monitor.CPUThreshold)
	assert.Equal(t, 90.0, s.Monitor.DiskThreshold)
	assert.Equal(t, 5*time.Minute, s.Monitor.AlertCooldown)
	assert.Equal(t, "/", s.Monitor.DiskPath)
	assert.Equal(t, 5, s.Scheduler.Workers)
	assert.Equal(t, "127.0.0.1:8080", s.HTTP.Addr)
	assert.False(t, s.Storage.Enabled)
}

func TestResolveRequiresToken(t *testing.T) {
	t.Setenv(EnvBotToken, "")
	_, err := (&Config{}).Resolve()
	assert.Error(t, err)
}

func TestResolveEnvOverrides(t *testing.T) {
	t.Setenv(EnvBotToken, "env-token")
	t.Setenv(EnvChatID, "777")
	t.Setenv(EnvAPIToken, "api-secret")

	cfg := &Config{}
	cfg.Telegram.Token = "file-token"
	cfg.Delivery.DefaultRecipients = []int64{1}

	s, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "env-token", s.Telegram.Token)
	assert.Equal(t, []int64{1, 777}, s.Delivery.DefaultRecipients)
	assert.Equal(t, "api-secret", s.HTTP.Token)
}

func TestResolveBadChatIDEnv(t *testing.T) {
	t.Setenv(EnvBotToken, "t")
	t.Setenv(EnvChatID, "not-a-number")
	_, err := (&Config{}).Resolve()
	assert.Error(t, err)
}

func TestResolveRejectsBadDuration(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Monitor.Interval = "soon"
	_, err := cfg.Resolve()
	assert.Error(t, err)
}

func TestResolveRejectsBadTimezone(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Scheduler.Timezone = "Mars/Olympus"
	_, err := cfg.Resolve()
	assert.Error(t, err)
}

func TestResolveStorage(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Storage = &StorageConfig{Driver: "file", Path: "audit.jsonl"}

	s, err := cfg.Resolve()
	require.NoError(t, err)
	assert.True(t, s.Storage.Enabled)
	assert.Equal(t, "file", s.Storage.Driver)

	cfg.Storage = &StorageConfig{Driver: "redis", Path: "x"}
	_, err = cfg.Resolve()
	assert.Error(t, err)

	cfg.Storage = &StorageConfig{Driver: "sqlite"}
	_, err = cfg.Resolve()
	assert.Error(t, err)

	// sqlite3 is an accepted alias of sqlite
	cfg.Storage = &StorageConfig{Driver: "sqlite3", Path: "audit.db"}
	s, err = cfg.Resolve()
	require.NoError(t, err)
	assert.True(t, s.Storage.Enabled)
	assert.Equal(t, "sqlite3", s.Storage.Driver)
}

func TestReloadPublishesAndSkipsUnchanged(t *testing.T) {
	path := writeFile(t, "config.json", `{"telegram":{"token":"a"}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// same content: no publish
	m.reload()
	assert.Empty(t, ch)

	require.NoError(t, os.WriteFile(path, []byte(`{"telegram":{"token":"b"}}`), 0o644))
	m.reload()
	select {
	case cfg := <-ch:
		assert.Equal(t, "b", cfg.Telegram.Token)
	default:
		t.Fatal("expected a published config")
	}
}

func TestReloadKeepsPreviousOnParseError(t *testing.T) {
	path := writeFile(t, "config.json", `{"telegram":{"token":"a"}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	m.reload()
	assert.Equal(t, "a", m.Get().Telegram.Token)
}
