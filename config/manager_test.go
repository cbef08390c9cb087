package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err, "config file not created")

	cfg := mgr.Get()
	assert.Equal(t, filepath.Join(dir, "data", "arena.db"), cfg.DBPath)

	cfg.DefaultCheapModel = "deepseek-chat"
	cfg.AgentTimeout = Duration(5 * time.Second)
	require.NoError(t, mgr.Update(cfg))

	updated := mgr.Get()
	assert.Equal(t, "deepseek-chat", updated.DefaultCheapModel)
	assert.Equal(t, 5*time.Second, updated.AgentTimeout.Std())

	onDisk, err := loadConfigFromFile(mgr.Path())
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", onDisk.DefaultCheapModel)
}

func TestManagerKeepsEnvSecretsOutOfFile(t *testing.T) {
	t.Setenv("ARENA_CRON_SECRET", "from-env")
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)
	assert.Equal(t, "from-env", mgr.Get().CronSecret)

	cfg := mgr.Get()
	cfg.CronSecret = ""
	cfg.DefaultPremiumModel = "deepseek-reasoner"
	require.NoError(t, mgr.Update(cfg))
	assert.Equal(t, "from-env", mgr.Get().CronSecret)

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "from-env")

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestManagerRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"llm_provider":"carrier-pigeon"}`), 0o600))
	_, err := NewManager(WithConfigDir(dir))
	assert.Error(t, err)
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	cfg := mgr.Get()
	cfg.LLMProvider = "carrier-pigeon"
	assert.Error(t, mgr.Update(cfg))
	assert.Equal(t, ProviderOpenAI, mgr.Get().LLMProvider)
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	require.NoError(t, mgr.Watch(ctx, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))

	cfg := mgr.Get()
	cfg.SocialEnabled = !cfg.SocialEnabled
	require.NoError(t, writeConfigFile(mgr.Path(), cfg))

	select {
	case got := <-reloaded:
		assert.Equal(t, cfg.SocialEnabled, got.SocialEnabled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire on config change")
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"db_path":"/tmp/x.db","agent_timeout":"90s","provider_timeout":3}`), 0o644))

	cfg, err := loadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, 90*time.Second, cfg.AgentTimeout.Std())
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout.Std())
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Contains(t, cfg.ModelPricing, "gpt-4o-mini")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARENA_CRON_SECRET", "s3cret")
	t.Setenv("ARENA_KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("ARENA_AGENT_TIMEOUT", "2m")
	t.Setenv("ARENA_SOCIAL_ENABLED", "false")
	t.Setenv("DEEPSEEK_API_KEY", "ds-key")

	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.loadFromEnv()
	assert.Equal(t, "s3cret", cfg.CronSecret)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Minute, cfg.AgentTimeout.Std())
	assert.False(t, cfg.SocialEnabled)

	cfg.LLMProvider = ProviderDeepSeek
	assert.Equal(t, "ds-key", cfg.ChatAPIKey())
}

func TestValidate(t *testing.T) {
	base := DefaultConfigWithRoot("/tmp/arena")
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"empty db path":     func(c *Config) { c.DBPath = " " },
		"unknown provider":  func(c *Config) { c.LLMProvider = "x" },
		"zero max tokens":   func(c *Config) { c.CheapMaxTokens = 0 },
		"temperature":       func(c *Config) { c.Temperature = 3 },
		"agent timeout":     func(c *Config) { c.AgentTimeout = 0 },
		"log format":        func(c *Config) { c.LogFormat = "xml" },
		"negative pricing":  func(c *Config) { c.ModelPricing = map[string]ModelPrice{"m": {InputPerMillion: -1}} },
		"missing model ids": func(c *Config) { c.DefaultPremiumModel = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := *DefaultConfigWithRoot("/tmp/arena")
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := *DefaultConfigWithRoot("/tmp/arena")
	cfg.CronSecret = "secret"
	cfg.FinnhubAPIKey = "fh"

	r := cfg.Redacted()
	assert.Equal(t, "********", r.CronSecret)
	assert.Equal(t, "********", r.FinnhubAPIKey)
	assert.Empty(t, r.LLMAPIKey)
	assert.Equal(t, "secret", cfg.CronSecret)
}
