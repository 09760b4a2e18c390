package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFile("", filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 30, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "CACAO_SETTLEMENTS", cfg.NATS.StreamName)
	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, "0.0120", cfg.Pricing.BuyPrice)
	assert.Equal(t, 120, cfg.Pricing.QuoteTTLSeconds)
}

func TestLoadFileFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app_env: staging
port: "9090"
token_ttl_minutes: 15
debug: true
database:
  max_open_conns: 12
nats:
  url: "nats://localhost:4222"
  subject_prefix: "wallet.tx"
grading:
  policy_path: "/etc/cacao/grading.toml"
pricing:
  buy_price: "0.0150"
  withdrawal_fee: "3.50"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.AppEnv)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 12, cfg.Database.MaxOpenConns)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "wallet.tx", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "/etc/cacao/grading.toml", cfg.Grading.PolicyPath)
	assert.Equal(t, "0.0150", cfg.Pricing.BuyPrice)
	assert.Equal(t, "3.50", cfg.Pricing.WithdrawalFee)
	assert.Equal(t, "0.0110", cfg.Pricing.SellPrice)
}

func TestLoadFileEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CACAO_NATS_SUBJECT_PREFIX", "env.prefix")

	cfg, err := LoadFile("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "env.prefix", cfg.NATS.SubjectPrefix)
}

func TestLoadFileDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("CACAO_ALLOWED_ORIGINS=https://ops.example.com\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CACAO_ALLOWED_ORIGINS") })

	cfg, err := LoadFile("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "https://ops.example.com", cfg.AllowedOrigins)
}

func TestLoadFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))

	_, err := LoadFile(path, filepath.Join(dir, "missing.env"))
	require.Error(t, err)
}
