package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/pricing"
)

func baseEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, key := range append(keys, "PORT") {
		unsetEnvWithCleanup(t, key)
	}
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("ENCRYPTION_KEY", "local-dev-encryption-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	baseEnv(t)

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, pricing.DefaultMaxPercentage, cfg.MaxSlidingScale())
	assert.Equal(t, 10, cfg.RefundReasonMinLength)
	assert.Equal(t, 3, cfg.AdmissionMaxRetries)
	assert.Equal(t, money.USD, cfg.Currency())
	assert.Equal(t, 20*time.Second, cfg.GatewayTimeout())
	assert.Equal(t, 15*time.Minute, cfg.ReconcileStaleAfter())
	assert.Equal(t, "@every 5m", cfg.ReconcileSchedule)
	assert.Equal(t, "admission.events", cfg.EventExchange)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins())
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	baseEnv(t)
	t.Setenv("SLIDING_SCALE_MAX_PERCENT", "50.5")
	t.Setenv("REFUND_REASON_MIN_LENGTH", "20")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, pricing.Percentage(50_50), cfg.MaxSlidingScale())
	assert.Equal(t, 20, cfg.RefundReasonMinLength)
	assert.Equal(t, money.EUR, cfg.Currency())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
	assert.Equal(t, "9090", cfg.ServerPort)
}

func TestLoadConfigCoercesInvalidValues(t *testing.T) {
	baseEnv(t)
	t.Setenv("SLIDING_SCALE_MAX_PERCENT", "150")
	t.Setenv("REFUND_REASON_MIN_LENGTH", "0")
	t.Setenv("GATEWAY_TIMEOUT_SECONDS", "-1")
	t.Setenv("DEFAULT_CURRENCY", "JPY")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "postgres://localhost/admission")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, pricing.DefaultMaxPercentage, cfg.MaxSlidingScale())
	assert.Equal(t, 10, cfg.RefundReasonMinLength)
	assert.Equal(t, 20*time.Second, cfg.GatewayTimeout())
	assert.Equal(t, money.USD, cfg.Currency())
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
}

func TestLoadConfigRequiresEncryptionKey(t *testing.T) {
	baseEnv(t)
	t.Setenv("ENCRYPTION_KEY", "  ")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}

func TestLoadConfigRequiresDatabaseURLForPostgres(t *testing.T) {
	baseEnv(t)
	t.Setenv("STORAGE_DRIVER", "postgres")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadConfigReadsDotEnvFile(t *testing.T) {
	baseEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ADMISSION_MAX_RETRIES=7\n"), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.AdmissionMaxRetries)
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
