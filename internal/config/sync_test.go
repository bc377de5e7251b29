package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSyncPolicyDefaultsWhenFileMissing(t *testing.T) {
	v := viper.New()
	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath(t.TempDir())

	holder, err := newSyncPolicyHolder(v, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncPolicy(), holder.Get())
}

func TestSyncPolicyReadsFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("sync:\n  saveTimeout: 750ms\n  maxAttempts: 3\n  initialBackoff: 50ms\n  maxBackoff: 1s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync.yml"), body, 0o644))

	v := viper.New()
	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)

	holder, err := newSyncPolicyHolder(v, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, 750*time.Millisecond, policy.SaveTimeout)
	assert.Equal(t, uint(3), policy.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, policy.InitialBackoff)
	assert.Equal(t, time.Second, policy.MaxBackoff)
	assert.Equal(t, DefaultSyncPolicy().LoadTimeout, policy.LoadTimeout)
}

func TestSyncPolicySingleKeyFileKeepsOtherDefaults(t *testing.T) {
	dir := t.TempDir()
	body := []byte("sync:\n  flushTimeout: 30s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync.yml"), body, 0o644))

	v := viper.New()
	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)

	holder, err := newSyncPolicyHolder(v, zap.NewNop())
	require.NoError(t, err)

	want := DefaultSyncPolicy()
	want.FlushTimeout = 30 * time.Second
	assert.Equal(t, want, holder.Get())
}

func TestSyncPolicyRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("sync:\n  maxAttempts: 0\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync.yml"), body, 0o644))

	v := viper.New()
	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)

	_, err := newSyncPolicyHolder(v, zap.NewNop())
	assert.Error(t, err)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Redis ")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("ENTITLEMENT_REGISTRY_TTL", "90s")
	t.Setenv("ENTITLEMENT_REGISTRY_SIZE", "not-a-number")
	t.Setenv("DATABASE_AUTO_MIGRATE", "off")

	cfg := Load()
	assert.Equal(t, StoreDriverRedis, cfg.StoreDriver)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, 90*time.Second, cfg.RegistryTTL)
	assert.Equal(t, 10_000, cfg.RegistrySize)
	assert.False(t, cfg.DBAutoMigrate)
}
