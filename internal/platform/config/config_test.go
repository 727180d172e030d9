package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "MASTER.txt", cfg.ArchiveEntryName)
	assert.Equal(t, 1000, cfg.SyncBatchSize)
	assert.Equal(t, 10*time.Minute, cfg.BulkTxTimeout)
	assert.False(t, cfg.OnlineEnabled)
	assert.Equal(t, 6*time.Hour, cfg.OnlineCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.OnlineRecovery)
	assert.Equal(t, "N", cfg.RegistrationPrefix)
	assert.Nil(t, cfg.AuditBrokers)
	assert.Equal(t, "skyreg.sync.events", cfg.AuditTopic)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SKYREG_ADDR", ":9090")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SYNC_BATCH_SIZE", "250")
	t.Setenv("ONLINE_RECOVERY_INTERVAL", "2m")
	t.Setenv("ONLINE_LOOKUP_ENABLED", "true")
	t.Setenv("ONLINE_COOLDOWN", "90s")
	t.Setenv("REGISTRATION_PREFIX", "C")
	t.Setenv("AUDIT_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 250, cfg.SyncBatchSize)
	assert.Equal(t, 2*time.Minute, cfg.OnlineRecovery)
	assert.True(t, cfg.OnlineEnabled)
	assert.Equal(t, 90*time.Second, cfg.OnlineCooldown)
	assert.Equal(t, "C", cfg.RegistrationPrefix)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.AuditBrokers)
}

func TestFromEnv_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SYNC_BATCH_SIZE", "-5")
	t.Setenv("BULK_TX_TIMEOUT", "soon")

	cfg := FromEnv()

	assert.Equal(t, 1000, cfg.SyncBatchSize)
	assert.Equal(t, 10*time.Minute, cfg.BulkTxTimeout)
}
