package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment.
type Config struct {
	Addr        string
	LogFormat   string
	DatabaseURL string
	RedisURL    string

	// Bulk registry ingestion.
	RegistrySourceURL string
	ArchiveEntryName  string
	SyncBatchSize     int
	BulkTxTimeout     time.Duration

	// Online lookups.
	OnlineEnabled     bool
	OnlineBaseURL     string
	OnlineSessionURL  string
	OnlineSessionTTL  time.Duration
	OnlineCacheTTL    time.Duration
	OnlineCooldown    time.Duration
	OnlineCallTimeout time.Duration
	OnlineRecovery    time.Duration

	// Identifier normalization.
	RegistrationPrefix string

	// Egress policy. Private ranges are only reachable for local testing.
	EgressAllowPrivate bool

	// Audit event stream. Empty brokers disables publishing.
	AuditBrokers []string
	AuditTopic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:        getenv("SKYREG_ADDR", ":8080"),
		LogFormat:   getenv("LOG_FORMAT", "json"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		RegistrySourceURL: getenv("REGISTRY_SOURCE_URL", "https://registry.faa.gov/database/ReleasableAircraft.zip"),
		ArchiveEntryName:  getenv("REGISTRY_ARCHIVE_ENTRY", "MASTER.txt"),
		SyncBatchSize:     getint("SYNC_BATCH_SIZE", 1000),
		BulkTxTimeout:     getdur("BULK_TX_TIMEOUT", 10*time.Minute),

		OnlineEnabled:     os.Getenv("ONLINE_LOOKUP_ENABLED") == "true",
		OnlineBaseURL:     os.Getenv("ONLINE_BASE_URL"),
		OnlineSessionURL:  os.Getenv("ONLINE_SESSION_URL"),
		OnlineSessionTTL:  getdur("ONLINE_SESSION_TTL", 20*time.Minute),
		OnlineCacheTTL:    getdur("ONLINE_CACHE_TTL", 6*time.Hour),
		OnlineCooldown:    getdur("ONLINE_COOLDOWN", 5*time.Minute),
		OnlineCallTimeout: getdur("ONLINE_CALL_TIMEOUT", 15*time.Second),
		OnlineRecovery:    getdur("ONLINE_RECOVERY_INTERVAL", 30*time.Second),

		RegistrationPrefix: getenv("REGISTRATION_PREFIX", "N"),

		EgressAllowPrivate: os.Getenv("EGRESS_ALLOW_PRIVATE") == "true",

		AuditBrokers: split(os.Getenv("AUDIT_BROKERS")),
		AuditTopic:   getenv("AUDIT_TOPIC", "skyreg.sync.events"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getdur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func split(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
