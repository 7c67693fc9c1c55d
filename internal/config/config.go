// Package config loads the configuration surface enumerated in spec §6.4
// using viper, matching the configuration style the retrieved pack uses for
// comparably shaped services (RedClaus/cortex). Every field has the
// spec-mandated default, so Load with an empty config path and no
// environment overrides produces a fully usable configuration.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved configuration surface from spec §6.4.
type Config struct {
	ChunkMaxChars     int
	ChunkOverlapChars int

	SessionTTLMinutes int
	ContextWindowSize int

	AuditLogDir         string
	AuditRetentionDays  int
	AuditAnonymizeDays  int
	AuditInMemoryMax    int

	CBFailureThreshold int
	CBResetTimeoutMs   int

	EmbedCacheSize  int
	EmbedCacheTTLMs int
	QueryCacheSize  int
	QueryCacheTTLMs int
	PatientCacheSize int
	PatientCacheTTLMs int

	RetrieverTopKDefault      int
	RetrieverMultiHopMax      int
	RetrieverRelationshipBoost float64

	// Environment controls whether operational error detail is surfaced
	// (spec §7: "details redacted in production").
	Environment string
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c *Config) CBResetTimeout() time.Duration {
	return time.Duration(c.CBResetTimeoutMs) * time.Millisecond
}

func (c *Config) EmbedCacheTTL() time.Duration {
	return time.Duration(c.EmbedCacheTTLMs) * time.Millisecond
}

func (c *Config) QueryCacheTTL() time.Duration {
	return time.Duration(c.QueryCacheTTLMs) * time.Millisecond
}

func (c *Config) PatientCacheTTL() time.Duration {
	return time.Duration(c.PatientCacheTTLMs) * time.Millisecond
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chunk.max_chars", 1000)
	v.SetDefault("chunk.overlap_chars", 150)

	v.SetDefault("session.ttl_minutes", 30)
	v.SetDefault("session.context_window_size", 5)

	v.SetDefault("audit.log_dir", "./data/audit")
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.anonymize_days", 30)
	v.SetDefault("audit.in_memory_max", 10000)

	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.reset_timeout_ms", 30000)

	v.SetDefault("cache.embed.size", 1000)
	v.SetDefault("cache.embed.ttl_ms", 300000)
	v.SetDefault("cache.query.size", 100)
	v.SetDefault("cache.query.ttl_ms", 300000)
	v.SetDefault("cache.patient.size", 5)
	v.SetDefault("cache.patient.ttl_ms", 1800000)

	v.SetDefault("retriever.topk_default", 10)
	v.SetDefault("retriever.multihop_max", 1)
	v.SetDefault("retriever.relationship_boost", 0.3)

	v.SetDefault("environment", "development")
}

// Load reads configuration from environment variables (prefixed
// PATIENTQA_, with "." replaced by "_") and, if present, a YAML file at
// configPath. An empty configPath skips the file and relies on env vars and
// defaults alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PATIENTQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	return &Config{
		ChunkMaxChars:     v.GetInt("chunk.max_chars"),
		ChunkOverlapChars: v.GetInt("chunk.overlap_chars"),

		SessionTTLMinutes: v.GetInt("session.ttl_minutes"),
		ContextWindowSize: v.GetInt("session.context_window_size"),

		AuditLogDir:        v.GetString("audit.log_dir"),
		AuditRetentionDays: v.GetInt("audit.retention_days"),
		AuditAnonymizeDays: v.GetInt("audit.anonymize_days"),
		AuditInMemoryMax:   v.GetInt("audit.in_memory_max"),

		CBFailureThreshold: v.GetInt("circuit_breaker.failure_threshold"),
		CBResetTimeoutMs:   v.GetInt("circuit_breaker.reset_timeout_ms"),

		EmbedCacheSize:    v.GetInt("cache.embed.size"),
		EmbedCacheTTLMs:   v.GetInt("cache.embed.ttl_ms"),
		QueryCacheSize:    v.GetInt("cache.query.size"),
		QueryCacheTTLMs:   v.GetInt("cache.query.ttl_ms"),
		PatientCacheSize:  v.GetInt("cache.patient.size"),
		PatientCacheTTLMs: v.GetInt("cache.patient.ttl_ms"),

		RetrieverTopKDefault:       v.GetInt("retriever.topk_default"),
		RetrieverMultiHopMax:       v.GetInt("retriever.multihop_max"),
		RetrieverRelationshipBoost: v.GetFloat64("retriever.relationship_boost"),

		Environment: v.GetString("environment"),
	}, nil
}
