// Package config handles loading and validating Omnily configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for the Omnily server.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.omnily/data. Override: OMNILY_DATA_DIR env var.
	Org           OrgConfig            `json:"org" yaml:"org"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"` // nil = SQLite default (derived from data dir)
	HTTP          *HTTPConfig          `json:"http,omitempty" yaml:"http,omitempty"`
	Cache         *CacheConfig         `json:"cache,omitempty" yaml:"cache,omitempty"`                 // nil = no Redis, stats computed per request
	Scheduler     *SchedulerConfig     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`         // nil = background jobs disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// OrgConfig identifies the organization this server instance serves.
// Tenancy is enforced at the database level; one process binds to one org.
type OrgConfig struct {
	Name string `json:"name" yaml:"name"` // Default: "default".
}

// OrgName returns the configured organization name, defaulting to "default".
func (o OrgConfig) OrgName() string {
	if o.Name != "" {
		return o.Name
	}
	return "default"
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data directory.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
// DSN can be overridden by the OMNILY_PG_DSN env var.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Enabled             bool              `json:"enabled" yaml:"enabled"`
	EnableDocs          bool              `json:"enable_docs" yaml:"enable_docs"`
	ListenAddr          string            `json:"listen_addr" yaml:"listen_addr"`
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
	APIKeyStaffMapping  map[string]string `json:"api_key_staff_mapping" yaml:"api_key_staff_mapping"` // API key → staff email.
	RateLimit           RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address with a default of ":8080".
func (h *HTTPConfig) Addr() string {
	if h != nil && h.ListenAddr != "" {
		return h.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the request size cap with a default of 1 MiB.
func (h *HTTPConfig) MaxRequestSize() int64 {
	if h != nil && h.MaxRequestSizeBytes > 0 {
		return h.MaxRequestSizeBytes
	}
	return 1 << 20
}

// RateLimitConfig configures per-caller rate limiting for the HTTP API.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// CacheConfig configures the Redis cache used for wallet statistics.
// Address can be overridden by the OMNILY_REDIS_ADDR env var.
type CacheConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Addr       string `json:"addr" yaml:"addr"` // Default: "localhost:6379".
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
	DB         int    `json:"db" yaml:"db"`
	TTLSeconds int    `json:"ttl_seconds" yaml:"ttl_seconds"` // Default: 60.
	KeyPrefix  string `json:"key_prefix" yaml:"key_prefix"`   // Default: "omnily".
}

// CacheAddr returns the Redis address with a default of "localhost:6379".
func (c *CacheConfig) CacheAddr() string {
	if c != nil && c.Addr != "" {
		return c.Addr
	}
	return "localhost:6379"
}

// TTL returns the cache entry lifetime with a default of 60s.
func (c *CacheConfig) TTL() time.Duration {
	if c != nil && c.TTLSeconds > 0 {
		return time.Duration(c.TTLSeconds) * time.Second
	}
	return 60 * time.Second
}

// Prefix returns the cache key prefix with a default of "omnily".
func (c *CacheConfig) Prefix() string {
	if c != nil && c.KeyPrefix != "" {
		return c.KeyPrefix
	}
	return "omnily"
}

// SchedulerConfig configures the background cron jobs.
type SchedulerConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	StatsSnapshotCron string `json:"stats_snapshot_cron" yaml:"stats_snapshot_cron"` // Default: "*/5 * * * *".
	DormantSweepCron  string `json:"dormant_sweep_cron" yaml:"dormant_sweep_cron"`   // Default: "0 3 * * *".
	DormantAfterDays  int    `json:"dormant_after_days" yaml:"dormant_after_days"`   // Default: 365.
}

// StatsCron returns the stats snapshot schedule with its default.
func (s *SchedulerConfig) StatsCron() string {
	if s != nil && s.StatsSnapshotCron != "" {
		return s.StatsSnapshotCron
	}
	return "*/5 * * * *"
}

// SweepCron returns the dormant wallet sweep schedule with its default.
func (s *SchedulerConfig) SweepCron() string {
	if s != nil && s.DormantSweepCron != "" {
		return s.DormantSweepCron
	}
	return "0 3 * * *"
}

// DormantAfter returns the inactivity window before a wallet is suspended.
func (s *SchedulerConfig) DormantAfter() time.Duration {
	days := 365
	if s != nil && s.DormantAfterDays > 0 {
		days = s.DormantAfterDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "omnily"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB    bool `json:"include_db" yaml:"include_db"`
	IncludeCache bool `json:"include_cache" yaml:"include_cache"`
}

// AnomalyConfig configures sliding-window monitoring of wallet activity.
type AnomalyConfig struct {
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	WindowSeconds    int     `json:"window_seconds" yaml:"window_seconds"`         // Default: 300
	FailureThreshold int     `json:"failure_threshold" yaml:"failure_threshold"`   // Rejected debits per window before warning. Default: 10
	DebitSpikeAmount float64 `json:"debit_spike_amount" yaml:"debit_spike_amount"` // Debit volume per window before warning. 0 = disabled
	MinFailureRate   float64 `json:"min_failure_rate" yaml:"min_failure_rate"`     // Failure ratio (0.0–1.0) required alongside FailureThreshold. Default: 0.5
}

// DefaultConfigPath returns the default config file path (~/.omnily/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/omnily.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".omnily", "config.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// Secrets can be set in the config file or overridden by environment
// variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	// Environment variable overrides — env vars take precedence over config values.
	if envDD := os.Getenv("OMNILY_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}
	if envDSN := os.Getenv("OMNILY_PG_DSN"); envDSN != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresStorageConfig{}
		}
		cfg.Storage.Postgres.DSN = envDSN
	}
	if envAddr := os.Getenv("OMNILY_REDIS_ADDR"); envAddr != "" {
		if cfg.Cache == nil {
			cfg.Cache = &CacheConfig{Enabled: true}
		}
		cfg.Cache.Addr = envAddr
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".omnily", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "omnily.db")
}

// AuditLogPath returns the default audit log path under the data directory.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.ResolvedDataDir(), "audit.jsonl")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	// Storage driver validation.
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.StorageDriverName() == "postgres" {
		if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required (set OMNILY_PG_DSN env var)")
		}
	}
	if c.HTTP != nil && c.HTTP.MaxRequestSizeBytes < 0 {
		return fmt.Errorf("http.max_request_size_bytes must not be negative")
	}
	if c.HTTP != nil && c.HTTP.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("http.rate_limit.requests_per_minute must not be negative")
	}
	if c.Cache != nil && c.Cache.Enabled && c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must not be negative")
	}
	if c.Scheduler != nil && c.Scheduler.Enabled && c.Scheduler.DormantAfterDays < 0 {
		return fmt.Errorf("scheduler.dormant_after_days must not be negative")
	}
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		t := c.Observability.Tracing
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0 and 1")
		}
	}
	return nil
}
