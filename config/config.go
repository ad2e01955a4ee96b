// Package config provides configuration loading and management for listforge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/listforge/listforge/workflow"
)

// Config represents the complete listforge configuration.
type Config struct {
	NATS      NATSConfig       `yaml:"nats"`
	Queue     QueueConfig      `yaml:"queue"`
	Fetch     FetchConfig      `yaml:"fetch"`
	Health    HealthConfig     `yaml:"health"`
	Cache     CacheConfig      `yaml:"cache"`
	Admin     AdminConfig      `yaml:"admin"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`
}

// QueueConfig configures the job queue binding.
type QueueConfig struct {
	// Stream is the JetStream stream name for compilation jobs.
	Stream string `yaml:"stream"`
	// Consumer is the durable consumer name.
	Consumer string `yaml:"consumer"`
	// SubjectPrefix prefixes all job subjects.
	SubjectPrefix string `yaml:"subject_prefix"`
	// MaxRetries bounds handler retries per message. A nil value means the
	// default; an explicit zero disables retries.
	MaxRetries *int `yaml:"max_retries"`
	// BatchSize is how many messages are fetched per batch.
	BatchSize int `yaml:"batch_size"`
}

// DefaultMaxRetries is the retry bound applied when max_retries is unset.
const DefaultMaxRetries = 3

// RetryLimit returns the configured retry bound, or DefaultMaxRetries when
// max_retries is unset.
func (q QueueConfig) RetryLimit() int {
	if q.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *q.MaxRetries
}

// FetchConfig configures source fetching.
type FetchConfig struct {
	// Timeout bounds each source fetch.
	Timeout time.Duration `yaml:"timeout"`
	// UserAgent identifies the compiler to upstream servers.
	UserAgent string `yaml:"user_agent"`
	// Concurrency bounds parallel fetches within one compilation.
	Concurrency int `yaml:"concurrency"`
}

// HealthConfig configures source health tracking.
type HealthConfig struct {
	// MaxHistory bounds the per-source attempt window.
	MaxHistory int `yaml:"max_history"`
}

// CacheConfig configures the TTL cache.
type CacheConfig struct {
	// Bucket is the KV bucket name.
	Bucket string `yaml:"bucket"`
	// FilterListTTL is how long fetched source content stays fresh.
	FilterListTTL time.Duration `yaml:"filter_list_ttl"`
	// ArtifactTTL is how long compiled artifacts stay cached.
	ArtifactTTL time.Duration `yaml:"artifact_ttl"`
}

// AdminConfig configures the admin HTTP endpoint.
type AdminConfig struct {
	// Addr is the listen address for /metrics and /healthz.
	Addr string `yaml:"addr"`
}

// ScheduleConfig declares one recurring job.
type ScheduleConfig struct {
	// Cron is the schedule in cron syntax.
	Cron string `yaml:"cron"`
	// Job is the job kind: "cache-warm" or "health-check".
	Job string `yaml:"job"`
	// Configs are the compile configurations for cache-warm jobs.
	Configs []workflow.CompileConfig `yaml:"configs,omitempty"`
	// Sources are the URLs checked by health-check jobs.
	Sources []string `yaml:"sources,omitempty"`
}

// Schedule job kinds.
const (
	JobCacheWarm   = "cache-warm"
	JobHealthCheck = "health-check"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Queue: QueueConfig{
			Stream:        "LISTFORGE_JOBS",
			Consumer:      "listforge-worker",
			SubjectPrefix: "listforge.jobs",
			MaxRetries:    intPtr(DefaultMaxRetries),
			BatchSize:     16,
		},
		Fetch: FetchConfig{
			Timeout:     30 * time.Second,
			Concurrency: 8,
		},
		Health: HealthConfig{
			MaxHistory: 100,
		},
		Cache: CacheConfig{
			Bucket:        "LISTFORGE_STORE",
			FilterListTTL: time.Hour,
			ArtifactTTL:   6 * time.Hour,
		},
		Admin: AdminConfig{
			Addr: ":9090",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Queue.Stream == "" {
		return fmt.Errorf("queue.stream is required")
	}
	if c.Queue.MaxRetries != nil && *c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative")
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be at least 1")
	}
	for i, sched := range c.Schedules {
		if sched.Cron == "" {
			return fmt.Errorf("schedules[%d]: cron expression is required", i)
		}
		switch sched.Job {
		case JobCacheWarm:
			if len(sched.Configs) == 0 {
				return fmt.Errorf("schedules[%d]: cache-warm job requires configs", i)
			}
		case JobHealthCheck:
			if len(sched.Sources) == 0 {
				return fmt.Errorf("schedules[%d]: health-check job requires sources", i)
			}
		default:
			return fmt.Errorf("schedules[%d]: unknown job %q", i, sched.Job)
		}
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	if other.Queue.Stream != "" {
		c.Queue.Stream = other.Queue.Stream
	}
	if other.Queue.Consumer != "" {
		c.Queue.Consumer = other.Queue.Consumer
	}
	if other.Queue.SubjectPrefix != "" {
		c.Queue.SubjectPrefix = other.Queue.SubjectPrefix
	}
	if other.Queue.MaxRetries != nil {
		c.Queue.MaxRetries = other.Queue.MaxRetries
	}
	if other.Queue.BatchSize != 0 {
		c.Queue.BatchSize = other.Queue.BatchSize
	}

	if other.Fetch.Timeout != 0 {
		c.Fetch.Timeout = other.Fetch.Timeout
	}
	if other.Fetch.UserAgent != "" {
		c.Fetch.UserAgent = other.Fetch.UserAgent
	}
	if other.Fetch.Concurrency != 0 {
		c.Fetch.Concurrency = other.Fetch.Concurrency
	}

	if other.Health.MaxHistory != 0 {
		c.Health.MaxHistory = other.Health.MaxHistory
	}

	if other.Cache.Bucket != "" {
		c.Cache.Bucket = other.Cache.Bucket
	}
	if other.Cache.FilterListTTL != 0 {
		c.Cache.FilterListTTL = other.Cache.FilterListTTL
	}
	if other.Cache.ArtifactTTL != 0 {
		c.Cache.ArtifactTTL = other.Cache.ArtifactTTL
	}

	if other.Admin.Addr != "" {
		c.Admin.Addr = other.Admin.Addr
	}

	if len(other.Schedules) > 0 {
		c.Schedules = other.Schedules
	}
}

func intPtr(v int) *int {
	return &v
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
