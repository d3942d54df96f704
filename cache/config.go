package cache

import (
	"time"
)

// Store backends understood by the default query client.
const (
	BackendSturdyc = "sturdyc"
	BackendMemory  = "memory"
)

// Config exposes query cache configuration options.
type Config struct {
	// Backend selects the store holding query data: "sturdyc" (default) or "memory".
	Backend string `yaml:"backend"`

	// Capacity is the maximum number of entries the sturdyc store keeps.
	Capacity int `yaml:"capacity"`

	// NumShards determines the number of sturdyc shards.
	NumShards int `yaml:"num_shards"`

	// TTL is how long query data stays in the store before it is evicted.
	TTL time.Duration `yaml:"ttl"`

	// EvictionPercentage is the share of sturdyc entries evicted when the store is full.
	EvictionPercentage int `yaml:"eviction_percentage"`

	// EvictionInterval sets how often sturdyc checks for expired entries. Zero uses the default.
	EvictionInterval time.Duration `yaml:"eviction_interval"`

	// CleanupInterval sets how often the memory store purges expired entries.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// StaleTime is applied to queries that do not set their own. Zero means data
	// only turns stale when it is invalidated.
	StaleTime time.Duration `yaml:"stale_time"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendSturdyc,
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		CleanupInterval:    time.Minute,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSturdyc, "":
		if c.Capacity <= 0 {
			return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
		}
		if c.NumShards <= 0 {
			return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
		}
		if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
			return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
		}
		if c.EvictionInterval < 0 {
			return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
		}
	case BackendMemory:
		if c.CleanupInterval < 0 {
			return &ConfigError{Field: "CleanupInterval", Message: "must be non-negative"}
		}
	default:
		return &ConfigError{Field: "Backend", Message: "must be one of sturdyc, memory"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.StaleTime < 0 {
		return &ConfigError{Field: "StaleTime", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
