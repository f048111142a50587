package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SyncConfig holds replication engine tunables, loaded from a JSON file.
type SyncConfig struct {
	Enabled bool `json:"enabled"`

	// ============ SCHEDULING ============
	AutoSyncEnabled  bool `json:"auto_sync_enabled"`
	AutoSyncInterval int  `json:"auto_sync_interval"` // seconds
	SyncOnStartup    bool `json:"sync_on_startup"`
	SyncTimeout      int  `json:"sync_timeout"` // seconds, per cycle

	// ============ PUSH ============
	PushParallelism int `json:"push_parallelism"` // 1-8 concurrent operations

	// ============ PULL ============
	PullParallelism    int  `json:"pull_parallelism"` // 1-8 concurrent scopes
	SaveAfterEveryPage bool `json:"save_after_every_page"`

	// ============ CONFLICTS ============
	ConflictResolution string `json:"conflict_resolution"` // client_wins, server_wins, manual

	// ============ DELETES ============
	MissingAsDeleted bool `json:"missing_as_deleted"` // treat DELETE 404 as already absent

	// ============ SCOPES ============
	Scopes []ScopeConfig `json:"scopes"`
}

// ScopeConfig configures one pull scope and, optionally, a non-default
// endpoint path for its entity type.
type ScopeConfig struct {
	EntityType string `json:"entity_type"`
	QueryID    string `json:"query_id,omitempty"`
	Filter     string `json:"filter,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"` // path, e.g. "/tables/movies"
}

// Endpoints builds the entity-type to endpoint-path overrides.
func (c *SyncConfig) Endpoints() map[string]string {
	out := make(map[string]string)
	for _, s := range c.Scopes {
		if s.Endpoint != "" {
			out[s.EntityType] = s.Endpoint
		}
	}
	return out
}

// LoadSyncConfig loads sync configuration from SYNC_CONFIG_PATH or defaults.
func LoadSyncConfig() *SyncConfig {
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if cfg, err := loadSyncConfigFromFile(configPath); err == nil {
			return cfg
		}
	}
	return DefaultSyncConfig()
}

// loadSyncConfigFromFile loads sync config from a JSON file
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg SyncConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sync config %s: %w", path, err)
	}
	cfg.applyBounds()
	return &cfg, nil
}

// DefaultSyncConfig returns the zero-config defaults.
func DefaultSyncConfig() *SyncConfig {
	cfg := &SyncConfig{
		Enabled:            true,
		AutoSyncEnabled:    false,
		AutoSyncInterval:   300,
		SyncOnStartup:      false,
		SyncTimeout:        600,
		PushParallelism:    4,
		PullParallelism:    2,
		SaveAfterEveryPage: true,
		ConflictResolution: "client_wins",
		MissingAsDeleted:   true,
	}
	return cfg
}

func (c *SyncConfig) applyBounds() {
	if c.PushParallelism < 1 {
		c.PushParallelism = 1
	}
	if c.PushParallelism > 8 {
		c.PushParallelism = 8
	}
	if c.PullParallelism < 1 {
		c.PullParallelism = 1
	}
	if c.PullParallelism > 8 {
		c.PullParallelism = 8
	}
	if c.AutoSyncInterval <= 0 {
		c.AutoSyncInterval = 300
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 600
	}
}
