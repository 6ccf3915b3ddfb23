// Package config loads Discret's node configuration: a viper-backed
// default.yaml merged with an optional environment overlay, unmarshalled
// into a typed Config (§6.1's embedding parameters plus the operational
// knobs a running node needs).
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/discretlib/discret/pkg/utils"
)

// Config is the unified configuration for one Discret node.
type Config struct {
	Node struct {
		AppName     string `mapstructure:"app_name" json:"app_name"`
		DataDir     string `mapstructure:"data_dir" json:"data_dir"`
		KeyMaterial string `mapstructure:"key_material_path" json:"key_material_path"`
		ListenAddr  string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"node" json:"node"`

	Storage struct {
		DBPath         string `mapstructure:"db_path" json:"db_path"`
		ReaderPoolSize int    `mapstructure:"reader_pool_size" json:"reader_pool_size"`
		WriteBatchSize int    `mapstructure:"write_batch_size" json:"write_batch_size"`
		MaxRowBytes    int    `mapstructure:"max_row_bytes" json:"max_row_bytes"`
	} `mapstructure:"storage" json:"storage"`

	Sync struct {
		MaxConcurrentSync  int `mapstructure:"max_concurrent_synchronisation" json:"max_concurrent_synchronisation"`
		MessageTimeoutMS   int `mapstructure:"message_timeout_ms" json:"message_timeout_ms"`
		NodeBatchSize      int `mapstructure:"node_batch_size" json:"node_batch_size"`
		SignatureWorkers   int `mapstructure:"signature_workers" json:"signature_workers"`
		DailyLogQuiescentMS int `mapstructure:"daily_log_quiescent_ms" json:"daily_log_quiescent_ms"`
	} `mapstructure:"sync" json:"sync"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads default.yaml (searched under ./config and ./cmd/config) and
// merges an optional <env>.yaml overlay on top, then unmarshals the result
// into AppConfig.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath("cmd/config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	applyDefaults(&AppConfig)
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DISCRET_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("DISCRET_ENV", ""))
}

// applyDefaults fills in the knobs a node needs even when a config file
// leaves them at the zero value, matching the defaults internal/storage,
// internal/roomlock and internal/dailylog already fall back to on their own.
func applyDefaults(c *Config) {
	if c.Storage.ReaderPoolSize <= 0 {
		c.Storage.ReaderPoolSize = 4
	}
	if c.Storage.WriteBatchSize <= 0 {
		c.Storage.WriteBatchSize = 64
	}
	if c.Storage.MaxRowBytes <= 0 {
		c.Storage.MaxRowBytes = 32 * 1024
	}
	if c.Sync.MaxConcurrentSync <= 0 {
		c.Sync.MaxConcurrentSync = 4
	}
	if c.Sync.MessageTimeoutMS <= 0 {
		c.Sync.MessageTimeoutMS = 5000
	}
	if c.Sync.NodeBatchSize <= 0 || c.Sync.NodeBatchSize > 2048 {
		c.Sync.NodeBatchSize = 2048
	}
	if c.Sync.SignatureWorkers <= 0 {
		c.Sync.SignatureWorkers = 4
	}
	if c.Sync.DailyLogQuiescentMS <= 0 {
		c.Sync.DailyLogQuiescentMS = 2000
	}
}
