// Package config handles loading and managing wavault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	BindAddr        string   `toml:"bind_addr"` // default 127.0.0.1
	Port            int      `toml:"port"`      // default 8080
	APIKey          string   `toml:"api_key"`   // protects /api/v1 only; webhook stays open
	CORSOrigins     []string `toml:"cors_origins"`
	CORSCredentials bool     `toml:"cors_credentials"`
	CORSMaxAge      int      `toml:"cors_max_age"`
}

// WebhookConfig holds webhook endpoint configuration.
type WebhookConfig struct {
	VerifyToken string `toml:"verify_token"` // handshake secret for GET verification
	LogFile     string `toml:"log_file"`     // raw request log; default <data_dir>/webhook.log
}

// MediaConfig holds media download and storage configuration.
type MediaConfig struct {
	CDNBaseURL         string `toml:"cdn_base_url"`         // joined with relative directPath values
	DownloadTimeoutSec int    `toml:"download_timeout_sec"` // default 30
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"` // disable TLS verification on downloads
	MaxDownloadBytes   int64  `toml:"max_download_bytes"`   // default 64 MiB
}

// GatewayConfig holds the outbound messaging-gateway client configuration.
type GatewayConfig struct {
	BaseURL    string `toml:"base_url"`
	AuthToken  string `toml:"auth_token"`
	TimeoutSec int    `toml:"timeout_sec"` // default 15, floor 5
	VerifyTLS  bool   `toml:"verify_tls"`
}

// MaintenanceConfig holds scheduled maintenance configuration.
type MaintenanceConfig struct {
	Schedule         string `toml:"schedule"`           // cron expression; default "0 3 * * *"
	LogRetentionDays int    `toml:"log_retention_days"` // default 30; 0 disables pruning
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir      string `toml:"data_dir"`
	DatabasePath string `toml:"database_path"`
}

// Config represents the wavault configuration.
type Config struct {
	Data        DataConfig        `toml:"data"`
	Server      ServerConfig      `toml:"server"`
	Webhook     WebhookConfig     `toml:"webhook"`
	Media       MediaConfig       `toml:"media"`
	Gateway     GatewayConfig     `toml:"gateway"`
	Maintenance MaintenanceConfig `toml:"maintenance"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default wavault home directory.
// Respects the WAVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("WAVAULT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wavault"
	}
	return filepath.Join(home, ".wavault")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.wavault/config.toml).
// A missing config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Server: ServerConfig{
			BindAddr: "127.0.0.1",
			Port:     8080,
		},
		Media: MediaConfig{
			DownloadTimeoutSec: 30,
			MaxDownloadBytes:   64 * 1024 * 1024,
		},
		Gateway: GatewayConfig{
			TimeoutSec: 15,
			VerifyTLS:  true,
		},
		Maintenance: MaintenanceConfig{
			Schedule:         "0 3 * * *",
			LogRetentionDays: 30,
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Data.DatabasePath = expandPath(cfg.Data.DatabasePath)
	cfg.Webhook.LogFile = expandPath(cfg.Webhook.LogFile)

	return cfg, nil
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.Data.DataDir, 0750)
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	if c.Data.DatabasePath != "" {
		return c.Data.DatabasePath
	}
	return filepath.Join(c.Data.DataDir, "wavault.db")
}

// MediaDir returns the root of the partitioned media storage tree.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Data.DataDir, "media")
}

// WebhookLogFile returns the path of the append-only webhook request log.
func (c *Config) WebhookLogFile() string {
	if c.Webhook.LogFile != "" {
		return c.Webhook.LogFile
	}
	return filepath.Join(c.Data.DataDir, "webhook.log")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
