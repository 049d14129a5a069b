package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Storage backends understood by the client.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type GatewaySection struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

type StorageSection struct {
	Backend string `toml:"backend"`
}

type EncryptionSection struct {
	Method     string `toml:"method"`
	SSHKeyPath string `toml:"ssh_key_path,omitempty"`
}

type UserConfig struct {
	Gateway           GatewaySection    `toml:"gateway"`
	Storage           StorageSection    `toml:"storage"`
	Encryption        EncryptionSection `toml:"encryption"`
	StreamIdleTimeout string            `toml:"stream_idle_timeout"`
}

// Config is the resolved client configuration: files first, then
// environment overrides.
type Config struct {
	DataDirectory     string
	GatewayURL        string
	APIKey            string
	StorageBackend    string
	EncryptionMethod  EncryptionMethod
	SSHKeyPath        string
	StreamIdleTimeout time.Duration
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyUserConfig(userCfg *UserConfig) error {
	c.GatewayURL = userCfg.Gateway.URL
	c.APIKey = userCfg.Gateway.APIKey
	c.StorageBackend = userCfg.Storage.Backend
	c.EncryptionMethod = EncryptionMethod(userCfg.Encryption.Method)
	c.SSHKeyPath = userCfg.Encryption.SSHKeyPath

	if userCfg.StreamIdleTimeout != "" {
		d, err := time.ParseDuration(userCfg.StreamIdleTimeout)
		if err != nil {
			return fmt.Errorf("invalid stream_idle_timeout %q: %w", userCfg.StreamIdleTimeout, err)
		}
		c.StreamIdleTimeout = d
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("LUMORA_GATEWAY_URL"); u != "" {
		c.GatewayURL = u
	}
	if key := os.Getenv("LUMORA_API_KEY"); key != "" {
		c.APIKey = key
	}
	if dataDir := os.Getenv("LUMORA_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if backend := os.Getenv("LUMORA_STORAGE_BACKEND"); backend != "" {
		c.StorageBackend = backend
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.GatewayURL == "" {
		result = multierror.Append(result, errors.New("gateway url is required"))
	} else if u, err := url.Parse(c.GatewayURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("gateway url %q must be an absolute http(s) URL", c.GatewayURL))
	}

	switch c.StorageBackend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}

	switch c.EncryptionMethod {
	case EncryptionNone:
	case EncryptionSSHKey:
		if c.SSHKeyPath == "" {
			result = multierror.Append(result, errors.New("encryption method ssh_key requires ssh_key_path"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown encryption method %q", c.EncryptionMethod))
	}

	if c.StreamIdleTimeout <= 0 {
		result = multierror.Append(result, errors.New("stream_idle_timeout must be positive"))
	}

	return result.ErrorOrNil()
}

func CheckDebug() bool {
	debug := os.Getenv("LUMORA_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens <dataDir>/debug.log when LUMORA_DEBUG is set. The TUI
// owns the terminal, so diagnostics never go to stderr.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - may contain conversation content
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (LUMORA_DEBUG=%s) ===", os.Getenv("LUMORA_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load resolves the configuration, creating commented default files on
// first run.
func Load() (*Config, error) {
	cfg := defaultConfig()

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory

	// LUMORA_DATA_DIR decides where config.toml lives, so apply it first.
	if dataDir := os.Getenv("LUMORA_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if err := cfg.applyUserConfig(userCfg); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if cfg.EncryptionMethod == EncryptionSSHKey && cfg.SSHKeyPath == "" {
		if keys := FindSSHKeys(); len(keys) > 0 {
			cfg.SSHKeyPath = keys[0]
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
