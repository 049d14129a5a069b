package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"LUMORA_GATEWAY_URL", "LUMORA_API_KEY", "LUMORA_DATA_DIR", "LUMORA_STORAGE_BACKEND", "LUMORA_DEBUG"} {
		t.Setenv(key, "")
	}
	return home
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GatewayURL:        "http://localhost:8080/chat",
			StorageBackend:    BackendFile,
			EncryptionMethod:  EncryptionNone,
			StreamIdleTimeout: time.Minute,
		}
	}

	tests := []struct {
		name       string
		mutate     func(*Config)
		wantErrors int
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErrors: 0},
		{name: "sqlite backend", mutate: func(c *Config) { c.StorageBackend = BackendSQLite }, wantErrors: 0},
		{name: "missing url", mutate: func(c *Config) { c.GatewayURL = "" }, wantErrors: 1},
		{name: "relative url", mutate: func(c *Config) { c.GatewayURL = "/chat" }, wantErrors: 1},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "redis" }, wantErrors: 1},
		{name: "ssh key without path", mutate: func(c *Config) { c.EncryptionMethod = EncryptionSSHKey }, wantErrors: 1},
		{
			name: "every problem reported",
			mutate: func(c *Config) {
				c.GatewayURL = ""
				c.StorageBackend = "?"
				c.EncryptionMethod = "rot13"
				c.StreamIdleTimeout = 0
			},
			wantErrors: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErrors == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := strings.Count(err.Error(), "* "); got != tt.wantErrors {
				t.Errorf("got %d errors, want %d: %v", got, tt.wantErrors, err)
			}
		})
	}
}

func TestLoadCreatesDefaults(t *testing.T) {
	home := isolateEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GatewayURL != DefaultGatewayURL {
		t.Errorf("GatewayURL = %q, want %q", cfg.GatewayURL, DefaultGatewayURL)
	}
	if cfg.StorageBackend != BackendFile {
		t.Errorf("StorageBackend = %q, want %q", cfg.StorageBackend, BackendFile)
	}
	if cfg.StreamIdleTimeout != DefaultStreamIdleTimeout {
		t.Errorf("StreamIdleTimeout = %v, want %v", cfg.StreamIdleTimeout, DefaultStreamIdleTimeout)
	}

	if !FileExists(filepath.Join(home, ".config", "lumora", "settings.toml")) {
		t.Error("settings.toml was not created")
	}
	userCfg := GetUserConfigPath(cfg.DataDir())
	info, err := os.Stat(userCfg)
	if err != nil {
		t.Fatalf("config.toml was not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config.toml mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadReadsUserConfigAndEnv(t *testing.T) {
	isolateEnv(t)
	dataDir := t.TempDir()
	t.Setenv("LUMORA_DATA_DIR", dataDir)

	content := `stream_idle_timeout = "15s"

[gateway]
url = "https://gw.example.com/chat"
api_key = "from-file"

[storage]
backend = "sqlite"
`
	if err := os.WriteFile(GetUserConfigPath(dataDir), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LUMORA_API_KEY", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DataDir() != dataDir {
		t.Errorf("DataDir() = %q, want %q", cfg.DataDir(), dataDir)
	}
	if cfg.GatewayURL != "https://gw.example.com/chat" {
		t.Errorf("GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env override", cfg.APIKey)
	}
	if cfg.StorageBackend != BackendSQLite {
		t.Errorf("StorageBackend = %q", cfg.StorageBackend)
	}
	if cfg.StreamIdleTimeout != 15*time.Second {
		t.Errorf("StreamIdleTimeout = %v", cfg.StreamIdleTimeout)
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	isolateEnv(t)
	dataDir := t.TempDir()
	t.Setenv("LUMORA_DATA_DIR", dataDir)

	if err := os.WriteFile(GetUserConfigPath(dataDir), []byte(`stream_idle_timeout = "soon"`), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparsable stream_idle_timeout")
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"~", "/home/tester"},
		{"~/.local/share/lumora", "/home/tester/.local/share/lumora"},
		{"/var/lib/lumora/", "/var/lib/lumora"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeEd25519Key(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecordCipherRoundTrip(t *testing.T) {
	keyPath := writeEd25519Key(t, "")

	c1, err := NewRecordCipher(keyPath, "")
	if err != nil {
		t.Fatalf("NewRecordCipher() error = %v", err)
	}
	sealed, err := c1.Seal([]byte(`[{"id":"a"}]`))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	// A second cipher from the same key must open the record.
	c2, err := NewRecordCipher(keyPath, "")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := c2.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(plain) != `[{"id":"a"}]` {
		t.Errorf("Open() = %q", plain)
	}

	other, err := NewRecordCipher(writeEd25519Key(t, ""), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Open(sealed); err == nil {
		t.Error("a different key opened the record")
	}
}

func TestRecordCipherPassphrase(t *testing.T) {
	keyPath := writeEd25519Key(t, "hunter2")

	if _, err := NewRecordCipher(keyPath, ""); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("error = %v, want ErrPassphraseRequired", err)
	}
	if _, err := NewRecordCipher(keyPath, "wrong"); err == nil {
		t.Fatal("expected error for wrong passphrase")
	}
	if _, err := NewRecordCipher(keyPath, "hunter2"); err != nil {
		t.Fatalf("NewRecordCipher() with passphrase error = %v", err)
	}
}

func TestRecordCipherOpenShortInput(t *testing.T) {
	c, err := NewRecordCipherFromKey(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Open([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
	if _, err := NewRecordCipherFromKey(make([]byte, 16)); err == nil {
		t.Error("expected error for short key")
	}
}

func TestLoadGatewayConfig(t *testing.T) {
	for _, key := range []string{"LUMORA_GATEWAY_ADDR", "UPSTREAM_API_KEY", "UPSTREAM_BASE_URL", "ALLOWED_MODELS", "DEFAULT_MODEL", "SYSTEM_PROMPT", "CLIENT_API_KEY", "CLIENT_JWT_SECRET", "UPSTREAM_TIMEOUT", "LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadGatewayConfig()
		if err != nil {
			t.Fatalf("LoadGatewayConfig() error = %v", err)
		}
		if cfg.Addr != ":8080" {
			t.Errorf("Addr = %q", cfg.Addr)
		}
		if len(cfg.AllowedModels) != 3 || cfg.DefaultModel != "openai/gpt-5" {
			t.Errorf("models = %v default %q", cfg.AllowedModels, cfg.DefaultModel)
		}
		if cfg.SystemPrompt != DefaultSystemPrompt {
			t.Error("system prompt not defaulted")
		}
		if cfg.UpstreamTimeout != 120*time.Second {
			t.Errorf("UpstreamTimeout = %v", cfg.UpstreamTimeout)
		}
	})

	t.Run("default model outside allow list", func(t *testing.T) {
		t.Setenv("ALLOWED_MODELS", "a,b")
		t.Setenv("DEFAULT_MODEL", "c")
		if _, err := LoadGatewayConfig(); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("both client credentials", func(t *testing.T) {
		t.Setenv("CLIENT_API_KEY", "k")
		t.Setenv("CLIENT_JWT_SECRET", "s")
		if _, err := LoadGatewayConfig(); err == nil {
			t.Fatal("expected validation error")
		}
	})
}
