package config

import "time"

const (
	DefaultGatewayURL        = "http://localhost:8080/chat"
	DefaultStreamIdleTimeout = 60 * time.Second
)

func defaultConfig() *Config {
	return &Config{
		DataDirectory:     "~/.local/share/lumora",
		GatewayURL:        DefaultGatewayURL,
		StorageBackend:    BackendFile,
		EncryptionMethod:  EncryptionNone,
		StreamIdleTimeout: DefaultStreamIdleTimeout,
	}
}

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/lumora",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Gateway: GatewaySection{
			URL: DefaultGatewayURL,
		},
		Storage: StorageSection{
			Backend: BackendFile,
		},
		Encryption: EncryptionSection{
			Method: string(EncryptionNone),
		},
		StreamIdleTimeout: DefaultStreamIdleTimeout.String(),
	}
}

func GenerateSystemConfigTemplate() string {
	return `# Lumora System Configuration
# Location: ~/.config/lumora/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations, settings and config.toml are stored
data_directory = "~/.local/share/lumora"
`
}

func GenerateUserConfigTemplate() string {
	return `# Lumora User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# A reply that produces no bytes for this long is treated as failed
stream_idle_timeout = "60s"

[gateway]
# Chat endpoint of the Lumora gateway
url = "http://localhost:8080/chat"

# Bearer credential sent as "Authorization: Bearer <api_key>" (optional)
api_key = ""

[storage]
# Where conversations and settings live: "file", "sqlite" or "memory"
backend = "file"

[encryption]
# "none" or "ssh_key" (encrypts stored records with a key derived from an SSH key)
method = "none"
# ssh_key_path = "~/.ssh/id_ed25519"
`
}
