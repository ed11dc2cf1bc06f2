// Package config loads the settings of the contentauth service.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults
//  2. a YAML file (path given explicitly or via CONTENTAUTH_CONFIG)
//  3. CONTENTAUTH_* environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file path when none is given
const PathEnvVar = "CONTENTAUTH_CONFIG"

const envPrefix = "CONTENTAUTH_"

const (
	BackendFile  = "file"
	BackendAzure = "azure"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Keys    KeysConfig    `koanf:"keys"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	APIToken        string        `koanf:"api_token" validate:"required,min=16"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow      time.Duration `koanf:"rate_window" validate:"gt=0"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"gt=0"`

	// CORSAllowedOrigins enables CORS for browser clients; empty disables it
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"dive,required"`
}

type KeysConfig struct {
	Backend        string      `koanf:"backend" validate:"oneof=file azure"`
	File           string      `koanf:"file"`
	RotationPolicy string      `koanf:"rotation_policy" validate:"omitempty,oneof=daily weekly monthly quarterly"`
	Azure          AzureConfig `koanf:"azure"`
}

type AzureConfig struct {
	AccountName string `koanf:"account_name"`
	AccountKey  string `koanf:"account_key"`
	ServiceURL  string `koanf:"service_url" validate:"omitempty,url"`
	Container   string `koanf:"container"`
	Blob        string `koanf:"blob"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			RateLimit:       120,
			RateWindow:      time.Minute,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Keys: KeysConfig{
			Backend: BackendFile,
			File:    "content-auth-keys",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads defaults, the optional YAML file at path and the
// environment, then validates the result
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks field constraints and the settings
// required by the selected key backend
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Keys.Backend {
	case BackendFile:
		if c.Keys.File == "" {
			return errors.New("keys.file is required for the file backend")
		}
	case BackendAzure:
		if c.Keys.Azure.AccountName == "" || c.Keys.Azure.AccountKey == "" {
			return errors.New("keys.azure.account_name and keys.azure.account_key are required for the azure backend")
		}
	}

	return nil
}

func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		"addr":             "server.addr",
		"api_token":        "server.api_token",
		"rate_limit":       "server.rate_limit",
		"rate_window":      "server.rate_window",
		"read_timeout":     "server.read_timeout",
		"write_timeout":    "server.write_timeout",
		"shutdown_timeout": "server.shutdown_timeout",
		"max_body_bytes":   "server.max_body_bytes",
		"cors_origins":     "server.cors_allowed_origins",

		"key_backend":     "keys.backend",
		"key_file":        "keys.file",
		"rotation_policy": "keys.rotation_policy",

		"azure_account_name": "keys.azure.account_name",
		"azure_account_key":  "keys.azure.account_key",
		"azure_service_url":  "keys.azure.service_url",
		"azure_container":    "keys.azure.container",
		"azure_blob":         "keys.azure.blob",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// unmapped variables are skipped
	return ""
}
