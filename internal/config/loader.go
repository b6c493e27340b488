package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvWSURL      = "SAFELIFT_WS_URL"
	EnvBackendURL = "SAFELIFT_BACKEND_URL"
	EnvAPIToken   = "SAFELIFT_API_TOKEN"
)

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg FeedConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
// An empty path yields the defaults alone.
func LoadWithDefaults(path string) (*FeedConfig, error) {
	cfg := &FeedConfig{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*FeedConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv applies overrides that have no settings-file layer.
func (c *FeedConfig) applyEnv() {
	if v := os.Getenv(EnvAPIToken); v != "" {
		c.API.Token = v
	}
}

// ResolveWSURL picks the broadcaster endpoint:
// environment, then persisted settings, then YAML (or its default).
func (c *FeedConfig) ResolveWSURL(fromSettings string) string {
	return resolve(os.Getenv(EnvWSURL), fromSettings, c.API.WSURL)
}

// ResolveBaseURL picks the REST root with the same precedence as ResolveWSURL.
func (c *FeedConfig) ResolveBaseURL(fromSettings string) string {
	return resolve(os.Getenv(EnvBackendURL), fromSettings, c.API.BaseURL)
}

func resolve(candidates ...string) string {
	for _, v := range candidates {
		if v != "" {
			return v
		}
	}
	return ""
}
