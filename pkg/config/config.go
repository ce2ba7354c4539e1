// Package config loads the ordesk configuration file. All tunables are
// carried in an explicit Config object handed to constructors; the core
// packages read no environment globals.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML may use human-readable values like
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ProviderConfig describes one generative backend.
type ProviderConfig struct {
	Name        string  `yaml:"name"`
	Priority    int     `yaml:"priority"`
	APIEndpoint string  `yaml:"api_endpoint,omitempty"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// RedisConfig connects the session store and locker.
type RedisConfig struct {
	Address  string   `yaml:"address"`
	Password string   `yaml:"password,omitempty"`
	DB       int      `yaml:"db,omitempty"`
	TTL      Duration `yaml:"ttl,omitempty"`
}

// EncryptionConfig enables encryption at rest for stored sessions. Keys are
// base64-encoded 32-byte AES-256 keys; fallback keys let readers keep up
// during key rotation.
type EncryptionConfig struct {
	ActiveKey    string   `yaml:"active_key,omitempty"`
	FallbackKeys []string `yaml:"fallback_keys,omitempty"`
}

// PIIConfig masks personal data before sessions reach the store. MaskKeys
// are regexes matched against metadata keys; MaskContent are regexes
// redacted inside message transcripts.
type PIIConfig struct {
	MaskKeys    []string `yaml:"mask_keys,omitempty"`
	MaskContent []string `yaml:"mask_content,omitempty"`
}

// Config is the full process configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // text, json
	} `yaml:"log"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Debounce struct {
		Delay Duration `yaml:"delay"`
	} `yaml:"debounce"`

	Session struct {
		MaxRetries int              `yaml:"max_retries"`
		Store      string           `yaml:"store"` // memory, redis
		Redis      RedisConfig      `yaml:"redis"`
		Encryption EncryptionConfig `yaml:"encryption,omitempty"`
		PII        PIIConfig        `yaml:"pii,omitempty"`
	} `yaml:"session"`

	Providers []ProviderConfig `yaml:"providers"`

	Breaker struct {
		FailureThreshold int      `yaml:"failure_threshold"`
		RecoveryTimeout  Duration `yaml:"recovery_timeout"`
		HalfOpenBudget   int      `yaml:"half_open_budget"`
	} `yaml:"breaker"`

	CallTimeout Duration `yaml:"call_timeout"`

	Retry struct {
		MaxAttempts int      `yaml:"max_attempts"`
		Backoff     Duration `yaml:"backoff"`
	} `yaml:"retry"`

	Effects struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"effects"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	var cfg Config
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.HTTP.Addr = ":8080"
	cfg.Debounce.Delay = Duration(3 * time.Second)
	cfg.Session.MaxRetries = 3
	cfg.Session.Store = "memory"
	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.RecoveryTimeout = Duration(60 * time.Second)
	cfg.Breaker.HalfOpenBudget = 1
	cfg.CallTimeout = Duration(30 * time.Second)
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.Backoff = Duration(250 * time.Millisecond)
	cfg.Effects.Workers = 4
	cfg.Effects.QueueSize = 64
	return cfg
}

// Load reads and validates a YAML config file, applying defaults for
// absent fields. ${VAR} references are expanded from the environment so
// secrets like API keys can stay out of the file.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Debounce.Delay <= 0 {
		return fmt.Errorf("debounce.delay must be positive")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Model == "" {
			return fmt.Errorf("provider %q: model is required", p.Name)
		}
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("session.store must be memory or redis, got %q", c.Session.Store)
	}
	if c.Session.Store == "redis" && c.Session.Redis.Address == "" {
		return fmt.Errorf("session.redis.address is required for the redis store")
	}
	if c.Session.Encryption.ActiveKey != "" {
		if _, err := c.Session.Encryption.DecodeActiveKey(); err != nil {
			return fmt.Errorf("session.encryption.active_key: %w", err)
		}
		if _, err := c.Session.Encryption.DecodeFallbackKeys(); err != nil {
			return fmt.Errorf("session.encryption.fallback_keys: %w", err)
		}
	}
	for _, p := range append(append([]string{}, c.Session.PII.MaskKeys...), c.Session.PII.MaskContent...) {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("session.pii: invalid pattern %q: %w", p, err)
		}
	}
	return nil
}

// DecodeActiveKey returns the decoded AES-256 key.
func (e EncryptionConfig) DecodeActiveKey() ([]byte, error) {
	return decodeKey(e.ActiveKey)
}

// DecodeFallbackKeys returns the decoded rotation keys in order.
func (e EncryptionConfig) DecodeFallbackKeys() ([][]byte, error) {
	keys := make([][]byte, 0, len(e.FallbackKeys))
	for _, raw := range e.FallbackKeys {
		k, err := decodeKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func decodeKey(raw string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
