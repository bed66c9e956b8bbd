// Package config loads the gateway configuration from TOML.
//
// File values overlay Default(); keys absent from the file keep their
// defaults. Durations are Go duration strings ("10s", "250ms").
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const EnvConfigPath = "QRGATE_CONFIG"

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	ID              string
	ListenAddr      string
	MaxPayloadBytes int
	ReadTimeout     time.Duration
	QueueSize       int
	HistoryLimit    int
	Verify          VerifyConfig
	Dispatch        DispatchConfig
	Supervisor      SupervisorConfig
	Status          StatusConfig
}

type VerifyConfig struct {
	Scheme    string
	Secret    string
	PublicKey string
}

type DispatchConfig struct {
	BaseURL string
	Path    string
	Token   string
	Timeout time.Duration
}

type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type SupervisorConfig struct {
	RestartPolicy string
	MaxRestarts   int
	Backoff       BackoffConfig
}

type StatusConfig struct {
	Addr        string
	Token       string
	CorsOrigins []string
}

func Default() Config {
	return Config{
		ID:              "qrgate.local",
		ListenAddr:      "0.0.0.0:12345",
		MaxPayloadBytes: 1024,
		ReadTimeout:     10 * time.Second,
		QueueSize:       64,
		HistoryLimit:    100,
		Verify: VerifyConfig{
			Scheme: "secretbox",
		},
		Dispatch: DispatchConfig{
			Path:    "/access",
			Timeout: 5 * time.Second,
		},
		Supervisor: SupervisorConfig{
			RestartPolicy: "prompt",
			MaxRestarts:   0,
			Backoff: BackoffConfig{
				InitialDelay: 250 * time.Millisecond,
				Multiplier:   2.0,
				MaxDelay:     5 * time.Second,
			},
		},
		Status: StatusConfig{
			Addr: "",
		},
	}
}

type fileConfig struct {
	ID              string        `toml:"id"`
	ListenAddr      string        `toml:"listen_addr"`
	MaxPayloadBytes int           `toml:"max_payload_bytes"`
	ReadTimeout     string        `toml:"read_timeout"`
	QueueSize       int           `toml:"queue_size"`
	HistoryLimit    int           `toml:"history_limit"`
	Verify          fileVerify    `toml:"verify"`
	Dispatch        fileDispatch  `toml:"dispatch"`
	Supervisor      fileSupervise `toml:"supervisor"`
	Status          fileStatus    `toml:"status"`
}

type fileVerify struct {
	Scheme    string `toml:"scheme"`
	Secret    string `toml:"secret"`
	SecretEnv string `toml:"secret_env"`
	PublicKey string `toml:"public_key"`
}

type fileDispatch struct {
	BaseURL  string `toml:"base_url"`
	Path     string `toml:"path"`
	Token    string `toml:"token"`
	TokenEnv string `toml:"token_env"`
	Timeout  string `toml:"timeout"`
}

type fileSupervise struct {
	RestartPolicy     string  `toml:"restart_policy"`
	MaxRestarts       int     `toml:"max_restarts"`
	BackoffInitial    string  `toml:"backoff_initial"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	BackoffMax        string  `toml:"backoff_max"`
	BackoffJitter     bool    `toml:"backoff_jitter"`
}

type fileStatus struct {
	Addr        string   `toml:"addr"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
}

// ResolvePath prefers an explicit path and falls back to QRGATE_CONFIG.
func ResolvePath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

// Load reads path over Default() and validates the result. An empty path
// returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown keys %v in %s", ErrInvalidConfig, undecoded, path)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ID = id
		}
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration("read_timeout", raw.ReadTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("queue_size") {
		cfg.QueueSize = raw.QueueSize
	}
	if meta.IsDefined("history_limit") {
		cfg.HistoryLimit = raw.HistoryLimit
	}

	if meta.IsDefined("verify", "scheme") {
		cfg.Verify.Scheme = strings.ToLower(strings.TrimSpace(raw.Verify.Scheme))
	}
	if meta.IsDefined("verify", "secret") {
		cfg.Verify.Secret = raw.Verify.Secret
	}
	if meta.IsDefined("verify", "secret_env") {
		cfg.Verify.Secret = os.Getenv(strings.TrimSpace(raw.Verify.SecretEnv))
	}
	if meta.IsDefined("verify", "public_key") {
		cfg.Verify.PublicKey = strings.TrimSpace(raw.Verify.PublicKey)
	}

	if meta.IsDefined("dispatch", "base_url") {
		cfg.Dispatch.BaseURL = strings.TrimSpace(raw.Dispatch.BaseURL)
	}
	if meta.IsDefined("dispatch", "path") {
		cfg.Dispatch.Path = strings.TrimSpace(raw.Dispatch.Path)
	}
	if meta.IsDefined("dispatch", "token") {
		cfg.Dispatch.Token = strings.TrimSpace(raw.Dispatch.Token)
	}
	if meta.IsDefined("dispatch", "token_env") {
		cfg.Dispatch.Token = strings.TrimSpace(os.Getenv(strings.TrimSpace(raw.Dispatch.TokenEnv)))
	}
	if meta.IsDefined("dispatch", "timeout") {
		d, err := parseDuration("dispatch.timeout", raw.Dispatch.Timeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Dispatch.Timeout = d
	}

	if meta.IsDefined("supervisor", "restart_policy") {
		cfg.Supervisor.RestartPolicy = strings.ToLower(strings.TrimSpace(raw.Supervisor.RestartPolicy))
	}
	if meta.IsDefined("supervisor", "max_restarts") {
		cfg.Supervisor.MaxRestarts = raw.Supervisor.MaxRestarts
	}
	if meta.IsDefined("supervisor", "backoff_initial") {
		d, err := parseDuration("supervisor.backoff_initial", raw.Supervisor.BackoffInitial)
		if err != nil {
			return Config{}, err
		}
		cfg.Supervisor.Backoff.InitialDelay = d
	}
	if meta.IsDefined("supervisor", "backoff_multiplier") {
		cfg.Supervisor.Backoff.Multiplier = raw.Supervisor.BackoffMultiplier
	}
	if meta.IsDefined("supervisor", "backoff_max") {
		d, err := parseDuration("supervisor.backoff_max", raw.Supervisor.BackoffMax)
		if err != nil {
			return Config{}, err
		}
		cfg.Supervisor.Backoff.MaxDelay = d
	}
	if meta.IsDefined("supervisor", "backoff_jitter") {
		cfg.Supervisor.Backoff.Jitter = raw.Supervisor.BackoffJitter
	}

	if meta.IsDefined("status", "addr") {
		cfg.Status.Addr = strings.TrimSpace(raw.Status.Addr)
	}
	if meta.IsDefined("status", "token") {
		cfg.Status.Token = strings.TrimSpace(raw.Status.Token)
	}
	if meta.IsDefined("status", "cors_origins") {
		cfg.Status.CorsOrigins = normalizeList(raw.Status.CorsOrigins)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at first use.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen_addr %q: %v", ErrInvalidConfig, c.ListenAddr, err)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("%w: max_payload_bytes must be positive, got %d", ErrInvalidConfig, c.MaxPayloadBytes)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("%w: read_timeout must not be negative", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	}
	switch c.Verify.Scheme {
	case "secretbox", "ed25519":
	default:
		return fmt.Errorf("%w: verify.scheme %q", ErrInvalidConfig, c.Verify.Scheme)
	}
	switch c.Supervisor.RestartPolicy {
	case "prompt", "always", "never":
	default:
		return fmt.Errorf("%w: supervisor.restart_policy %q", ErrInvalidConfig, c.Supervisor.RestartPolicy)
	}
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("%w: supervisor.max_restarts must not be negative", ErrInvalidConfig)
	}
	if c.Status.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			return fmt.Errorf("%w: status.addr %q: %v", ErrInvalidConfig, c.Status.Addr, err)
		}
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
