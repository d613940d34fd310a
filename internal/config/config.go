// Package config handles loading and validating bridgehub configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// BridgeConfig is the top-level configuration for a bridgehub endpoint
// and its demo HTTP introspection shell.
type BridgeConfig struct {
	Endpoint   EndpointConfig   `koanf:"endpoint"`
	Timeouts   TimeoutConfig    `koanf:"timeouts"`
	Bridge     BridgeHTTPConfig `koanf:"bridge"`
	TraceLevel string           `koanf:"trace_level"`
}

// EndpointConfig identifies this endpoint and the origins it will
// exchange envelopes with (§3's namespace/origin-gate contract).
type EndpointConfig struct {
	ID                     string        `koanf:"id"`
	SecretKey              string        `koanf:"secret_key"`
	TargetOrigin           string        `koanf:"target_origin"`
	AllowedOrigins         []string      `koanf:"allowed_origins"`
	Strict                 bool          `koanf:"strict"`
	HeartbeatInterval      time.Duration `koanf:"heartbeat_interval"`
	MaxConcurrentPerClient int           `koanf:"max_concurrent_per_client"`
}

// TimeoutConfig holds the default wait durations for the three waiter
// kinds the role layers register (§6's pending-operation taxonomy).
type TimeoutConfig struct {
	Ack      time.Duration `koanf:"ack"`
	Response time.Duration `koanf:"response"`
	Async    time.Duration `koanf:"async"`
}

// BridgeHTTPConfig holds the demo introspection HTTP server's settings
// (mirrors the teacher's ServerConfig).
type BridgeHTTPConfig struct {
	ListenAddr   string        `koanf:"listen_addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated BridgeConfig.
func Load(path string) (*BridgeConfig, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	// The "." delimiter separates nested keys internally (e.g. "endpoint.id").
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Any env var starting with "BRIDGEHUB_" overrides a config value.
	//   BRIDGEHUB_ENDPOINT_ID -> endpoint.id
	//   BRIDGEHUB_BRIDGE_LISTEN_ADDR -> bridge.listen_addr
	if err := k.Load(env.Provider("BRIDGEHUB_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "BRIDGEHUB_"))
		// Only the underscore after a section name separates nesting
		// levels; the rest belong to the field name.
		if section, field, ok := strings.Cut(key, "_"); ok {
			switch section {
			case "endpoint", "timeouts", "bridge":
				return section + "." + field
			}
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg BridgeConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand a ${VAR_NAME} secret_key placeholder the same way the
	// provider api_key fields expand in the teacher's config.
	if strings.HasPrefix(cfg.Endpoint.SecretKey, "${") && strings.HasSuffix(cfg.Endpoint.SecretKey, "}") {
		envVar := cfg.Endpoint.SecretKey[2 : len(cfg.Endpoint.SecretKey)-1]
		cfg.Endpoint.SecretKey = os.Getenv(envVar)
	}

	if cfg.Endpoint.HeartbeatInterval == 0 {
		cfg.Endpoint.HeartbeatInterval = 15 * time.Second
	}
	if cfg.Endpoint.MaxConcurrentPerClient == 0 {
		cfg.Endpoint.MaxConcurrentPerClient = 32
	}
	if cfg.Timeouts.Ack == 0 {
		cfg.Timeouts.Ack = 5 * time.Second
	}
	if cfg.Timeouts.Response == 0 {
		cfg.Timeouts.Response = 30 * time.Second
	}
	if cfg.Timeouts.Async == 0 {
		cfg.Timeouts.Async = 2 * time.Minute
	}
	if cfg.TraceLevel == "" {
		cfg.TraceLevel = "info"
	}

	return &cfg, nil
}
