// Package daemonconf loads the rosd configuration from built-in defaults,
// an optional YAML file and ROSD_* environment variables, in that order.
package daemonconf

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Redis configures the redis backend.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// Config is the daemon configuration.
type Config struct {
	GRPCAddr    string `koanf:"grpc_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	SchemaFile  string `koanf:"schema_file"`
	SeedFile    string `koanf:"seed_file"`
	Backend     string `koanf:"backend"`
	Debug       bool   `koanf:"debug"`
	JournalSize int    `koanf:"journal_size"`
	Redis       Redis  `koanf:"redis"`
}

func defaults() map[string]any {
	return map[string]any{
		"grpc_addr":      "127.0.0.1:50061",
		"metrics_addr":   "127.0.0.1:9161",
		"backend":        BackendMemory,
		"debug":          false,
		"journal_size":   100,
		"redis.addr":     "127.0.0.1:6379",
		"redis.db":       0,
		"redis.prefix":   "rosctl:device:",
		"redis.password": "",
	}
}

// envKey maps ROSD_GRPC_ADDR to grpc_addr and ROSD_REDIS__ADDR to
// redis.addr.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "ROSD_")), "__", ".")
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("ROSD_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("backend redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.GRPCAddr == "" {
		return fmt.Errorf("grpc_addr must not be empty")
	}
	if c.JournalSize < 0 {
		return fmt.Errorf("journal_size must not be negative")
	}
	return nil
}
