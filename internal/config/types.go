package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every server-level option for the whitelist service.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs consumed at startup.
type ServerConfig struct {
	Listen    ListenConfig      `koanf:"listen"`
	Logging   LoggingConfig     `koanf:"logging"`
	Whitelist WhitelistConfig   `koanf:"whitelist"`
	Cache     ServerCacheConfig `koanf:"cache"`
	Resolver  ResolverConfig    `koanf:"resolver"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// WhitelistConfig gates the feature and points at the per-kind list files.
type WhitelistConfig struct {
	// Enabled switches the whole feature; disabled scopes answer
	// "not activated" without touching cache or lists.
	Enabled bool `koanf:"enabled"`
	// RDNSGlobalOnly restricts reverse-DNS checks to globally routable
	// client addresses.
	RDNSGlobalOnly bool `koanf:"rdnsGlobalOnly"`
	// ListsFolder holds one newline-delimited file per kind
	// (IP.list, RDNS.list, ASN.list, USER_AGENT.list, URI.list).
	ListsFolder string `koanf:"listsFolder"`
	// DefaultScope namespaces cache keys when the caller sends no
	// server-identity header.
	DefaultScope string `koanf:"defaultScope"`
}

// ServerCacheConfig selects and tunes the decision cache backend.
type ServerCacheConfig struct {
	Backend    string                 `koanf:"backend"`
	TTLSeconds int                    `koanf:"ttlSeconds"`
	Redis      ServerRedisCacheConfig `koanf:"redis"`
}

type ServerRedisCacheConfig struct {
	Address  string               `koanf:"address"`
	Username string               `koanf:"username"`
	Password string               `koanf:"password"`
	DB       int                  `koanf:"db"`
	TLS      ServerRedisTLSConfig `koanf:"tls"`
}

type ServerRedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// ResolverConfig tunes the reverse-DNS and ASN lookup boundary.
type ResolverConfig struct {
	// ASNDatabase is a MaxMind GeoLite2-ASN mmdb path; empty disables ASN
	// resolution (the engine treats every ASN tier as inconclusive).
	ASNDatabase string `koanf:"asnDatabase"`
	// RDNSTimeoutMS bounds each reverse lookup in milliseconds.
	RDNSTimeoutMS int `koanf:"rdnsTimeoutMs"`
}

// Validate enforces invariants that keep the runtime predictable before
// serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.Server.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config: server.cache.ttlSeconds invalid: %d", c.Server.Cache.TTLSeconds)
	}
	if c.Server.Resolver.RDNSTimeoutMS < 0 {
		return fmt.Errorf("config: server.resolver.rdnsTimeoutMs invalid: %d", c.Server.Resolver.RDNSTimeoutMS)
	}
	if strings.TrimSpace(c.Server.Whitelist.ListsFolder) == "" {
		return errors.New("config: server.whitelist.listsFolder required")
	}
	backend := strings.TrimSpace(strings.ToLower(c.Server.Cache.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Server.Cache.Redis.Address) == "" {
			return errors.New("config: server.cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: server.cache.backend unsupported: %s", c.Server.Cache.Backend)
	}
	return nil
}

// DefaultConfig returns the baseline values.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Whitelist: WhitelistConfig{
				Enabled:        true,
				RDNSGlobalOnly: true,
				ListsFolder:    "./lists",
				DefaultScope:   "default",
			},
			Cache: ServerCacheConfig{
				Backend:    "memory",
				TTLSeconds: 86400,
			},
			Resolver: ResolverConfig{
				RDNSTimeoutMS: 2000,
			},
		},
	}
}
