package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent chatstream configuration stored as
// config.toml in the .chatstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Server      ServerConfig      `toml:"server"`
	Ollama      OllamaConfig      `toml:"ollama"`
	Storage     StorageConfig     `toml:"storage"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// backend (chatstream chat, chatstream tui, chatstream conversations).
// APITarget is a full URL (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
	Token     string `toml:"token,omitempty"`
	Timeout   string `toml:"timeout,omitempty"`
}

// ServerConfig holds completion server settings.
type ServerConfig struct {
	Listen    string  `toml:"listen,omitempty"`
	Generator string  `toml:"generator,omitempty"`
	TokenRate float64 `toml:"token_rate,omitempty"`
	AuthToken string  `toml:"auth_token,omitempty"`
}

// OllamaConfig configures the ollama generator.
type OllamaConfig struct {
	Target string `toml:"target,omitempty"`
	Model  string `toml:"model,omitempty"`
}

// StorageConfig selects the server's storage backend. With neither path
// nor DSN set, conversations are kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventStreamConfig configures turn event publishing. With no brokers,
// events are discarded.
type EventStreamConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// Brokers splits the comma separated broker list.
func (e EventStreamConfig) Brokers() []string {
	return SplitList(e.KafkaBrokers)
}

// SplitList splits a comma separated value, dropping empty entries.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"client.token": {
		get: func(c *Config) string { return c.Client.Token },
		set: func(c *Config, v string) error { c.Client.Token = v; return nil },
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for client.timeout: %w", err)
			}
			c.Client.Timeout = v
			return nil
		},
	},
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"server.generator": {
		get: func(c *Config) string { return c.Server.Generator },
		set: func(c *Config, v string) error {
			if !IsValidGenerator(v) {
				return fmt.Errorf("invalid value for server.generator: %q (available: %s)",
					v, strings.Join(ValidGenerators(), ", "))
			}
			c.Server.Generator = v
			return nil
		},
	},
	"server.token_rate": {
		get: func(c *Config) string {
			if c.Server.TokenRate == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Server.TokenRate, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for server.token_rate: %w", err)
			}
			if f < 0 {
				return fmt.Errorf("invalid value for server.token_rate: must not be negative")
			}
			c.Server.TokenRate = f
			return nil
		},
	},
	"server.auth_token": {
		get: func(c *Config) string { return c.Server.AuthToken },
		set: func(c *Config, v string) error { c.Server.AuthToken = v; return nil },
	},
	"ollama.target": {
		get: func(c *Config) string { return c.Ollama.Target },
		set: func(c *Config, v string) error { c.Ollama.Target = v; return nil },
	},
	"ollama.model": {
		get: func(c *Config) string { return c.Ollama.Model },
		set: func(c *Config, v string) error { c.Ollama.Model = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return c.EventStream.KafkaBrokers },
		set: func(c *Config, v string) error { c.EventStream.KafkaBrokers = v; return nil },
	},
	"eventstream.kafka_topic": {
		get: func(c *Config) string { return c.EventStream.KafkaTopic },
		set: func(c *Config, v string) error { c.EventStream.KafkaTopic = v; return nil },
	},
}

// ValidGenerators returns the names accepted by server.generator.
func ValidGenerators() []string {
	return []string{GeneratorEcho, GeneratorOllama}
}

// IsValidGenerator reports whether name is a known generator.
func IsValidGenerator(name string) bool {
	switch name {
	case GeneratorEcho, GeneratorOllama:
		return true
	}
	return false
}
