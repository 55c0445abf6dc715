package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. CHATSTREAM_SERVER_LISTEN.
const EnvPrefix = "CHATSTREAM"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CHATSTREAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHATSTREAM_SERVER_LISTEN, CHATSTREAM_CLIENT_TOKEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves a Config from v, so callers see flag, env and file
// values through one struct.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
			Token:     v.GetString("client.token"),
			Timeout:   v.GetString("client.timeout"),
		},
		Server: ServerConfig{
			Listen:    v.GetString("server.listen"),
			Generator: v.GetString("server.generator"),
			TokenRate: v.GetFloat64("server.token_rate"),
			AuthToken: v.GetString("server.auth_token"),
		},
		Ollama: OllamaConfig{
			Target: v.GetString("ollama.target"),
			Model:  v.GetString("ollama.model"),
		},
		Storage: StorageConfig{
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		EventStream: EventStreamConfig{
			KafkaBrokers: v.GetString("eventstream.kafka_brokers"),
			KafkaTopic:   v.GetString("eventstream.kafka_topic"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
	v.SetDefault("client.token", d.Client.Token)
	v.SetDefault("client.timeout", d.Client.Timeout)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.generator", d.Server.Generator)
	v.SetDefault("server.token_rate", d.Server.TokenRate)
	v.SetDefault("server.auth_token", d.Server.AuthToken)

	// Ollama
	v.SetDefault("ollama.target", d.Ollama.Target)
	v.SetDefault("ollama.model", d.Ollama.Model)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Event stream
	v.SetDefault("eventstream.kafka_brokers", d.EventStream.KafkaBrokers)
	v.SetDefault("eventstream.kafka_topic", d.EventStream.KafkaTopic)
}
