package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on "chatstream chat", "chatstream tui" and "chatstream conversations").
type Flag struct {
	// Name is the long flag name (e.g. "api-target").
	Name string

	// Shorthand is the one-letter short flag (e.g. "a"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "client.api_target").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddFloatFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPITarget    = "api-target"
	FlagToken        = "token"
	FlagTimeout      = "timeout"
	FlagListen       = "listen"
	FlagGenerator    = "generator"
	FlagTokenRate    = "token-rate"
	FlagAuthToken    = "auth-token"
	FlagOllamaTarget = "ollama-target"
	FlagOllamaModel  = "ollama-model"
	FlagSQLite       = "sqlite"
	FlagPostgres     = "postgres"
	FlagKafkaBrokers = "kafka-brokers"
	FlagKafkaTopic   = "kafka-topic"
)

// Flags is the registry shared by every chatstream command.
var Flags = FlagSet{
	FlagAPITarget:    {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "chatstream backend URL"},
	FlagToken:        {Name: "token", ViperKey: "client.token", Description: "Bearer token sent to the backend"},
	FlagTimeout:      {Name: "timeout", ViperKey: "client.timeout", Description: "Timeout for non-streaming requests (e.g. 30s)"},
	FlagListen:       {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the completion server to listen on"},
	FlagGenerator:    {Name: "generator", Shorthand: "g", ViperKey: "server.generator", Description: "Reply generator (echo, ollama)"},
	FlagTokenRate:    {Name: "token-rate", ViperKey: "server.token_rate", Description: "Max tokens per second per stream (0 = unlimited)"},
	FlagAuthToken:    {Name: "auth-token", ViperKey: "server.auth_token", Description: "Bearer token required on /api routes"},
	FlagOllamaTarget: {Name: "ollama-target", ViperKey: "ollama.target", Description: "Ollama server URL"},
	FlagOllamaModel:  {Name: "ollama-model", Shorthand: "m", ViperKey: "ollama.model", Description: "Ollama model name (e.g., gemma3:latest)"},
	FlagSQLite:       {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: in-memory)"},
	FlagPostgres:     {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagKafkaBrokers: {Name: "kafka-brokers", ViperKey: "eventstream.kafka_brokers", Description: "Comma separated Kafka brokers for turn events"},
	FlagKafkaTopic:   {Name: "kafka-topic", ViperKey: "eventstream.kafka_topic", Description: "Kafka topic for turn events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloatFlag registers a float64 flag on cmd from the given FlagSet.
func AddFloatFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *float64) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultFloat(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultFloat returns the default float value for a viper key from NewDefaultConfig.
func defaultFloat(viperKey string) float64 {
	v := viper.New()
	setViperDefaults(v)
	return v.GetFloat64(viperKey)
}
