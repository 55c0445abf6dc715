package config

// Generator names accepted by server.generator.
const (
	GeneratorEcho   = "echo"
	GeneratorOllama = "ollama"
)

const (
	defaultServerListen = ":8081"
	defaultGenerator    = GeneratorEcho

	defaultClientAPITarget = "http://localhost:8081"
	defaultClientTimeout   = "30s"

	defaultOllamaTarget = "http://localhost:11434"
	defaultOllamaModel  = "gemma3:latest"

	defaultKafkaTopic = "chatstream.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
			Timeout:   defaultClientTimeout,
		},
		Server: ServerConfig{
			Listen:    defaultServerListen,
			Generator: defaultGenerator,
		},
		Ollama: OllamaConfig{
			Target: defaultOllamaTarget,
			Model:  defaultOllamaModel,
		},
		EventStream: EventStreamConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
