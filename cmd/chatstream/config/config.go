// Package configcmder provides the config command for managing persistent
// chatstream configuration stored in the .chatstream/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent chatstream configuration.

Configuration is stored as config.toml in the .chatstream/ directory and
provides default values for command flags. CLI flags and CHATSTREAM_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.api_target, client.token, client.timeout,
  server.listen, server.generator, server.token_rate, server.auth_token,
  ollama.target, ollama.model,
  storage.sqlite_path, storage.postgres_dsn,
  eventstream.kafka_brokers, eventstream.kafka_topic

Use subcommands to get, set, or list configuration values:
  chatstream config set <key> <value>    Set a configuration value
  chatstream config get <key>            Get a configuration value
  chatstream config list                 List all configuration values

Examples:
  chatstream config set client.api_target http://localhost:8081
  chatstream config set server.token_rate 20
  chatstream config get server.generator
  chatstream config list`

const configShortDesc string = "Manage persistent chatstream configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// validKeyArgs completes the first argument with config keys.
func validKeyArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return configKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
