// Package servecmder provides the serve command that runs the chatstream
// completion server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatstream/api"
	"github.com/papercomputeco/chatstream/pkg/completion"
	"github.com/papercomputeco/chatstream/pkg/completion/echo"
	"github.com/papercomputeco/chatstream/pkg/completion/ollama"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatstream/pkg/eventstream/nop"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/pkg/storage/inmemory"
	"github.com/papercomputeco/chatstream/pkg/storage/postgres"
	"github.com/papercomputeco/chatstream/pkg/storage/sqlite"
)

// serveFlags are the registry flags the command binds to viper.
var serveFlags = []string{
	config.FlagListen,
	config.FlagGenerator,
	config.FlagTokenRate,
	config.FlagAuthToken,
	config.FlagOllamaTarget,
	config.FlagOllamaModel,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

type serveCommander struct {
	flags struct {
		listen       string
		generator    string
		tokenRate    float64
		authToken    string
		ollamaTarget string
		ollamaModel  string
		sqlitePath   string
		postgresDSN  string
		kafkaBrokers string
		kafkaTopic   string
		logFile      string
	}

	cfg    *config.Config
	viper  *viper.Viper
	debug  bool
	logger *slog.Logger
}

const serveLongDesc string = `Run the chatstream completion server.

The server stores conversations and streams assistant replies as
text/event-stream over POST /api/chat/stream. Replies come from a
generator: "echo" replays the user message word by word, "ollama" streams
from a local Ollama server.

Storage is in-memory unless --sqlite or --postgres is set. When
--kafka-brokers is set, every completed turn is published to Kafka.

Settings come from flags, CHATSTREAM_* environment variables and
config.toml, in that order. server.token_rate is reloaded when
config.toml changes.

Examples:
  chatstream serve
  chatstream serve --generator ollama --ollama-model gemma3:latest
  chatstream serve --sqlite ./chatstream.db --token-rate 20
  chatstream serve --kafka-brokers localhost:9092
  chatstream serve --log-file serve.log`

const serveShortDesc string = "Run the chatstream completion server"

func NewServeCmd() *cobra.Command {
	cmd, _ := newServeCmd()
	return cmd
}

func newServeCmd() (*cobra.Command, *serveCommander) {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.flags.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagGenerator, &cmder.flags.generator)
	config.AddFloatFlag(cmd, config.Flags, config.FlagTokenRate, &cmder.flags.tokenRate)
	config.AddStringFlag(cmd, config.Flags, config.FlagAuthToken, &cmder.flags.authToken)
	config.AddStringFlag(cmd, config.Flags, config.FlagOllamaTarget, &cmder.flags.ollamaTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagOllamaModel, &cmder.flags.ollamaModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.flags.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.flags.kafkaTopic)
	cmd.Flags().StringVar(&cmder.flags.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd, cmder
}

// load resolves the server config: flag > env > config.toml > defaults.
func (c *serveCommander) load(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

	c.viper = v
	c.cfg = config.FromViper(v)
	return c.validate()
}

func (c *serveCommander) validate() error {
	if !config.IsValidGenerator(c.cfg.Server.Generator) {
		return fmt.Errorf("unknown generator %q, expected one of %v", c.cfg.Server.Generator, config.ValidGenerators())
	}
	if c.cfg.Server.TokenRate < 0 {
		return fmt.Errorf("token rate must not be negative, got %v", c.cfg.Server.TokenRate)
	}
	if c.cfg.Storage.SQLitePath != "" && c.cfg.Storage.PostgresDSN != "" {
		return errors.New("--sqlite and --postgres are mutually exclusive")
	}
	return nil
}

func (c *serveCommander) run() error {
	closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	ctx := context.Background()

	driver, err := c.newStorageDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	generator := c.newGenerator()

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.Server.Listen,
		AuthToken:  c.cfg.Server.AuthToken,
		TokenRate:  c.cfg.Server.TokenRate,
	}, driver, generator, publisher, c.logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	config.Watch(c.viper, func(cfg *config.Config) {
		if cfg.Server.TokenRate == server.TokenRate() {
			return
		}
		server.SetTokenRate(cfg.Server.TokenRate)
		c.logger.Info("reloaded token rate", "token_rate", server.TokenRate())
	})

	c.logger.Info("starting completion server",
		"listen", c.cfg.Server.Listen,
		"generator", generator.Name(),
		"token_rate", c.cfg.Server.TokenRate,
		"auth", c.cfg.Server.AuthToken != "",
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := server.Shutdown(); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// newLogger logs to the terminal and, with --log-file, to a JSON file.
func (c *serveCommander) newLogger() (func(), error) {
	console := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	if c.flags.logFile == "" {
		c.logger = console
		return func() {}, nil
	}

	f, err := os.OpenFile(c.flags.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithSource(c.debug),
		logger.WithWriter(f),
	)
	c.logger = logger.Multi(console, file)
	return func() { _ = f.Close() }, nil
}

func (c *serveCommander) newStorageDriver(ctx context.Context) (storage.Driver, error) {
	switch {
	case c.cfg.Storage.PostgresDSN != "":
		driver, err := postgres.NewDriver(ctx, c.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case c.cfg.Storage.SQLitePath != "":
		driver, err := sqlite.NewSQLiteDriver(c.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", c.cfg.Storage.SQLitePath)
		return driver, nil
	}

	c.logger.Info("using in-memory storage")
	return inmemory.NewDriver(), nil
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := c.cfg.EventStream.Brokers()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.cfg.EventStream.KafkaTopic,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	c.logger.Info("publishing turn events to kafka",
		"brokers", brokers,
		"topic", c.cfg.EventStream.KafkaTopic,
	)
	return pub, nil
}

func (c *serveCommander) newGenerator() completion.Generator {
	if c.cfg.Server.Generator == config.GeneratorOllama {
		return ollama.New(c.cfg.Ollama.Target, c.cfg.Ollama.Model, ollama.WithLogger(c.logger))
	}
	return echo.New()
}
