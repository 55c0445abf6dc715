// Package initcmder provides the init command for initializing a local
// .chatstream directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

const remoteFetchTimeout = 10 * time.Second

type initCommander struct {
	preset string
}

const initLongDesc string = `Initialize a new .chatstream/ directory in the current working directory.

Creates a local .chatstream/ directory that takes precedence over the
default ~/.chatstream/ directory for configuration and session state,
and writes a config.toml with default values if none exists.

Use --preset to write config.toml from a named preset, replacing any
existing one:
  local     echo generator, in-memory storage
  ollama    replies streamed from a local Ollama server
  durable   ollama generator, SQLite storage and Kafka turn events

--preset also accepts an http(s) URL pointing at a config.toml.

Examples:
  chatstream init
  chatstream init --preset ollama
  chatstream init --preset https://example.com/chatstream/config.toml`

const initShortDesc string = "Initialize a local .chatstream/ directory"

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Config preset (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func (c *initCommander) run(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)

	// Resolve the preset before touching the filesystem so a bad preset
	// leaves nothing behind.
	var cfg *config.Config
	if c.preset != "" {
		cfg, err = resolvePreset(ctx, c.preset)
		if err != nil {
			return err
		}
	}

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .chatstream directory: %w", err)
		}
		fmt.Fprintf(w, "Initialized .chatstream directory: %s\n", dir)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	if cfg == nil {
		_, err := os.Stat(cfger.GetTarget())
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading config: %w", err)
		}
		cfg = config.NewDefaultConfig()
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote %s\n", cfger.GetTarget())
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchRemoteConfig(ctx, preset)
	}
	return config.PresetConfig(preset)
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
