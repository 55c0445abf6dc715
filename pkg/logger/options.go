package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug. The --debug flag on chat and serve
// feeds it directly; the tui debug log always has it set.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the charmbracelet/log handler. chat and serve use it
// for the console, where a human reads the output.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON selects slog's JSON handler. serve writes it to --log-file so
// the records can be shipped and parsed. Pretty wins when both are set.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter sends output to w instead of os.Stdout. chat passes os.Stderr
// so log lines never interleave with the streamed reply. A nil w is ignored.
func WithWriter(w io.Writer) Option {
	return WithWriters(w)
}

// WithWriters sends output to every non-nil writer. With none left the
// logger keeps writing to os.Stdout.
func WithWriters(ws ...io.Writer) Option {
	return func(c *config) {
		kept := make([]io.Writer, 0, len(ws))
		for _, w := range ws {
			if w != nil {
				kept = append(kept, w)
			}
		}
		if len(kept) > 0 {
			c.writers = kept
		}
	}
}

// WithSource adds file:line to each record. serve enables it on the JSON
// log file under --debug.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
