// Package log configures the process-wide zerolog logger.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Field names shared across components.
const (
	FieldComponent = "component"
	FieldSessionID = "session_id"
	FieldStrategy  = "strategy"
	FieldURL       = "url"
	FieldCandidate = "candidate"
	FieldOldState  = "old_state"
	FieldNewState  = "new_state"
	FieldStatus    = "status"
)

// Config holds logger options.
type Config struct {
	Level  string    // "debug", "info", ...; empty means info
	Output io.Writer // defaults to os.Stderr
	// Console forces the human-readable writer. When false the writer is
	// chosen by whether Output is a terminal.
	Console bool
}

var (
	mu   sync.RWMutex
	base = zerolog.New(io.Discard)
)

// Configure replaces the base logger. It is safe to call more than once;
// the CLI calls it after flags are parsed.
func Configure(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Console || isTerminal(out) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(out).Level(level).With().Timestamp().Logger()

	mu.Lock()
	base = l
	mu.Unlock()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Base returns the configured logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}
