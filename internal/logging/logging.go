// Package logging builds the process logger. The level is held in a
// slog.LevelVar so a config reload can change it without rebuilding handlers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	mu       sync.Mutex
	levelVar = new(slog.LevelVar)
)

// Format names accepted by New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// New returns a logger writing to w in the given format at level. The level
// is shared by every logger New returns, and SetLevel changes it.
func New(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	levelVar.Set(level)
	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("log.format must be json or text, got %q", format)
	}
	return slog.New(handler), nil
}

// SetLevel changes the minimum level of every logger built by New.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	levelVar.Set(level)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return levelVar.Level()
}

// ComponentLogger returns logger with the component attribute pre-attached.
func ComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", component))
}
