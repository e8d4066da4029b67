// Package debug provides leveled trace logging for the protocol engine.
//
// Tracing is off unless AMQP_DEBUG_LEVEL is set to a trace depth (0-3) or
// a level name. Depth 0 logs lifecycle events, 1 adds frames sent and
// received, 2 adds per-frame state detail and 3 adds flow accounting.
package debug

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLevel   = "AMQP_DEBUG_LEVEL"
	EnvNoColor = "AMQP_DEBUG_NOCOLOR"
)

var (
	mu     sync.RWMutex
	logger zerolog.Logger

	// deepest trace level that is emitted, -1 when tracing is off
	maxDepth atomic.Int32
)

func init() {
	depth, ok := parseDepth(os.Getenv(EnvLevel))
	if !ok {
		depth = -1
	}
	maxDepth.Store(int32(depth))

	noColor, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvNoColor)))
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: noColor}
	logger = zerolog.New(output).With().Timestamp().Str("app", "amqp").Logger()
}

// SetLogger replaces the destination of trace output.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetDepth sets the deepest trace level emitted; a negative depth disables
// tracing.
func SetDepth(depth int) {
	maxDepth.Store(int32(depth))
}

// Enabled reports whether messages at depth are emitted.
func Enabled(depth int) bool {
	return int32(depth) <= maxDepth.Load()
}

// Log writes a message at the given trace depth.
func Log(depth int, format string, v ...any) {
	if !Enabled(depth) {
		return
	}
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.WithLevel(levelFor(depth)).Int("depth", depth).Msgf(format, v...)
}

func levelFor(depth int) zerolog.Level {
	switch {
	case depth <= 0:
		return zerolog.InfoLevel
	case depth == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func parseDepth(raw string) (int, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	switch raw {
	case "trace":
		return 3, true
	case "debug":
		return 1, true
	case "info":
		return 0, true
	case "disabled", "off", "none":
		return -1, true
	default:
		return 0, false
	}
}
