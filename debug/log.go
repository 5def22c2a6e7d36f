package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	file    *os.File
	mu      sync.Mutex
	enabled bool
)

// DefaultPath returns ~/.config/go-stepseq/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "go-stepseq", "debug.log")
}

// Enable starts debug logging to path (DefaultPath if empty)
func Enable(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true

	// Write directly (can't call Log - we hold the mutex)
	writeLine("debug", "=== Debug logging started ===")

	return nil
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
	clear(counters)
}

// Enabled reports whether debug logging is on
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || file == nil {
		return
	}

	writeLine(category, fmt.Sprintf(format, args...))
}

// writeLine must be called with mu held
func writeLine(category, msg string) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(file, "[%s] %-10s %s\n", ts, category, msg)
	file.Sync() // flush immediately so we see logs even on crash
}

// LogEvery logs only every n-th call with the same category and format
// (use for high-frequency events). n < 1 logs nothing.
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	if n < 1 {
		return
	}
	mu.Lock()
	if !enabled {
		mu.Unlock()
		return
	}
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}

// Logger returns a structured logger that writes into the debug log under
// the given category. It is silent while debug logging is disabled, so it
// can be created before Enable is called.
func Logger(category string) *slog.Logger {
	return slog.New(&handler{category: category})
}

// handler renders records with a slog.TextHandler into a buffer and hands
// the line to the shared debug file.
type handler struct {
	category string
	// WithAttrs/WithGroup calls, replayed in order onto each text handler
	chain []func(slog.Handler) slog.Handler
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return Enabled()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var buf lineBuffer
	var th slog.Handler = slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Timestamp and category are written by writeLine
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			// Standardize 'error' key to 'err'
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	})
	for _, apply := range h.chain {
		th = apply(th)
	}
	if err := th.Handle(ctx, r); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if !enabled || file == nil {
		return nil
	}
	writeLine(h.category, buf.String())
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(th slog.Handler) slog.Handler { return th.WithAttrs(attrs) })
}

func (h *handler) WithGroup(name string) slog.Handler {
	return h.with(func(th slog.Handler) slog.Handler { return th.WithGroup(name) })
}

func (h *handler) with(apply func(slog.Handler) slog.Handler) *handler {
	chain := make([]func(slog.Handler) slog.Handler, 0, len(h.chain)+1)
	chain = append(chain, h.chain...)
	return &handler{category: h.category, chain: append(chain, apply)}
}

type lineBuffer struct {
	b []byte
}

var _ io.Writer = (*lineBuffer)(nil)

func (l *lineBuffer) Write(p []byte) (int, error) {
	l.b = append(l.b, p...)
	return len(p), nil
}

// String drops the trailing newline added by the text handler
func (l *lineBuffer) String() string {
	s := string(l.b)
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}
