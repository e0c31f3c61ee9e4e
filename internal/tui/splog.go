package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// simpleHandler writes messages without timestamps or level prefixes.
// Attributes, when present, follow the message as key=value pairs.
type simpleHandler struct {
	writer   io.Writer
	minLevel slog.Level
	quiet    *bool // shared with the owning Splog so it can change dynamically
	attrs    []slog.Attr
}

func (h *simpleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *simpleHandler) Handle(_ context.Context, record slog.Record) error {
	if *h.quiet {
		return nil
	}
	var b strings.Builder
	b.WriteString(record.Message)
	write := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	record.Attrs(write)
	_, err := fmt.Fprintln(h.writer, b.String())
	return err
}

func (h *simpleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *simpleHandler) WithGroup(_ string) slog.Handler {
	return h
}

// LogOptions configures a Splog. Zero rotation values use the defaults below,
// and GITGATE_LOG_* environment variables override whatever is set here.
type LogOptions struct {
	File       string // empty disables file logging
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
	Debug      bool
	Console    io.Writer // defaults to stdout
}

func envInt(name string, min int, value *int) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= min {
		*value = n
	}
}

// createLumberjackLogger creates a rotating file writer
func createLumberjackLogger(opts LogOptions) *lumberjack.Logger {
	config := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    1,
		MaxBackups: 2,
		MaxAge:     30,
		Compress:   false,
	}
	if opts.MaxSize > 0 {
		config.MaxSize = opts.MaxSize
	}
	if opts.MaxBackups > 0 {
		config.MaxBackups = opts.MaxBackups
	}
	if opts.MaxAge > 0 {
		config.MaxAge = opts.MaxAge
	}

	envInt("GITGATE_LOG_MAX_SIZE", 1, &config.MaxSize)
	envInt("GITGATE_LOG_MAX_BACKUPS", 0, &config.MaxBackups)
	envInt("GITGATE_LOG_MAX_AGE", 1, &config.MaxAge)
	return config
}

// multiHandler fans out log records to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}

// Splog provides user-facing output plus the structured logger handed to
// library code
type Splog struct {
	logger    *slog.Logger // user messages: console at Info, file at Debug
	internal  *slog.Logger // structured records: console at Warn, file at Debug
	writer    io.Writer
	logWriter io.WriteCloser
	quiet     bool // suppresses console output while a TUI owns the screen
}

// NewSplog creates a console-only splog.
// Debug messages are enabled when the DEBUG environment variable is set.
func NewSplog() *Splog {
	splog, _ := NewSplogWithOptions(LogOptions{})
	return splog
}

// NewSplogWithOptions creates a splog with optional file logging
func NewSplogWithOptions(opts LogOptions) (*Splog, error) {
	writer := opts.Console
	if writer == nil {
		writer = os.Stdout
	}
	debug := opts.Debug || os.Getenv("DEBUG") != ""
	splog := &Splog{writer: writer}

	consoleLevel := slog.LevelInfo
	internalLevel := slog.LevelWarn
	if debug {
		consoleLevel = slog.LevelDebug
		internalLevel = slog.LevelDebug
	}

	userHandlers := []slog.Handler{&simpleHandler{writer: writer, minLevel: consoleLevel, quiet: &splog.quiet}}
	internalHandlers := []slog.Handler{&simpleHandler{writer: writer, minLevel: internalLevel, quiet: &splog.quiet}}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		rotating := createLumberjackLogger(opts)
		splog.logWriter = rotating

		fileHandler := slog.NewTextHandler(rotating, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000"))}
				}
				return a
			},
		})
		userHandlers = append(userHandlers, fileHandler)
		internalHandlers = append(internalHandlers, fileHandler)
	}

	splog.logger = slog.New(&multiHandler{handlers: userHandlers})
	splog.internal = slog.New(&multiHandler{handlers: internalHandlers})
	return splog, nil
}

// Logger returns the structured logger for library code
func (s *Splog) Logger() *slog.Logger {
	return s.internal
}

// SetQuiet suppresses all console output (used while a TUI is running)
func (s *Splog) SetQuiet(quiet bool) {
	s.quiet = quiet
}

// IsQuiet returns whether console output is suppressed
func (s *Splog) IsQuiet() bool {
	return s.quiet
}

func (s *Splog) logMessage(level slog.Level, prefix, format string, args ...interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	s.logger.Log(context.Background(), level, prefix+msg)
}

// Info writes an info message
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Info(format string, args ...interface{}) {
	s.logMessage(slog.LevelInfo, "", format, args...)
}

// Newline writes a newline
func (s *Splog) Newline() {
	if !s.quiet {
		_, _ = fmt.Fprintln(s.writer)
	}
}

// Warn writes a warning message
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Warn(format string, args ...interface{}) {
	s.logMessage(slog.LevelWarn, "⚠️  ", format, args...)
}

// Error writes an error message
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Error(format string, args ...interface{}) {
	s.logMessage(slog.LevelError, "❌ ", format, args...)
}

// Debug writes a debug message
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Debug(format string, args ...interface{}) {
	s.logMessage(slog.LevelDebug, "", format, args...)
}

// Tip writes a tip message
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Tip(format string, args ...interface{}) {
	s.logMessage(slog.LevelInfo, "💡 ", format, args...)
}

// Close closes the log file if one was opened
func (s *Splog) Close() error {
	if s.logWriter != nil {
		return s.logWriter.Close()
	}
	return nil
}
