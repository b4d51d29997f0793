// Package logx provides component-scoped logging backed by zap, with domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a log severity label used in buffered entries.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Options controls how the shared zap core is built.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // "console" or "json"
	Output io.Writer // defaults to stderr
}

// LogEntry is a buffered log record exposed over the API.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// InMemoryLogBuffer keeps the most recent log entries.
type InMemoryLogBuffer struct {
	entries []LogEntry
	mutex   sync.RWMutex
	maxSize int
}

// Logger writes messages tagged with a component name.
type Logger struct {
	component string
}

type runIDKey struct{}

//nolint:gochecknoglobals // process-wide logging core
var (
	coreMu    sync.RWMutex
	base      *zap.Logger
	atomicLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	debugMu      sync.RWMutex
	debugEnabled bool
	debugDomains map[string]bool // nil = all domains

	logBuffer = &InMemoryLogBuffer{maxSize: 1000}
)

func init() { //nolint:gochecknoinits // env-driven debug switches
	base = buildLogger(Options{})
	initDebugFromEnv()
}

func initDebugFromEnv() {
	debugMu.Lock()
	defer debugMu.Unlock()

	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugEnabled = true
		atomicLvl.SetLevel(zapcore.DebugLevel)
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugDomains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugDomains[strings.TrimSpace(d)] = true
		}
	}
}

func buildLogger(opts Options) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.Format == "json" {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(out), atomicLvl))
}

// Configure rebuilds the shared core. Safe to call again at any time.
func Configure(opts Options) error {
	if opts.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		atomicLvl.SetLevel(lvl)
		if lvl == zapcore.DebugLevel {
			SetDebug(true)
		}
	}

	coreMu.Lock()
	defer coreMu.Unlock()
	base = buildLogger(opts)
	return nil
}

// Sync flushes buffered output.
func Sync() {
	coreMu.RLock()
	defer coreMu.RUnlock()
	_ = base.Sync()
}

// SetDebug enables or disables debug output for all domains.
func SetDebug(enabled bool) {
	debugMu.Lock()
	debugEnabled = enabled
	debugMu.Unlock()
	if enabled {
		atomicLvl.SetLevel(zapcore.DebugLevel)
	}
}

// SetDebugDomains restricts debug output to the given domains. Empty means all.
func SetDebugDomains(domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	if len(domains) == 0 {
		debugDomains = nil
		return
	}
	debugDomains = make(map[string]bool, len(domains))
	for _, d := range domains {
		debugDomains[strings.TrimSpace(d)] = true
	}
}

// IsDebugEnabledForDomain reports whether debug output is on for domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugEnabled {
		return false
	}
	if debugDomains == nil {
		return true
	}
	return debugDomains[domain]
}

// NewLogger returns a logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger for a sub-component, e.g. "pipeline/analysis".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "/" + sub}
}

func (l *Logger) write(level Level, domain, runID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	coreMu.RLock()
	zl := base.With(zap.String("component", l.component))
	coreMu.RUnlock()

	fields := make([]zap.Field, 0, 2)
	if domain != "" {
		fields = append(fields, zap.String("domain", domain))
	}
	if runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}

	switch level {
	case LevelDebug:
		zl.Debug(msg, fields...)
	case LevelWarn:
		zl.Warn(msg, fields...)
	case LevelError:
		zl.Error(msg, fields...)
	default:
		zl.Info(msg, fields...)
	}

	logBuffer.AddLogEntry(&LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Component: l.component,
		Level:     string(level),
		Message:   msg,
		Domain:    domain,
		RunID:     runID,
	})
}

// Debug logs when debug output is enabled.
func (l *Logger) Debug(format string, args ...any) {
	debugMu.RLock()
	enabled := debugEnabled
	debugMu.RUnlock()
	if !enabled {
		return
	}
	l.write(LevelDebug, "", "", format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.write(LevelInfo, "", "", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.write(LevelWarn, "", "", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.write(LevelError, "", "", format, args...)
}

// WithRunID attaches a pipeline run id to ctx for debug output.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id stored in ctx, if any.
func RunIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Debug logs a domain-filtered debug message carrying the run id from ctx.
//
//	DEBUG=1                              # all domains
//	DEBUG=1 DEBUG_DOMAINS=pipeline,http  # selected domains
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	(&Logger{component: "debug"}).write(LevelDebug, domain, RunIDFrom(ctx), format, args...)
}

// AddLogEntry appends entry, dropping the oldest beyond capacity.
func (b *InMemoryLogBuffer) AddLogEntry(entry *LogEntry) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.entries = append(b.entries, *entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// GetLogEntries returns a filtered copy of the buffered entries.
func (b *InMemoryLogBuffer) GetLogEntries(component string, since time.Time) []LogEntry {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	filtered := make([]LogEntry, 0, len(b.entries))
	for i := range b.entries {
		entry := &b.entries[i]
		if component != "" && !strings.HasPrefix(entry.Component, component) {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse("2006-01-02T15:04:05.000Z", entry.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		filtered = append(filtered, *entry)
	}
	return filtered
}

// GetRecentLogEntries returns buffered entries for the given component prefix.
func GetRecentLogEntries(component string, since time.Time) []LogEntry {
	return logBuffer.GetLogEntries(component, since)
}

//nolint:gochecknoglobals // convenience logger for package-level helpers
var defaultLogger = NewLogger("system")

// Errorf logs and returns the formatted error.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs and returns fmt.Errorf("%s: %w", msg, err). Nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}

// Infof logs an info message on the system logger.
func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Warnf logs a warning on the system logger.
func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}
