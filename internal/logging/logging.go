package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"aerialplan/internal/config"
)

// New builds a stdout logger. level is debug, info, warn or error; format
// is "json" or anything else for the bracketed text form.
func New(level string, format string) *slog.Logger {
	return slog.New(newHandler(os.Stdout, parseLevel(level), format))
}

// Setup configures global logging with stdout output and, when enabled,
// a size-rotated log file.
func Setup(cfg *config.Config) (*slog.Logger, error) {
	level := parseLevel(cfg.Logging.Level)

	writers := []io.Writer{os.Stdout}
	if cfg.Logging.FileOutput {
		if err := os.MkdirAll(cfg.Logging.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", cfg.Logging.LogDir, err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Logging.LogDir, "aerialplan.log"),
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
			Compress:   cfg.Logging.Compress,
		})
	}

	logger := slog.New(newHandler(io.MultiWriter(writers...), level, cfg.Logging.Format))
	slog.SetDefault(logger)
	logger.Debug("logging ready", "level", level, "rotating_file", cfg.Logging.FileOutput)
	return logger, nil
}

func newHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return NewTraditionalHandler(w, level)
}

// TraditionalHandler implements slog.Handler with traditional log formatting:
// "[LEVEL] message [k=v ...]".
type TraditionalHandler struct {
	out    *log.Logger
	level  slog.Level
	attrs  []string // preformatted, already group-qualified
	group  string
}

// NewTraditionalHandler writes timestamped lines to w.
func NewTraditionalHandler(w io.Writer, level slog.Level) *TraditionalHandler {
	return &TraditionalHandler{out: log.New(w, "", log.LstdFlags), level: level}
}

func (h *TraditionalHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *TraditionalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append(make([]string, 0, len(h.attrs)+r.NumAttrs()), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.format(a))
		return true
	})

	line := "[" + r.Level.String() + "] " + r.Message
	if len(fields) > 0 {
		line += " [" + strings.Join(fields, " ") + "]"
	}
	h.out.Print(line)
	return nil
}

func (h *TraditionalHandler) format(a slog.Attr) string {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		parts := make([]string, 0, len(a.Value.Group()))
		for _, g := range a.Value.Group() {
			parts = append(parts, key+"."+g.Key+"="+g.Value.String())
		}
		return strings.Join(parts, " ")
	}
	return key + "=" + a.Value.String()
}

func (h *TraditionalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]string(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.format(a))
	}
	return &next
}

func (h *TraditionalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogJobStart records a plan job leaving the queue.
func LogJobStart(logger *slog.Logger, jobID, pattern, source string) {
	logger.Info("plan job running", "job", jobID, "pattern", pattern, "source", source)
}

// LogJobComplete records a finished plan with a summary group (waypoint
// count, distance and so on) under "plan".
func LogJobComplete(logger *slog.Logger, jobID, pattern string, elapsed time.Duration, summary map[string]any) {
	attrs := make([]any, 0, len(summary))
	for k, v := range summary {
		attrs = append(attrs, slog.Any(k, v))
	}
	args := []any{"job", jobID, "pattern", pattern, "elapsed", elapsed.Round(time.Microsecond)}
	if len(attrs) > 0 {
		args = append(args, slog.Group("plan", attrs...))
	}
	logger.Info("plan job done", args...)
}

// LogJobError records a plan job that produced no waypoints.
func LogJobError(logger *slog.Logger, jobID, pattern string, elapsed time.Duration, err error, extra map[string]any) {
	args := []any{"job", jobID, "pattern", pattern, "elapsed", elapsed.Round(time.Microsecond), "err", err}
	for k, v := range extra {
		args = append(args, k, v)
	}
	logger.Error("plan job failed", args...)
}

// LogPlanWarnings emits one warn line per non-fatal finding.
func LogPlanWarnings(logger *slog.Logger, name, pattern string, warnings []string) {
	for _, w := range warnings {
		logger.Warn("plan warning", "plan", name, "pattern", pattern, "warning", w)
	}
}
