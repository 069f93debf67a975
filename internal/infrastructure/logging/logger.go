package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// serviceName is attached to every log record.
const serviceName = "irrigationd"

// Logger wraps slog.Logger with controller-specific defaults.
//
// Records go to the console and, when a log file is configured, to a
// size-rotated file as well.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger

	// file is the rotating file writer, nil when file logging is off.
	file io.Closer
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Console destination plus optional rotating file
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var console io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		console = os.Stderr
	default:
		console = os.Stdout
	}

	var file io.WriteCloser
	if cfg.File.Path != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
	}

	return newLogger(cfg, version, console, file)
}

// newLogger builds the handler chain over explicit writers. file may be nil.
func newLogger(cfg config.LoggingConfig, version string, console io.Writer, file io.WriteCloser) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	handlers := []slog.Handler{newHandler(console, cfg.Format, opts)}

	l := &Logger{}
	if file != nil {
		// Files are always JSON so they can be shipped and parsed later.
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
		l.file = file
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	l.Logger = slog.New(handler)
	return l
}

// newHandler creates a text or JSON handler for w.
func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.ToLower(format) == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	engineLog := logger.With("component", "engine")
//	engineLog.Info("zone started", "zone", 3)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		file:   l.file,
	}
}

// Close flushes and closes the rotating log file, if any.
// Loggers derived with With share the file; close only the root logger.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
