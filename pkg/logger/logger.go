// Package logger wraps zerolog behind package-level helpers so every
// component logs with the same structure: a component tag, a package tag,
// and sanitized fields.
package logger

import (
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the global logger instance
var Logger zerolog.Logger

var (
	// Pre-compiled patterns for sensitive data detection
	passwordPattern   = regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|api[_-]?key|auth)`)
	credentialPattern = regexp.MustCompile(`(?i)://([^:]+):([^@]+)@`)
)

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json, console
	Output    string // stdout, stderr
	Component string // component name for structured logging
}

// InitLogger initializes the global logger with the provided configuration
func InitLogger(cfg Config) error {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		Logger = zerolog.New(output).With().Timestamp().Str("component", cfg.Component).Logger()
	} else {
		var writer io.Writer = os.Stdout
		if cfg.Output == "stderr" {
			writer = os.Stderr
		}
		Logger = zerolog.New(writer).With().Timestamp().Str("component", cfg.Component).Logger()
	}

	log.Logger = Logger
	return nil
}

// parseLevel converts a string level to zerolog.Level
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// sanitizeFields redacts sensitive information from a field map
func sanitizeFields(fields map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		if passwordPattern.MatchString(key) {
			result[key] = "***REDACTED***"
			continue
		}
		if strValue, ok := value.(string); ok {
			result[key] = sanitizeString(strValue)
		} else {
			result[key] = value
		}
	}
	return result
}

// sanitizeString redacts credentials embedded in URLs
func sanitizeString(s string) string {
	return credentialPattern.ReplaceAllString(s, "://$1:***@")
}

// Debug logs a debug message
func Debug(pkg, message string) {
	Logger.Debug().Str("package", pkg).Msg(message)
}

// Debugf logs a formatted debug message
func Debugf(pkg, format string, args ...interface{}) {
	Logger.Debug().Str("package", pkg).Msgf(format, args...)
}

// Info logs an info message
func Info(pkg, message string) {
	Logger.Info().Str("package", pkg).Msg(message)
}

// Infof logs a formatted info message
func Infof(pkg, format string, args ...interface{}) {
	Logger.Info().Str("package", pkg).Msgf(format, args...)
}

// Warn logs a warning message
func Warn(pkg, message string) {
	Logger.Warn().Str("package", pkg).Msg(message)
}

// Warnf logs a formatted warning message
func Warnf(pkg, format string, args ...interface{}) {
	Logger.Warn().Str("package", pkg).Msgf(format, args...)
}

// Error logs an error message
func Error(pkg, message string, err error) {
	Logger.Error().Str("package", pkg).Err(err).Msg(message)
}

// Fatal logs a fatal message and exits
func Fatal(pkg, message string, err error) {
	Logger.Fatal().Str("package", pkg).Err(err).Msg(message)
}

// SafeDebug logs a debug message with sanitized fields
func SafeDebug(pkg, message string, fields map[string]interface{}) {
	event := Logger.Debug().Str("package", pkg)
	for k, v := range sanitizeFields(fields) {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

// SafeInfo logs an info message with sanitized fields
func SafeInfo(pkg, message string, fields map[string]interface{}) {
	event := Logger.Info().Str("package", pkg)
	for k, v := range sanitizeFields(fields) {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

// SafeWarn logs a warning message with sanitized fields
func SafeWarn(pkg, message string, fields map[string]interface{}) {
	event := Logger.Warn().Str("package", pkg)
	for k, v := range sanitizeFields(fields) {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

// SafeError logs an error message with sanitized fields
func SafeError(pkg, message string, err error, fields map[string]interface{}) {
	event := Logger.Error().Str("package", pkg).Err(err)
	for k, v := range sanitizeFields(fields) {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

// WithFields creates a logger with predefined fields
func WithFields(pkg string, fields map[string]interface{}) zerolog.Logger {
	ctx := Logger.With().Str("package", pkg)
	for k, v := range sanitizeFields(fields) {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

// Startup logs service startup information
func Startup(version string, config interface{}) {
	Logger.Info().
		Str("package", "main").
		Str("version", version).
		Interface("config", config).
		Msg("SafeTime starting")
}

// Shutdown logs service shutdown
func Shutdown(reason string) {
	Logger.Info().
		Str("package", "main").
		Str("reason", reason).
		Msg("SafeTime shutting down")
}
