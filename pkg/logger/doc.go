// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package, switches to JSON output in prod and
// can mirror every line into a rotated log file.
package logger
