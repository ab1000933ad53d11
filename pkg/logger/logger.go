package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance writing to stdout
func New() *Logger {
	return NewWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"))
}

// NewWithWriter creates a logger writing to w at the given level
func NewWithWriter(w io.Writer, levelStr string) *Logger {
	level := getLogLevel(levelStr)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Text for development, JSON for production
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("request_id", c.GetString("request_id")),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.Int("size", c.Writer.Size()),
	)
}

// LogHTTPError logs an HTTP error
func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.ErrorContext(c.Request.Context(),
		"HTTP Error",
		slog.String("request_id", c.GetString("request_id")),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
		slog.String("ip", c.ClientIP()),
	)
}

// Analytics run logging methods

// LogRunStarted logs the start of an analytics run
func (l *Logger) LogRunStarted(ctx context.Context, runID, orgID string) {
	l.Logger.InfoContext(ctx,
		"Analytics Run Started",
		slog.String("run_id", runID),
		slog.String("organization_id", orgID),
	)
}

// LogStepCompleted logs one finished pipeline step
func (l *Logger) LogStepCompleted(ctx context.Context, runID, step string, completed, total int, duration time.Duration) {
	l.Logger.InfoContext(ctx,
		"Analytics Step Completed",
		slog.String("run_id", runID),
		slog.String("step", step),
		slog.Int("completed_steps", completed),
		slog.Int("total_steps", total),
		slog.Duration("duration", duration),
	)
}

// LogRunCompleted logs a successful analytics run
func (l *Logger) LogRunCompleted(ctx context.Context, runID, orgID string, duration time.Duration) {
	l.Logger.InfoContext(ctx,
		"Analytics Run Completed",
		slog.String("run_id", runID),
		slog.String("organization_id", orgID),
		slog.Duration("duration", duration),
	)
}

// LogRunFailed logs a failed analytics run
func (l *Logger) LogRunFailed(ctx context.Context, runID, orgID, step string, err error) {
	l.Logger.ErrorContext(ctx,
		"Analytics Run Failed",
		slog.String("run_id", runID),
		slog.String("organization_id", orgID),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}

// Security logging methods

// LogRateLimitExceeded logs rate limit exceeded
func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
