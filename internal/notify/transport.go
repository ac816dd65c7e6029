package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Transport sends one message. It returns *RateLimitError when the remote
// side asks to slow down.
type Transport interface {
	Send(ctx context.Context, text string) error
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// LogTransport writes messages to the logger instead of a chat.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (lt *LogTransport) Send(_ context.Context, text string) error {
	lt.logger.Info("notification", "text", text)
	return nil
}
