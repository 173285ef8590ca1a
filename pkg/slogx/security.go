package slogx

import (
	"context"
	"log/slog"
)

// SecurityEvent logs a security-relevant failure at Warn with an "event"
// attribute, so audit pipelines can filter on it.
func SecurityEvent(ctx context.Context, event string, args ...any) {
	FromContext(ctx).Warn("security event", append([]any{slog.String("event", event)}, args...)...)
}
