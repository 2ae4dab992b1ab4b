package service

import (
	"context"
	"log/slog"

	"warbler/internal/middleware"
	"warbler/internal/notifications"
)

// EventPublisher delivers domain events to interested subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, ev notifications.Event) error
}

// emit counts the event and publishes it best-effort; a publish failure never
// fails the mutation that caused it.
func emit(ctx context.Context, pub EventPublisher, ev notifications.Event) {
	middleware.DomainEvents.WithLabelValues(ev.Kind).Inc()
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "event publish failed",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()))
	}
}
