package events

import (
	"context"

	"go.uber.org/zap"
)

type logPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher records events in the log only. Used when no broker is configured.
func NewLogPublisher(logger *zap.Logger) Publisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("event",
		zap.String("type", event.Type),
		zap.String("key", event.Key),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Any("attributes", event.Attributes),
	)
	return nil
}

func (p *logPublisher) Close() error { return nil }
