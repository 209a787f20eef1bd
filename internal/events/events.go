package events

import (
	"context"
	"log/slog"

	"qonbaq/internal/lib/logger/sl"
	"qonbaq/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, event models.AuthEvent) error
}

// Multi delivers every event to all publishers. Failures are logged and
// never returned, so a broken sink cannot fail a request.
type Multi struct {
	log        *slog.Logger
	publishers []Publisher
}

func NewMulti(log *slog.Logger, publishers ...Publisher) *Multi {
	return &Multi{
		log:        log.With(slog.String("component", "events")),
		publishers: publishers,
	}
}

func (m *Multi) Add(p Publisher) {
	m.publishers = append(m.publishers, p)
}

func (m *Multi) Publish(ctx context.Context, event models.AuthEvent) error {
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			m.log.Warn("failed to publish auth event",
				slog.String("type", string(event.Type)),
				slog.String("reason", event.Reason),
				sl.Err(err),
			)
		}
	}

	return nil
}
