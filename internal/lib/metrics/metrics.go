package metrics

import (
	"context"

	"qonbaq/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthEvents counts auth outcomes by type and reason.
type AuthEvents struct {
	total *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *AuthEvents {
	return &AuthEvents{
		total: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "qonbaq",
			Name:      "auth_events_total",
			Help:      "Auth outcomes by event type and rejection reason.",
		}, []string{"type", "reason"}),
	}
}

func (m *AuthEvents) Publish(_ context.Context, event models.AuthEvent) error {
	m.total.WithLabelValues(string(event.Type), event.Reason).Inc()
	return nil
}
