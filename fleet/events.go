package fleet

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Event records one committed status change. It carries ids only.
type Event struct {
	Op      string    `json:"op"`
	Entity  string    `json:"entity"`
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	RiderID string    `json:"riderId,omitempty"`
	At      time.Time `json:"at"`
}

// Subscriber handles events. Subscribers run synchronously after commit in
// registration order.
type Subscriber func(ctx context.Context, ev Event)

var fleetTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_transitions_total",
		Help: "Committed bike, dock, station and trip status changes",
	},
	[]string{"entity", "op", "to"},
)

func Metrics(reg prometheus.Registerer) {
	reg.MustRegister(fleetTransitionsTotal)
}

// LogEvents logs every event at info level.
func LogEvents(logger *slog.Logger) Subscriber {
	return func(ctx context.Context, ev Event) {
		logger.InfoContext(ctx, "status changed",
			"op", ev.Op,
			"entity", ev.Entity,
			"id", ev.ID,
			"from", ev.From,
			"to", ev.To,
			"rider_id", ev.RiderID,
		)
	}
}

// CountEvents increments fleet_transitions_total.
func CountEvents() Subscriber {
	return func(_ context.Context, ev Event) {
		fleetTransitionsTotal.WithLabelValues(ev.Entity, ev.Op, ev.To).Inc()
	}
}
