package channel

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metered counts sends per message and result.
type Metered struct {
	next  Channel
	sends *prometheus.CounterVec
}

var _ Channel = (*Metered)(nil)

// NewSendCounter builds the counter vec Metered reports into.
func NewSendCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountsd_channel_messages_total",
			Help: "Total number of channel notifications, labeled by message and result.",
		},
		[]string{"message", "result"},
	)
}

// NewMetered wraps next.
func NewMetered(next Channel, sends *prometheus.CounterVec) *Metered {
	return &Metered{next: next, sends: sends}
}

func (m *Metered) Send(ctx context.Context, message string, data any) error {
	err := m.next.Send(ctx, message, data)
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sends.WithLabelValues(message, result).Inc()
	return err
}
