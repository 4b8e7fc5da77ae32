package alert

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/accessgate/accessgate/internal/metrics"
)

// DefaultQueueSize is the number of alerts buffered before new ones are dropped.
const DefaultQueueSize = 64

// Dispatcher fans queued alerts out to its notifiers.
type Dispatcher struct {
	queue     chan Alert
	notifiers []Notifier
	metrics   *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. A non-positive size uses DefaultQueueSize.
func NewDispatcher(size int, m *metrics.Metrics, notifiers ...Notifier) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}

	if m == nil {
		m = metrics.New(nil)
	}

	return &Dispatcher{
		queue:     make(chan Alert, size),
		notifiers: notifiers,
		metrics:   m,
	}
}

// Enqueue queues a without blocking and reports whether it was accepted.
func (d *Dispatcher) Enqueue(a Alert) bool {
	select {
	case d.queue <- a:
		return true
	default:
		d.metrics.AlertsDropped.Inc()
		log.Warn().Str("alert_id", a.ID).Str("level", a.Level).Msg("alert queue full, dropping alert")

		return false
	}
}

// Run delivers alerts until ctx is cancelled, then drains what is already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case a := <-d.queue:
			d.deliver(ctx, a)
		case <-ctx.Done():
			d.drain()

			return
		}
	}
}

func (d *Dispatcher) drain() {
	// notifiers still get a live context for the final batch
	ctx := context.Background()

	for {
		select {
		case a := <-d.queue:
			d.deliver(ctx, a)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a Alert) {
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			log.Error().Err(err).Str("alert_id", a.ID).Str("level", a.Level).Msg("failed to deliver alert")
		}
	}
}
