package alert

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogNotifier writes alerts to the global logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, a Alert) error {
	event := log.Warn()
	if a.Level == "critical" {
		event = log.Error()
	}

	event.
		Str("alert_id", a.ID).
		Str("level", a.Level).
		Int("count", a.Count).
		Int("threshold", a.Threshold).
		Dur("window", a.Window).
		Str("trigger", a.Trigger).
		Str("actor_id", a.ActorID).
		Str("action", a.Action).
		Dict("details", detailsDict(a.Details)).
		Msg(a.Message())

	return nil
}

func detailsDict(details map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range details {
		d.Str(k, v)
	}

	return d
}

// Recorder keeps every alert it is given. It is used where alerts must be
// inspected in process.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts = append(r.alerts, a)

	return nil
}

// Alerts returns a copy of the recorded alerts.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)

	return out
}
