// Package alert delivers threshold alerts raised by the audit monitor.
//
// Alerts are queued on a Dispatcher and handed to every configured Notifier
// from a single goroutine, so raising an alert never blocks the caller.
package alert

import (
	"context"
	"fmt"
	"time"
)

// Alert reports that the number of audit events at one risk level within a
// window reached its threshold.
type Alert struct {
	ID        string        `json:"id"`
	Level     string        `json:"level"`
	Count     int           `json:"count"`
	Threshold int           `json:"threshold"`
	Window    time.Duration `json:"window"`
	RaisedAt  time.Time     `json:"raisedAt"`
	// Trigger is the id of the audit event that crossed the threshold.
	Trigger string            `json:"trigger,omitempty"`
	ActorID string            `json:"actorId,omitempty"`
	Action  string            `json:"action,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Message renders a one-line summary.
func (a Alert) Message() string {
	return fmt.Sprintf("%d %s risk events in the last %s (threshold %d)", a.Count, a.Level, a.Window, a.Threshold)
}

// RoutingKey is the broker routing key of a.
func (a Alert) RoutingKey() string {
	return "alert." + a.Level
}

// Notifier delivers alerts somewhere.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}
