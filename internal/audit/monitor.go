package audit

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/accessgate/accessgate/internal/alert"
	"github.com/accessgate/accessgate/internal/clock"
	"github.com/accessgate/accessgate/internal/metrics"
)

// topActions is how many actions Statistics ranks.
const topActions = 10

// Config bounds retention and sets the alert thresholds.
type Config struct {
	MaxEvents int
	Retention time.Duration
	Anomaly   AnomalyConfig

	// AlertThresholds maps a level to the number of events at that level
	// within AlertWindow that raises an alert. A zero threshold disables the level.
	AlertThresholds map[RiskLevel]int
	AlertWindow     time.Duration
	// AlertCooldown is the minimum gap between two alerts of one level.
	AlertCooldown time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxEvents: 10000,
		Retention: 90 * 24 * time.Hour,
		Anomaly:   DefaultAnomalyConfig(),
		AlertThresholds: map[RiskLevel]int{
			RiskCritical: 1,
			RiskHigh:     10,
			RiskMedium:   100,
			RiskLow:      1000,
		},
		AlertWindow:   time.Hour,
		AlertCooldown: 15 * time.Minute,
	}
}

// AlertSink accepts raised alerts without blocking.
type AlertSink interface {
	Enqueue(a alert.Alert) bool
}

// Monitor is the append-only audit log with risk scoring, anomaly
// detection and threshold alerts.
type Monitor struct {
	mu sync.RWMutex

	cfg      Config
	events   []Event
	detector *detector

	levelHits  map[RiskLevel][]time.Time
	lastAlerts map[RiskLevel]time.Time

	clock   clock.Clock
	metrics *metrics.Metrics
	sink    AlertSink
	mirror  *zerolog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithMetrics sets the collectors the Monitor reports to.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithAlertSink sets where raised alerts are sent.
func WithAlertSink(s AlertSink) Option {
	return func(m *Monitor) {
		m.sink = s
	}
}

// WithMirror writes every recorded event as a JSON line to l.
func WithMirror(l zerolog.Logger) Option {
	return func(m *Monitor) {
		m.mirror = &l
	}
}

// NewMonitor creates an empty Monitor. Zero values in cfg fall back to DefaultConfig.
func NewMonitor(cfg Config, opts ...Option) *Monitor {
	def := DefaultConfig()

	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}

	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}

	if cfg.AlertThresholds == nil {
		cfg.AlertThresholds = def.AlertThresholds
	}

	if cfg.AlertWindow <= 0 {
		cfg.AlertWindow = def.AlertWindow
	}

	if cfg.AlertCooldown < 0 {
		cfg.AlertCooldown = def.AlertCooldown
	}

	if cfg.Anomaly == (AnomalyConfig{}) {
		cfg.Anomaly = def.Anomaly
	}

	m := &Monitor{
		cfg:        cfg,
		detector:   newDetector(cfg.Anomaly),
		levelHits:  make(map[RiskLevel][]time.Time),
		lastAlerts: make(map[RiskLevel]time.Time),
		clock:      clock.Real(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = metrics.New(nil)
	}

	return m
}

// Record appends e and returns it as stored, with id, timestamp, risk level
// and anomalies filled in. It may also append suspicious-activity events
// and raise alerts; neither changes the returned event.
func (m *Monitor) Record(e Event) Event {
	m.mu.Lock()
	recorded, alerts := m.recordLocked(e)
	m.mu.Unlock()

	for _, ev := range recorded {
		m.metrics.AuditEvents.WithLabelValues(string(ev.Type), string(ev.RiskLevel)).Inc()
		m.mirrorEvent(ev)
	}

	for _, a := range alerts {
		m.metrics.AuditAlerts.WithLabelValues(a.Level).Inc()

		if m.sink != nil {
			m.sink.Enqueue(a)
		}
	}

	return recorded[0]
}

func (m *Monitor) recordLocked(e Event) ([]Event, []alert.Alert) {
	now := m.clock.Now()

	e = e.clone()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}

	var obs observation
	if e.Type != SuspiciousActivity {
		obs = m.detector.observe(&e)
	}

	e.Anomalies = obs.anomalies
	e.RiskLevel = classify(&e, obs.anomalous())

	m.append(e)

	recorded := []Event{e.clone()}

	var alerts []alert.Alert
	if a, ok := m.checkThresholdLocked(&e, now); ok {
		alerts = append(alerts, a)
	}

	if obs.burstStarted {
		more, moreAlerts := m.recordLocked(suspicious(&e, AnomalyBurst,
			fmt.Sprintf("%d events by %s within %s", obs.burstCount, e.ActorID, m.cfg.Anomaly.BurstWindow),
			obs.burstCount))
		recorded = append(recorded, more...)
		alerts = append(alerts, moreAlerts...)
	}

	if obs.fanOutStarted {
		more, moreAlerts := m.recordLocked(suspicious(&e, AnomalyIPFanOut,
			fmt.Sprintf("%d distinct actors from %s within %s", obs.fanOutCount, e.IP, m.cfg.Anomaly.FanOutWindow),
			obs.fanOutCount))
		recorded = append(recorded, more...)
		alerts = append(alerts, moreAlerts...)
	}

	return recorded, alerts
}

func suspicious(trigger *Event, kind Anomaly, reason string, count int) Event {
	return Event{
		Type:       SuspiciousActivity,
		Timestamp:  trigger.Timestamp,
		ActorID:    trigger.ActorID,
		ActorRole:  trigger.ActorRole,
		ActorEmail: trigger.ActorEmail,
		Action:     trigger.Action,
		Resource:   trigger.Resource,
		ResourceID: trigger.ResourceID,
		Reason:     reason,
		Source:     "anomaly",
		Anomalies:  []Anomaly{kind},
		IP:         trigger.IP,
		SessionID:  trigger.SessionID,
		RequestID:  trigger.RequestID,
		Device:     trigger.Device,
		Geo:        trigger.Geo,
		Metadata: map[string]string{
			"anomaly": string(kind),
			"trigger": trigger.ID,
			"count":   strconv.Itoa(count),
		},
	}
}

func (m *Monitor) append(e Event) {
	m.events = append(m.events, e)

	if over := len(m.events) - m.cfg.MaxEvents; over > 0 {
		m.events = m.events[over:]
	}
}

func (m *Monitor) checkThresholdLocked(e *Event, now time.Time) (alert.Alert, bool) {
	level := e.RiskLevel
	threshold := m.cfg.AlertThresholds[level]

	hits := prune(m.levelHits[level], now.Add(-m.cfg.AlertWindow))
	if !e.Timestamp.Before(now.Add(-m.cfg.AlertWindow)) {
		hits = append(hits, e.Timestamp)
	}

	m.levelHits[level] = hits

	if threshold <= 0 || len(hits) < threshold {
		return alert.Alert{}, false
	}

	if last, ok := m.lastAlerts[level]; ok && now.Sub(last) < m.cfg.AlertCooldown {
		return alert.Alert{}, false
	}

	m.lastAlerts[level] = now

	return alert.Alert{
		ID:        uuid.NewString(),
		Level:     string(level),
		Count:     len(hits),
		Threshold: threshold,
		Window:    m.cfg.AlertWindow,
		RaisedAt:  now,
		Trigger:   e.ID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Details: map[string]string{
			"type":   string(e.Type),
			"reason": e.Reason,
		},
	}, true
}

// Query returns matching events, newest first.
func (m *Monitor) Query(f Filter) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.queryLocked(&f)
}

func (m *Monitor) queryLocked(f *Filter) []Event {
	var out []Event

	skipped := 0

	for i := len(m.events) - 1; i >= 0; i-- {
		e := &m.events[i]
		if !f.matches(e) {
			continue
		}

		if skipped < f.Offset {
			skipped++

			continue
		}

		out = append(out, e.clone())

		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}

	return out
}

// Statistics summarises the retained events.
func (m *Monitor) Statistics() Statistics {
	now := m.clock.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Statistics{
		Total:   len(m.events),
		ByType:  make(map[EventType]int),
		ByRisk:  make(map[RiskLevel]int),
		ByActor: make(map[string]int),
		ByIP:    make(map[string]int),
	}

	actions := make(map[string]int)
	successes := 0
	dayAgo := now.Add(-24 * time.Hour)

	for i := range m.events {
		e := &m.events[i]

		s.ByType[e.Type]++
		s.ByRisk[e.RiskLevel]++

		if e.ActorID != "" {
			s.ByActor[e.ActorID]++
		}

		if e.IP != "" {
			s.ByIP[e.IP]++
		}

		if e.Success {
			successes++
		}

		if !e.Timestamp.Before(dayAgo) {
			s.Last24h++
		}

		if e.Action != "" {
			actions[e.Action]++
		}

		switch e.Type {
		case SecurityViolation:
			s.Violations++
		case SuspiciousActivity:
			s.Suspicious++
		}

		if s.Oldest == nil || e.Timestamp.Before(*s.Oldest) {
			t := e.Timestamp
			s.Oldest = &t
		}

		if s.Newest == nil || e.Timestamp.After(*s.Newest) {
			t := e.Timestamp
			s.Newest = &t
		}
	}

	if s.Total > 0 {
		s.SuccessRate = float64(successes) / float64(s.Total)
	}

	s.TopActions = make([]ActionCount, 0, len(actions))
	for action, count := range actions {
		s.TopActions = append(s.TopActions, ActionCount{Action: action, Count: count})
	}

	sort.Slice(s.TopActions, func(i, j int) bool {
		if s.TopActions[i].Count == s.TopActions[j].Count {
			return s.TopActions[i].Action < s.TopActions[j].Action
		}

		return s.TopActions[i].Count > s.TopActions[j].Count
	})

	if len(s.TopActions) > topActions {
		s.TopActions = s.TopActions[:topActions]
	}

	return s
}

// Prune drops events older than the retention window, and stale anomaly
// state, and returns how many events were dropped.
func (m *Monitor) Prune() int {
	now := m.clock.Now()
	cutoff := now.Add(-m.cfg.Retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}

	removed := len(m.events) - len(kept)
	m.events = kept

	m.detector.forget(now)

	for level, hits := range m.levelHits {
		m.levelHits[level] = prune(hits, now.Add(-m.cfg.AlertWindow))
	}

	return removed
}

// Len returns the number of retained events.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.events)
}

func (m *Monitor) mirrorEvent(e Event) {
	if m.mirror == nil {
		return
	}

	anomalies := make([]string, len(e.Anomalies))
	for i, a := range e.Anomalies {
		anomalies[i] = string(a)
	}

	m.mirror.Log().
		Str("event_id", e.ID).
		Str("type", string(e.Type)).
		Time("timestamp", e.Timestamp).
		Str("actor_id", e.ActorID).
		Str("actor_role", e.ActorRole).
		Str("actor_email", e.ActorEmail).
		Str("action", e.Action).
		Str("resource", e.Resource).
		Str("resource_id", e.ResourceID).
		Bool("success", e.Success).
		Str("reason", e.Reason).
		Str("source", e.Source).
		Str("risk_level", string(e.RiskLevel)).
		Strs("anomalies", anomalies).
		Str("ip", e.IP).
		Str("session_id", e.SessionID).
		Str("request_id", e.RequestID).
		Str("device", e.Device).
		Str("geo", e.Geo).
		Interface("metadata", e.Metadata).
		Send()
}
