package audit

import (
	"strings"
	"time"
)

// EventType classifies an audit event.
type EventType string

const (
	CheckGranted       EventType = "check-granted"
	CheckDenied        EventType = "check-denied"
	DynamicGranted     EventType = "dynamic-granted"
	DynamicRevoked     EventType = "dynamic-revoked"
	SecurityViolation  EventType = "security-violation"
	SuspiciousActivity EventType = "suspicious-activity"
	SystemAccess       EventType = "system-access"
	DataAccess         EventType = "data-access"
)

// EventTypes lists every known event type.
func EventTypes() []EventType {
	return []EventType{
		CheckGranted, CheckDenied, DynamicGranted, DynamicRevoked,
		SecurityViolation, SuspiciousActivity, SystemAccess, DataAccess,
	}
}

// RiskLevel is the computed severity of an event.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists the levels from least to most severe.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
}

// Rank orders levels; unknown levels rank below low.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// ParseRiskLevel resolves s, ignoring case.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))

	return r, r.Rank() > 0
}

// Anomaly names a heuristic that fired while recording an event.
type Anomaly string

const (
	AnomalyOffHours Anomaly = "off-hours"
	AnomalyBurst    Anomaly = "burst"
	AnomalyIPFanOut Anomaly = "ip-fan-out"
)

// Event is one audit record. Events are immutable once recorded.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	ActorID    string            `json:"actorId"`
	ActorRole  string            `json:"actorRole,omitempty"`
	ActorEmail string            `json:"actorEmail,omitempty"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource,omitempty"`
	ResourceID string            `json:"resourceId,omitempty"`
	Success    bool              `json:"success"`
	Reason     string            `json:"reason,omitempty"`
	Source     string            `json:"source,omitempty"`
	RiskLevel  RiskLevel         `json:"riskLevel"`
	Anomalies  []Anomaly         `json:"anomalies,omitempty"`
	IP         string            `json:"ip,omitempty"`
	SessionID  string            `json:"sessionId,omitempty"`
	RequestID  string            `json:"requestId,omitempty"`
	Device     string            `json:"device,omitempty"`
	Geo        string            `json:"geo,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e Event) clone() Event {
	if e.Anomalies != nil {
		e.Anomalies = append([]Anomaly(nil), e.Anomalies...)
	}

	if e.Metadata != nil {
		md := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}

		e.Metadata = md
	}

	return e
}

// Filter selects events in Query and Export. Zero fields match everything.
type Filter struct {
	ActorID    string
	Types      []EventType
	MinRisk    RiskLevel
	Action     string
	Resource   string
	ResourceID string
	IP         string
	Success    *bool
	Since      time.Time
	Until      time.Time
	Offset     int
	Limit      int
}

func (f *Filter) matches(e *Event) bool {
	switch {
	case f.ActorID != "" && e.ActorID != f.ActorID:
		return false
	case f.Action != "" && !strings.EqualFold(e.Action, f.Action):
		return false
	case f.Resource != "" && !strings.EqualFold(e.Resource, f.Resource):
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	case f.IP != "" && e.IP != f.IP:
		return false
	case f.Success != nil && e.Success != *f.Success:
		return false
	case f.MinRisk != "" && e.RiskLevel.Rank() < f.MinRisk.Rank():
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && e.Timestamp.After(f.Until):
		return false
	}

	if len(f.Types) == 0 {
		return true
	}

	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}

	return false
}

// ActionCount pairs an action with how often it was recorded.
type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Statistics summarises the retained events.
type Statistics struct {
	Total       int               `json:"total"`
	ByType      map[EventType]int `json:"byType"`
	ByRisk      map[RiskLevel]int `json:"byRisk"`
	ByActor     map[string]int    `json:"byActor"`
	ByIP        map[string]int    `json:"byIp"`
	SuccessRate float64           `json:"successRate"`
	Last24h     int               `json:"last24h"`
	TopActions  []ActionCount     `json:"topActions"`
	Violations  int               `json:"violations"`
	Suspicious  int               `json:"suspicious"`
	Oldest      *time.Time        `json:"oldest,omitempty"`
	Newest      *time.Time        `json:"newest,omitempty"`
}
