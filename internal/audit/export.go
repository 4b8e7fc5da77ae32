package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// ParseFormat resolves s, ignoring case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatXML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXML:
		return "application/xml"
	default:
		return "application/json"
	}
}

// ExportOptions select and shape exported events.
type ExportOptions struct {
	Filter          Filter
	IncludeMetadata bool
}

// Export encodes the events selected by opts, newest first.
func (m *Monitor) Export(format Format, opts ExportOptions) ([]byte, error) {
	now := m.clock.Now()

	m.mu.RLock()
	events := m.queryLocked(&opts.Filter)
	m.mu.RUnlock()

	if !opts.IncludeMetadata {
		for i := range events {
			events[i].Metadata = nil
		}
	}

	switch format {
	case FormatJSON:
		return exportJSON(events, now)
	case FormatCSV:
		return exportCSV(events, opts.IncludeMetadata)
	case FormatXML:
		return exportXML(events, now)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

type jsonExport struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Count       int       `json:"count"`
	Events      []Event   `json:"events"`
}

func exportJSON(events []Event, now time.Time) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}

	out, err := json.MarshalIndent(jsonExport{GeneratedAt: now, Count: len(events), Events: events}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit events: %w", err)
	}

	return out, nil
}

var csvHeader = []string{
	"id", "timestamp", "type", "actorId", "actorRole", "actorEmail", "action", "resource", "resourceId",
	"success", "reason", "source", "riskLevel", "anomalies", "ip", "sessionId", "requestId", "device", "geo",
}

func exportCSV(events []Event, includeMetadata bool) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	header := csvHeader
	if includeMetadata {
		header = append(append([]string(nil), csvHeader...), "metadata")
	}

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to encode audit events: %w", err)
	}

	for i := range events {
		e := &events[i]

		record := []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339Nano),
			string(e.Type),
			e.ActorID,
			e.ActorRole,
			e.ActorEmail,
			e.Action,
			e.Resource,
			e.ResourceID,
			strconv.FormatBool(e.Success),
			e.Reason,
			e.Source,
			string(e.RiskLevel),
			joinAnomalies(e.Anomalies),
			e.IP,
			e.SessionID,
			e.RequestID,
			e.Device,
			e.Geo,
		}

		if includeMetadata {
			record = append(record, joinMetadata(e.Metadata))
		}

		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to encode audit events: %w", err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode audit events: %w", err)
	}

	return buf.Bytes(), nil
}

type xmlExport struct {
	XMLName     xml.Name   `xml:"auditEvents"`
	GeneratedAt time.Time  `xml:"generatedAt,attr"`
	Count       int        `xml:"count,attr"`
	Events      []xmlEvent `xml:"event"`
}

type xmlEvent struct {
	ID         string    `xml:"id,attr"`
	Type       string    `xml:"type,attr"`
	RiskLevel  string    `xml:"riskLevel,attr"`
	Timestamp  time.Time `xml:"timestamp"`
	ActorID    string    `xml:"actor>id"`
	ActorRole  string    `xml:"actor>role,omitempty"`
	ActorEmail string    `xml:"actor>email,omitempty"`
	Action     string    `xml:"action"`
	Resource   string    `xml:"resource,omitempty"`
	ResourceID string    `xml:"resourceId,omitempty"`
	Success    bool      `xml:"success"`
	Reason     string    `xml:"reason,omitempty"`
	Source     string    `xml:"source,omitempty"`
	Anomalies  []string  `xml:"anomalies>anomaly,omitempty"`
	IP         string    `xml:"client>ip,omitempty"`
	SessionID  string    `xml:"client>sessionId,omitempty"`
	RequestID  string    `xml:"client>requestId,omitempty"`
	Device     string    `xml:"client>device,omitempty"`
	Geo        string    `xml:"client>geo,omitempty"`
	Metadata   []xmlMeta `xml:"metadata>entry,omitempty"`
}

type xmlMeta struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

func exportXML(events []Event, now time.Time) ([]byte, error) {
	doc := xmlExport{GeneratedAt: now, Count: len(events), Events: make([]xmlEvent, 0, len(events))}

	for i := range events {
		e := &events[i]

		xe := xmlEvent{
			ID:         e.ID,
			Type:       string(e.Type),
			RiskLevel:  string(e.RiskLevel),
			Timestamp:  e.Timestamp,
			ActorID:    e.ActorID,
			ActorRole:  e.ActorRole,
			ActorEmail: e.ActorEmail,
			Action:     e.Action,
			Resource:   e.Resource,
			ResourceID: e.ResourceID,
			Success:    e.Success,
			Reason:     e.Reason,
			Source:     e.Source,
			IP:         e.IP,
			SessionID:  e.SessionID,
			RequestID:  e.RequestID,
			Device:     e.Device,
			Geo:        e.Geo,
		}

		for _, a := range e.Anomalies {
			xe.Anomalies = append(xe.Anomalies, string(a))
		}

		for _, k := range sortedKeys(e.Metadata) {
			xe.Metadata = append(xe.Metadata, xmlMeta{Key: k, Value: e.Metadata[k]})
		}

		doc.Events = append(doc.Events, xe)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit events: %w", err)
	}

	return append([]byte(xml.Header), out...), nil
}

func joinAnomalies(anomalies []Anomaly) string {
	parts := make([]string, len(anomalies))
	for i, a := range anomalies {
		parts[i] = string(a)
	}

	return strings.Join(parts, ";")
}

func joinMetadata(md map[string]string) string {
	keys := sortedKeys(md)
	parts := make([]string, len(keys))

	for i, k := range keys {
		parts[i] = k + "=" + md[k]
	}

	return strings.Join(parts, ";")
}

func sortedKeys(md map[string]string) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
