package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/alert"
	"github.com/accessgate/accessgate/internal/clock"
	"github.com/accessgate/accessgate/internal/metrics"
)

var epoch = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type sink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (s *sink) Enqueue(a alert.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, a)

	return true
}

func (s *sink) all() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]alert.Alert(nil), s.alerts...)
}

type fixture struct {
	monitor *Monitor
	clock   *clock.FakeClock
	metrics *metrics.Metrics
	sink    *sink
}

func newFixture(t *testing.T, mutate func(*Config), opts ...Option) fixture {
	t.Helper()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	f := fixture{
		clock:   clock.Fake(epoch),
		metrics: metrics.New(prometheus.NewRegistry()),
		sink:    &sink{},
	}

	opts = append([]Option{WithClock(f.clock), WithMetrics(f.metrics), WithAlertSink(f.sink)}, opts...)
	f.monitor = NewMonitor(cfg, opts...)

	return f
}

func checkEvent(actor, action string, granted bool) Event {
	typ := CheckGranted
	if !granted {
		typ = CheckDenied
	}

	return Event{Type: typ, ActorID: actor, ActorRole: "viewer", Action: action, Success: granted, IP: "10.0.0.1"}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name      string
		event     Event
		anomalous bool
		expected  RiskLevel
	}{
		{"violation", Event{Type: SecurityViolation, Action: "products:read", Success: true}, false, RiskCritical},
		{"suspicious", Event{Type: SuspiciousActivity, Success: true}, false, RiskHigh},
		{"failed low action", Event{Type: CheckDenied, Action: "products:read"}, false, RiskHigh},
		{"high vocabulary", Event{Type: CheckGranted, Action: "products:delete", Success: true}, false, RiskHigh},
		{"admin segment", Event{Type: CheckGranted, Action: "admin:settings", Success: true}, false, RiskHigh},
		{"export data", Event{Type: DataAccess, Action: "EXPORT_DATA", Success: true}, false, RiskHigh},
		{"medium vocabulary", Event{Type: CheckGranted, Action: "workflow:approve", Success: true}, false, RiskMedium},
		{"dynamic grant type", Event{Type: DynamicGranted, Action: "products:read", Success: true}, false, RiskMedium},
		{"dynamic revoke type", Event{Type: DynamicRevoked, Action: "x", Success: true}, false, RiskMedium},
		{"low", Event{Type: CheckGranted, Action: "products:read", Success: true}, false, RiskLow},
		{"low escalated by anomaly", Event{Type: CheckGranted, Action: "products:read", Success: true}, true, RiskMedium},
		{"high not changed by anomaly", Event{Type: CheckGranted, Action: "products:delete", Success: true}, true, RiskHigh},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, classify(&tc.event, tc.anomalous))
		})
	}
}

func TestRecord_FillsFields(t *testing.T) {
	f := newFixture(t, nil)

	md := map[string]string{"k": "v"}
	e := checkEvent("u1", "products:read", true)
	e.Metadata = md

	got := f.monitor.Record(e)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, epoch, got.Timestamp)
	assert.Equal(t, RiskLow, got.RiskLevel)
	assert.Empty(t, got.Anomalies)

	// caller maps are not shared with the log
	md["k"] = "changed"
	assert.Equal(t, "v", f.monitor.Query(Filter{})[0].Metadata["k"])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuditEvents.WithLabelValues("check-granted", "low")))
}

func TestRecord_OffHoursEscalates(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Set(time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC))

	got := f.monitor.Record(checkEvent("u1", "products:read", true))

	assert.Equal(t, RiskMedium, got.RiskLevel)
	assert.Equal(t, []Anomaly{AnomalyOffHours}, got.Anomalies)
	assert.Equal(t, 1, f.monitor.Len(), "off-hours alone emits no suspicious event")
}

func TestOffHoursWindows(t *testing.T) {
	testCases := []struct {
		name       string
		start, end int
		hour       int
		expected   bool
	}{
		{"inside day", 6, 22, 10, false},
		{"before day", 6, 22, 5, true},
		{"at end", 6, 22, 22, true},
		{"disabled", 0, 0, 3, false},
		{"wrapping day inside", 20, 4, 23, false},
		{"wrapping day outside", 20, 4, 12, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDetector(AnomalyConfig{BusinessHoursStart: tc.start, BusinessHoursEnd: tc.end})
			assert.Equal(t, tc.expected, d.offHours(time.Date(2024, 3, 4, tc.hour, 0, 0, 0, time.UTC)))
		})
	}
}

func TestRecord_BurstEmitsOneSuspiciousEventPerWindow(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Anomaly.BurstThreshold = 3 })

	for range 3 {
		got := f.monitor.Record(checkEvent("u1", "products:read", true))
		assert.Equal(t, RiskLow, got.RiskLevel)
	}

	got := f.monitor.Record(checkEvent("u1", "products:read", true))
	assert.Equal(t, RiskMedium, got.RiskLevel)
	assert.Contains(t, got.Anomalies, AnomalyBurst)

	f.monitor.Record(checkEvent("u1", "products:read", true))

	suspicious := f.monitor.Query(Filter{Types: []EventType{SuspiciousActivity}})
	require.Len(t, suspicious, 1)
	assert.Equal(t, "u1", suspicious[0].ActorID)
	assert.Equal(t, RiskHigh, suspicious[0].RiskLevel)
	assert.Equal(t, "burst", suspicious[0].Metadata["anomaly"])
	assert.Equal(t, got.ID, suspicious[0].Metadata["trigger"])

	f.clock.Advance(5 * time.Minute)
	f.monitor.Record(checkEvent("u1", "products:read", true))

	assert.Len(t, f.monitor.Query(Filter{Types: []EventType{SuspiciousActivity}}), 2)

	// other actors are unaffected
	other := f.monitor.Record(checkEvent("u2", "products:read", true))
	assert.Equal(t, RiskLow, other.RiskLevel)
}

func TestRecord_IPFanOut(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Anomaly.FanOutThreshold = 2 })

	f.monitor.Record(checkEvent("a", "products:read", true))
	f.monitor.Record(checkEvent("b", "products:read", true))

	got := f.monitor.Record(checkEvent("c", "products:read", true))
	assert.Contains(t, got.Anomalies, AnomalyIPFanOut)

	f.monitor.Record(checkEvent("d", "products:read", true))

	suspicious := f.monitor.Query(Filter{Types: []EventType{SuspiciousActivity}})
	require.Len(t, suspicious, 1)
	assert.Equal(t, "10.0.0.1", suspicious[0].IP)
	assert.Equal(t, "ip-fan-out", suspicious[0].Metadata["anomaly"])

	// actors seen outside the window no longer count
	f.clock.Advance(10 * time.Minute)
	got = f.monitor.Record(checkEvent("e", "products:read", true))
	assert.NotContains(t, got.Anomalies, AnomalyIPFanOut)
}

func TestAlerts_ThresholdAndCooldown(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.AlertThresholds = map[RiskLevel]int{RiskCritical: 1}
	})

	violation := Event{Type: SecurityViolation, ActorID: "u1", Action: "products:delete"}

	first := f.monitor.Record(violation)
	f.monitor.Record(violation)

	alerts := f.sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, "critical", alerts[0].Level)
	assert.Equal(t, 1, alerts[0].Count)
	assert.Equal(t, first.ID, alerts[0].Trigger)

	f.clock.Advance(16 * time.Minute)
	f.monitor.Record(violation)

	alerts = f.sink.all()
	require.Len(t, alerts, 2)
	assert.Equal(t, 3, alerts[1].Count)

	// events older than the window stop counting
	f.clock.Advance(2 * time.Hour)
	f.monitor.Record(violation)

	alerts = f.sink.all()
	require.Len(t, alerts, 3)
	assert.Equal(t, 1, alerts[2].Count)

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.AuditAlerts.WithLabelValues("critical")))
}

func TestAlerts_BelowThreshold(t *testing.T) {
	f := newFixture(t, nil)

	for range 9 {
		f.monitor.Record(checkEvent("u1", "products:read", false))
	}

	assert.Empty(t, f.sink.all())

	f.monitor.Record(checkEvent("u1", "products:read", false))

	alerts := f.sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, "high", alerts[0].Level)
	assert.Equal(t, 10, alerts[0].Count)
}

func TestQuery(t *testing.T) {
	f := newFixture(t, nil)

	f.monitor.Record(checkEvent("u1", "products:read", true))
	f.clock.Advance(time.Second)
	f.monitor.Record(checkEvent("u2", "products:delete", false))
	f.clock.Advance(time.Second)
	f.monitor.Record(checkEvent("u1", "workflow:approve", true))

	granted := true

	testCases := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{"all newest first", Filter{}, []string{"workflow:approve", "products:delete", "products:read"}},
		{"by actor", Filter{ActorID: "u1"}, []string{"workflow:approve", "products:read"}},
		{"by type", Filter{Types: []EventType{CheckDenied}}, []string{"products:delete"}},
		{"min risk", Filter{MinRisk: RiskMedium}, []string{"workflow:approve", "products:delete"}},
		{"success", Filter{Success: &granted}, []string{"workflow:approve", "products:read"}},
		{"action case insensitive", Filter{Action: "PRODUCTS:READ"}, []string{"products:read"}},
		{"since", Filter{Since: epoch.Add(time.Second)}, []string{"workflow:approve", "products:delete"}},
		{"until", Filter{Until: epoch}, []string{"products:read"}},
		{"limit", Filter{Limit: 1}, []string{"workflow:approve"}},
		{"offset", Filter{Offset: 1, Limit: 1}, []string{"products:delete"}},
		{"no match", Filter{IP: "192.168.0.1"}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var actions []string
			for _, e := range f.monitor.Query(tc.filter) {
				actions = append(actions, e.Action)
			}

			assert.Equal(t, tc.expected, actions)
		})
	}
}

func TestMaxEventsDropsOldest(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxEvents = 3 })

	var ids []string
	for range 5 {
		ids = append(ids, f.monitor.Record(checkEvent("u1", "products:read", true)).ID)
	}

	assert.Equal(t, 3, f.monitor.Len())

	got := f.monitor.Query(Filter{})
	assert.Equal(t, []string{ids[4], ids[3], ids[2]}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestPrune(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Retention = 24 * time.Hour })

	f.monitor.Record(checkEvent("u1", "products:read", true))
	f.clock.Advance(25 * time.Hour)
	f.monitor.Record(checkEvent("u1", "products:read", true))

	assert.Equal(t, 1, f.monitor.Prune())
	assert.Equal(t, 0, f.monitor.Prune())
	assert.Equal(t, 1, f.monitor.Len())
}

func TestStatistics(t *testing.T) {
	f := newFixture(t, nil)

	f.monitor.Record(checkEvent("u1", "products:read", true))

	denied := checkEvent("u2", "products:delete", false)
	denied.IP = "10.0.0.2"
	f.monitor.Record(denied)
	f.monitor.Record(Event{Type: SecurityViolation, ActorID: "u2", Action: "products:delete", IP: "10.0.0.2"})

	f.clock.Advance(25 * time.Hour)

	s := f.monitor.Statistics()

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.ByType[CheckGranted])
	assert.Equal(t, 1, s.ByType[CheckDenied])
	assert.Equal(t, 1, s.ByRisk[RiskCritical])
	assert.Equal(t, 1, s.ByRisk[RiskHigh])
	assert.Equal(t, 2, s.ByActor["u2"])
	assert.Equal(t, 2, s.ByIP["10.0.0.2"])
	assert.Equal(t, 1, s.Violations)
	assert.Equal(t, 0, s.Suspicious)
	assert.InDelta(t, 1.0/3.0, s.SuccessRate, 0.0001)
	assert.Equal(t, 0, s.Last24h)
	require.NotEmpty(t, s.TopActions)
	assert.Equal(t, ActionCount{Action: "products:delete", Count: 2}, s.TopActions[0])
	require.NotNil(t, s.Oldest)
	assert.Equal(t, epoch, *s.Oldest)
}

func TestExport(t *testing.T) {
	f := newFixture(t, nil)

	e := checkEvent("u1", "products:read", true)
	e.Metadata = map[string]string{"b": "2", "a": "1"}
	recorded := f.monitor.Record(e)
	f.monitor.Record(checkEvent("u2", "products:delete", false))

	t.Run("json", func(t *testing.T) {
		out, err := f.monitor.Export(FormatJSON, ExportOptions{Filter: Filter{ActorID: "u1"}, IncludeMetadata: true})
		require.NoError(t, err)

		var doc jsonExport
		require.NoError(t, json.Unmarshal(out, &doc))
		assert.Equal(t, 1, doc.Count)
		require.Len(t, doc.Events, 1)
		assert.Equal(t, recorded.ID, doc.Events[0].ID)
		assert.Equal(t, "1", doc.Events[0].Metadata["a"])
	})

	t.Run("json without metadata", func(t *testing.T) {
		out, err := f.monitor.Export(FormatJSON, ExportOptions{})
		require.NoError(t, err)
		assert.NotContains(t, string(out), `"metadata"`)
	})

	t.Run("csv", func(t *testing.T) {
		out, err := f.monitor.Export(FormatCSV, ExportOptions{IncludeMetadata: true})
		require.NoError(t, err)

		rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "id", rows[0][0])
		assert.Equal(t, "metadata", rows[0][len(rows[0])-1])
		assert.Equal(t, "a=1;b=2", rows[2][len(rows[2])-1])
		assert.Equal(t, "false", rows[1][9])
	})

	t.Run("xml", func(t *testing.T) {
		out, err := f.monitor.Export(FormatXML, ExportOptions{IncludeMetadata: true})
		require.NoError(t, err)

		s := string(out)
		assert.True(t, strings.HasPrefix(s, "<?xml"))
		assert.Contains(t, s, `<auditEvents`)
		assert.Contains(t, s, `count="2"`)
		assert.Contains(t, s, `<entry key="a">1</entry>`)
		assert.Contains(t, s, `riskLevel="high"`)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := f.monitor.Export(Format("yaml"), ExportOptions{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)
	assert.Equal(t, "text/csv", format.ContentType())

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMirror(t *testing.T) {
	var buf bytes.Buffer

	f := newFixture(t, nil, WithMirror(zerolog.New(&buf)))
	got := f.monitor.Record(checkEvent("u1", "products:read", true))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, got.ID, line["event_id"])
	assert.Equal(t, "check-granted", line["type"])
	assert.Equal(t, "low", line["risk_level"])
}

func TestConcurrentRecord(t *testing.T) {
	f := newFixture(t, nil)

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			for range 20 {
				e := checkEvent(string(rune('a'+i)), "products:read", true)
				e.IP = ""
				f.monitor.Record(e)
				_ = f.monitor.Query(Filter{Limit: 5})
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 200, f.monitor.Len())
}
