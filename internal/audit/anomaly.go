package audit

import "time"

// AnomalyConfig tunes the anomaly heuristics.
type AnomalyConfig struct {
	// BusinessHoursStart and BusinessHoursEnd bound the working day in
	// Location, as hours in [0,24). Equal values disable the off-hours check.
	BusinessHoursStart int
	BusinessHoursEnd   int
	Location           *time.Location

	// BurstWindow and BurstThreshold: more than BurstThreshold events by one
	// actor within BurstWindow is a burst.
	BurstWindow    time.Duration
	BurstThreshold int

	// FanOutWindow and FanOutThreshold: more than FanOutThreshold distinct
	// actors on one IP within FanOutWindow is a fan-out.
	FanOutWindow    time.Duration
	FanOutThreshold int
}

// DefaultAnomalyConfig returns the heuristics used when nothing is configured.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		BusinessHoursStart: 6,
		BusinessHoursEnd:   22,
		Location:           time.UTC,
		BurstWindow:        5 * time.Minute,
		BurstThreshold:     100,
		FanOutWindow:       5 * time.Minute,
		FanOutThreshold:    5,
	}
}

// observation is what the detector saw for one event.
type observation struct {
	anomalies []Anomaly

	// burstStarted and fanOutStarted are set the first time a burst or
	// fan-out is seen within its window.
	burstStarted  bool
	fanOutStarted bool
	burstCount    int
	fanOutCount   int
}

func (o observation) anomalous() bool { return len(o.anomalies) > 0 }

// detector keeps the sliding windows behind the anomaly heuristics. It is
// not safe for concurrent use; the Monitor serialises access.
type detector struct {
	cfg AnomalyConfig

	actorHits map[string][]time.Time
	ipActors  map[string]map[string]time.Time

	burstFlagged  map[string]time.Time
	fanOutFlagged map[string]time.Time
}

func newDetector(cfg AnomalyConfig) *detector {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &detector{
		cfg:           cfg,
		actorHits:     make(map[string][]time.Time),
		ipActors:      make(map[string]map[string]time.Time),
		burstFlagged:  make(map[string]time.Time),
		fanOutFlagged: make(map[string]time.Time),
	}
}

func (d *detector) observe(e *Event) observation {
	var o observation

	if d.offHours(e.Timestamp) {
		o.anomalies = append(o.anomalies, AnomalyOffHours)
	}

	if e.ActorID != "" && d.cfg.BurstThreshold > 0 && d.cfg.BurstWindow > 0 {
		hits := prune(d.actorHits[e.ActorID], e.Timestamp.Add(-d.cfg.BurstWindow))
		hits = append(hits, e.Timestamp)
		d.actorHits[e.ActorID] = hits

		if len(hits) > d.cfg.BurstThreshold {
			o.anomalies = append(o.anomalies, AnomalyBurst)
			o.burstCount = len(hits)

			if flagged, ok := d.burstFlagged[e.ActorID]; !ok || e.Timestamp.Sub(flagged) >= d.cfg.BurstWindow {
				d.burstFlagged[e.ActorID] = e.Timestamp
				o.burstStarted = true
			}
		}
	}

	if e.IP != "" && e.ActorID != "" && d.cfg.FanOutThreshold > 0 && d.cfg.FanOutWindow > 0 {
		actors, ok := d.ipActors[e.IP]
		if !ok {
			actors = make(map[string]time.Time)
			d.ipActors[e.IP] = actors
		}

		actors[e.ActorID] = e.Timestamp

		cutoff := e.Timestamp.Add(-d.cfg.FanOutWindow)
		for actor, seen := range actors {
			if seen.Before(cutoff) {
				delete(actors, actor)
			}
		}

		if len(actors) > d.cfg.FanOutThreshold {
			o.anomalies = append(o.anomalies, AnomalyIPFanOut)
			o.fanOutCount = len(actors)

			if flagged, ok := d.fanOutFlagged[e.IP]; !ok || e.Timestamp.Sub(flagged) >= d.cfg.FanOutWindow {
				d.fanOutFlagged[e.IP] = e.Timestamp
				o.fanOutStarted = true
			}
		}
	}

	return o
}

func (d *detector) offHours(t time.Time) bool {
	start, end := d.cfg.BusinessHoursStart, d.cfg.BusinessHoursEnd
	if start == end {
		return false
	}

	hour := t.In(d.cfg.Location).Hour()

	if start < end {
		return hour < start || hour >= end
	}

	// the working day wraps past midnight
	return hour < start && hour >= end
}

// forget drops window state older than now.
func (d *detector) forget(now time.Time) {
	for actor, hits := range d.actorHits {
		hits = prune(hits, now.Add(-d.cfg.BurstWindow))
		if len(hits) == 0 {
			delete(d.actorHits, actor)
		} else {
			d.actorHits[actor] = hits
		}
	}

	for ip, actors := range d.ipActors {
		for actor, seen := range actors {
			if seen.Before(now.Add(-d.cfg.FanOutWindow)) {
				delete(actors, actor)
			}
		}

		if len(actors) == 0 {
			delete(d.ipActors, ip)
		}
	}

	for actor, flagged := range d.burstFlagged {
		if now.Sub(flagged) >= d.cfg.BurstWindow {
			delete(d.burstFlagged, actor)
		}
	}

	for ip, flagged := range d.fanOutFlagged {
		if now.Sub(flagged) >= d.cfg.FanOutWindow {
			delete(d.fanOutFlagged, ip)
		}
	}
}

// prune drops leading timestamps before cutoff. hits is in insertion order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(cutoff) {
		i++
	}

	return hits[i:]
}
