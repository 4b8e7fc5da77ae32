// Package audit records authorization decisions and privileged events.
//
// Every event gets a risk level from a fixed rule set when it is recorded.
// Three heuristics watch for anomalies: access outside business hours,
// bursts of events from one actor, and many actors sharing one IP. Bursts
// and fan-outs also produce a suspicious-activity event once per window.
// When the number of events at one risk level within the alert window
// reaches its threshold, an alert is handed to the configured sink.
//
// Events are kept in memory, bounded by count and by age.
package audit
