// Package interpret turns a raw telemetry API response into display-ready
// renderings. Each of the four result shapes under "data" is rendered
// independently when present.
package interpret

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// MaxDetailedPoints caps how many historical data points are rendered in detail.
const MaxDetailedPoints = 10

// lastSeenKey is the synthetic field every latest-signals query requests.
const lastSeenKey = "lastSeen"

// Rendering is the interpreted form of one response.
type Rendering struct {
	Latest   *LatestView   `json:"signalsLatest,omitempty" msgpack:"signalsLatest,omitempty"`
	Signals  *SignalsView  `json:"signals,omitempty" msgpack:"signals,omitempty"`
	Segments *SegmentsView `json:"segments,omitempty" msgpack:"segments,omitempty"`
	Events   *EventsView   `json:"events,omitempty" msgpack:"events,omitempty"`
	// Errors carries GraphQL errors returned alongside a 2xx response.
	Errors []string `json:"errors,omitempty" msgpack:"errors,omitempty"`
	// Warnings lists result keys whose shape could not be rendered.
	Warnings []string `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
}

// LatestView renders data.signalsLatest.
type LatestView struct {
	LastSeen string        `json:"lastSeen,omitempty" msgpack:"lastSeen,omitempty"`
	Entries  []LatestEntry `json:"entries" msgpack:"entries"`
}

// LatestEntry is one signal's most recent reading.
type LatestEntry struct {
	Signal    string      `json:"signal" msgpack:"signal"`
	Value     interface{} `json:"value,omitempty" msgpack:"value,omitempty"`
	Timestamp string      `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

// SignalsView renders data.signals.
type SignalsView struct {
	Total     int         `json:"total" msgpack:"total"`
	Shown     int         `json:"shown" msgpack:"shown"`
	NoData    bool        `json:"noData" msgpack:"noData"`
	Indicator string      `json:"indicator,omitempty" msgpack:"indicator,omitempty"`
	Points    []DataPoint `json:"points" msgpack:"points"`
}

// DataPoint is one aggregated bucket.
type DataPoint struct {
	Index     int           `json:"index" msgpack:"index"`
	Timestamp string        `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Values    []SignalValue `json:"values" msgpack:"values"`
}

// SignalValue is one signal's value within a data point.
type SignalValue struct {
	Signal string      `json:"signal" msgpack:"signal"`
	Value  interface{} `json:"value" msgpack:"value"`
}

// SegmentsView renders data.segments.
type SegmentsView struct {
	Count    int           `json:"count" msgpack:"count"`
	NoData   bool          `json:"noData" msgpack:"noData"`
	Segments []SegmentView `json:"segments" msgpack:"segments"`
}

// SegmentView is one detected trip.
type SegmentView struct {
	Index              int      `json:"index" msgpack:"index"`
	StartTime          string   `json:"startTime,omitempty" msgpack:"startTime,omitempty"`
	EndTime            string   `json:"endTime,omitempty" msgpack:"endTime,omitempty"`
	DurationSeconds    *float64 `json:"durationSeconds" msgpack:"durationSeconds"`
	DurationMinutes    *int64   `json:"durationMinutes" msgpack:"durationMinutes"`
	Duration           string   `json:"duration" msgpack:"duration"`
	IsOngoing          bool     `json:"isOngoing" msgpack:"isOngoing"`
	StartedBeforeRange bool     `json:"startedBeforeRange" msgpack:"startedBeforeRange"`
}

// EventsView renders data.events.
type EventsView struct {
	Count  int         `json:"count" msgpack:"count"`
	NoData bool        `json:"noData" msgpack:"noData"`
	Events []EventView `json:"events" msgpack:"events"`
}

// EventView is one vehicle event.
type EventView struct {
	Index           int         `json:"index" msgpack:"index"`
	Timestamp       string      `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Name            string      `json:"name,omitempty" msgpack:"name,omitempty"`
	Source          string      `json:"source,omitempty" msgpack:"source,omitempty"`
	DurationNs      *float64    `json:"durationNs,omitempty" msgpack:"durationNs,omitempty"`
	DurationSeconds *float64    `json:"durationSeconds,omitempty" msgpack:"durationSeconds,omitempty"`
	Metadata        interface{} `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// InterpretJSON decodes body and interprets it. See Interpret for order.
func InterpretJSON(body []byte, order []string) (*Rendering, error) {
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return Interpret(result, order), nil
}

// Interpret renders every recognised key under result["data"]. Keys are not
// mutually exclusive; each present key gets its own view. Signal fields are
// listed in order (the selection order of the query), followed by any
// fields it does not name, sorted.
func Interpret(result map[string]interface{}, order []string) *Rendering {
	r := &Rendering{}
	r.Errors = graphQLErrors(result["errors"])

	data, ok := result["data"].(map[string]interface{})
	if !ok {
		return r
	}

	if raw, ok := data["signalsLatest"]; ok && raw != nil {
		if m, ok := raw.(map[string]interface{}); ok {
			r.Latest = renderLatest(m, order)
		} else {
			r.warn("signalsLatest")
		}
	}
	if raw, ok := data["signals"]; ok && raw != nil {
		if list, ok := raw.([]interface{}); ok {
			r.Signals = renderSignals(list, order)
		} else {
			r.warn("signals")
		}
	}
	if raw, ok := data["segments"]; ok && raw != nil {
		if list, ok := raw.([]interface{}); ok {
			r.Segments = renderSegments(list)
		} else {
			r.warn("segments")
		}
	}
	if raw, ok := data["events"]; ok && raw != nil {
		if list, ok := raw.([]interface{}); ok {
			r.Events = renderEvents(list)
		} else {
			r.warn("events")
		}
	}

	return r
}

func (r *Rendering) warn(key string) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("unexpected shape for data.%s", key))
}

// Empty reports whether nothing renderable was found.
func (r *Rendering) Empty() bool {
	return r.Latest == nil && r.Signals == nil && r.Segments == nil && r.Events == nil
}

// Summary describes the rendering in one line.
func (r *Rendering) Summary() string {
	var parts []string
	if r.Latest != nil {
		parts = append(parts, fmt.Sprintf("signalsLatest: %d signals", len(r.Latest.Entries)))
	}
	if r.Signals != nil {
		parts = append(parts, fmt.Sprintf("signals: %d data points", r.Signals.Total))
	}
	if r.Segments != nil {
		parts = append(parts, fmt.Sprintf("segments: %d", r.Segments.Count))
	}
	if r.Events != nil {
		parts = append(parts, fmt.Sprintf("events: %d", r.Events.Count))
	}
	if len(r.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("errors: %d", len(r.Errors)))
	}
	if len(parts) == 0 {
		return "no data"
	}
	return strings.Join(parts, ", ")
}

func renderLatest(m map[string]interface{}, order []string) *LatestView {
	view := &LatestView{Entries: []LatestEntry{}}
	if ls, ok := m[lastSeenKey].(string); ok {
		view.LastSeen = ls
	}

	for _, name := range orderedKeys(m, order) {
		value := m[name]
		if name == lastSeenKey || !truthy(value) {
			continue
		}
		entry := LatestEntry{Signal: name}
		if reading, ok := value.(map[string]interface{}); ok {
			entry.Value = reading["value"]
			entry.Timestamp, _ = reading["timestamp"].(string)
		} else {
			entry.Value = value
		}
		view.Entries = append(view.Entries, entry)
	}
	return view
}

func renderSignals(list []interface{}, order []string) *SignalsView {
	view := &SignalsView{Total: len(list), Points: []DataPoint{}}
	if len(list) == 0 {
		view.NoData = true
		return view
	}

	shown := list
	if len(shown) > MaxDetailedPoints {
		shown = shown[:MaxDetailedPoints]
		view.Indicator = fmt.Sprintf("Showing first %d of %d data points", MaxDetailedPoints, len(list))
	}
	view.Shown = len(shown)

	for i, raw := range shown {
		point := DataPoint{Index: i + 1, Values: []SignalValue{}}
		if m, ok := raw.(map[string]interface{}); ok {
			point.Timestamp, _ = m["timestamp"].(string)
			for _, name := range orderedKeys(m, order) {
				if name == "timestamp" {
					continue
				}
				point.Values = append(point.Values, SignalValue{Signal: name, Value: m[name]})
			}
		}
		view.Points = append(view.Points, point)
	}
	return view
}

func renderSegments(list []interface{}) *SegmentsView {
	view := &SegmentsView{Count: len(list), NoData: len(list) == 0, Segments: []SegmentView{}}
	for i, raw := range list {
		m, _ := raw.(map[string]interface{})
		seg := SegmentView{Index: i + 1, Duration: "N/A"}
		seg.StartTime, _ = m["startTime"].(string)
		seg.EndTime, _ = m["endTime"].(string)
		seg.IsOngoing, _ = m["isOngoing"].(bool)
		seg.StartedBeforeRange, _ = m["startedBeforeRange"].(bool)
		if secs, ok := number(m["durationSeconds"]); ok {
			minutes := int64(math.Round(secs / 60))
			seg.DurationSeconds = &secs
			seg.DurationMinutes = &minutes
			seg.Duration = fmt.Sprintf("%d min", minutes)
		}
		view.Segments = append(view.Segments, seg)
	}
	return view
}

func renderEvents(list []interface{}) *EventsView {
	view := &EventsView{Count: len(list), NoData: len(list) == 0, Events: []EventView{}}
	for i, raw := range list {
		m, _ := raw.(map[string]interface{})
		ev := EventView{Index: i + 1}
		ev.Timestamp, _ = m["timestamp"].(string)
		ev.Name, _ = m["name"].(string)
		ev.Source, _ = m["source"].(string)
		if ns, ok := number(m["durationNs"]); ok {
			secs := ns / 1e9
			ev.DurationNs = &ns
			ev.DurationSeconds = &secs
		}
		ev.Metadata = metadata(m["metadata"])
		view.Events = append(view.Events, ev)
	}
	return view
}

// metadata keeps non-empty mappings verbatim. The live API returns metadata
// as a JSON-encoded string, which is decoded when it holds an object.
func metadata(v interface{}) interface{} {
	switch md := v.(type) {
	case map[string]interface{}:
		if len(md) > 0 {
			return md
		}
	case string:
		if md == "" {
			return nil
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(md), &decoded); err == nil {
			if len(decoded) == 0 {
				return nil
			}
			return decoded
		}
		return md
	}
	return nil
}

func graphQLErrors(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			if msg, ok := m["message"].(string); ok && msg != "" {
				out = append(out, msg)
			}
		}
	}
	return out
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// truthy mirrors JavaScript truthiness for decoded JSON values.
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case string:
		return val != ""
	}
	return true
}

func orderedKeys(m map[string]interface{}, order []string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(m)-len(keys))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
