// Package models contains domain types for the PocketTelemetry explorer.
package models

// QueryKind selects which telemetry query shape is being built.
type QueryKind string

const (
	QueryKindLatest   QueryKind = "signalsLatest"
	QueryKindSignals  QueryKind = "signals"
	QueryKindSegments QueryKind = "segments"
	QueryKindEvents   QueryKind = "events"
)

// QueryKinds lists every kind in tab order.
var QueryKinds = []QueryKind{QueryKindLatest, QueryKindSignals, QueryKindSegments, QueryKindEvents}

// Valid reports whether k is a known query kind.
func (k QueryKind) Valid() bool {
	for _, known := range QueryKinds {
		if k == known {
			return true
		}
	}
	return false
}

// NeedsSignals reports whether the kind requires a non-empty signal selection.
func (k QueryKind) NeedsSignals() bool {
	return k == QueryKindLatest || k == QueryKindSignals
}

// NeedsTimeRange reports whether the kind requires a from < to time range.
func (k QueryKind) NeedsTimeRange() bool {
	return k == QueryKindSignals || k == QueryKindSegments || k == QueryKindEvents
}

// SegmentMechanism is the trip detection strategy used by segment queries.
type SegmentMechanism string

const (
	MechanismFrequencyAnalysis    SegmentMechanism = "frequencyAnalysis"
	MechanismIgnition             SegmentMechanism = "ignition"
	MechanismChangePointDetection SegmentMechanism = "changePointDetection"
)

// SegmentMechanisms lists the supported mechanisms.
var SegmentMechanisms = []SegmentMechanism{
	MechanismFrequencyAnalysis,
	MechanismIgnition,
	MechanismChangePointDetection,
}

// Valid reports whether m is a known mechanism.
func (m SegmentMechanism) Valid() bool {
	for _, known := range SegmentMechanisms {
		if m == known {
			return true
		}
	}
	return false
}

// LocalDateTimeLayout is the minute-precision layout of datetime-local inputs.
const LocalDateTimeLayout = "2006-01-02T15:04"

// TimeRange is the query window. From and To are naive local datetimes
// without seconds, as entered in the browser.
type TimeRange struct {
	From     string `json:"from" msgpack:"from"`
	To       string `json:"to" msgpack:"to"`
	Interval string `json:"interval" msgpack:"interval"`
}

// QuerySpec is the live, mutable query being built in a workspace.
// State belonging to inactive kinds is retained across kind switches.
type QuerySpec struct {
	Kind                QueryKind         `json:"kind" msgpack:"kind"`
	VehicleTokenID      string            `json:"vehicleTokenId" msgpack:"vehicleTokenId"`
	SelectedSignals     []string          `json:"selectedSignals" msgpack:"selectedSignals"`
	AggregationBySignal map[string]string `json:"aggregationBySignal" msgpack:"aggregationBySignal"`
	TimeRange           TimeRange         `json:"timeRange" msgpack:"timeRange"`
	SegmentMechanism    SegmentMechanism  `json:"segmentMechanism" msgpack:"segmentMechanism"`
	SelectedEventTypes  []string          `json:"selectedEventTypes" msgpack:"selectedEventTypes"`
}

// Clone returns a deep copy of the spec.
func (s QuerySpec) Clone() QuerySpec {
	out := s
	out.SelectedSignals = append([]string{}, s.SelectedSignals...)
	out.SelectedEventTypes = append([]string{}, s.SelectedEventTypes...)
	out.AggregationBySignal = make(map[string]string, len(s.AggregationBySignal))
	for k, v := range s.AggregationBySignal {
		out.AggregationBySignal[k] = v
	}
	return out
}
