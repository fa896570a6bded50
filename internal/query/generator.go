package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/models"
)

// timestampSuffix turns a minute-precision datetime-local value into the
// second-precision UTC form the API expects. No timezone conversion happens:
// the browser's local time is sent as if it were UTC.
const timestampSuffix = ":00Z"

// segmentFields and eventFields are the fixed selections requested for
// segment and event queries.
var (
	segmentFields = []string{"startTime", "endTime", "durationSeconds", "startedBeforeRange", "isOngoing"}
	eventFields   = []string{"timestamp", "name", "source", "durationNs", "metadata"}
)

// Generate renders spec as query text for its active kind. It returns an
// empty string when the kind needs signals and none are selected. Signal
// names are emitted verbatim without catalog checks.
func Generate(spec models.QuerySpec) string {
	switch spec.Kind {
	case models.QueryKindLatest:
		return generateLatest(spec)
	case models.QueryKindSignals:
		return generateSignals(spec)
	case models.QueryKindSegments:
		return generateSegments(spec)
	case models.QueryKindEvents:
		return generateEvents(spec)
	default:
		return ""
	}
}

func generateLatest(spec models.QuerySpec) string {
	if len(spec.SelectedSignals) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("query {\n")
	fmt.Fprintf(&b, "  signalsLatest(tokenId: %s) {\n", spec.VehicleTokenID)
	b.WriteString("    lastSeen")
	for _, signal := range spec.SelectedSignals {
		fmt.Fprintf(&b, "\n      %s {\n        timestamp\n        value\n      }", signal)
	}
	b.WriteString("\n  }\n}")
	return b.String()
}

func generateSignals(spec models.QuerySpec) string {
	if len(spec.SelectedSignals) == 0 {
		return ""
	}

	lines := make([]string, 0, len(spec.SelectedSignals))
	for _, signal := range spec.SelectedSignals {
		agg := spec.AggregationBySignal[signal]
		if agg == "" {
			agg = catalog.DefaultNumericAggregation
		}
		lines = append(lines, fmt.Sprintf("    %s(agg: %s)", signal, agg))
	}

	var b strings.Builder
	b.WriteString("query {\n  signals(\n")
	fmt.Fprintf(&b, "    tokenId: %s,\n", spec.VehicleTokenID)
	fmt.Fprintf(&b, "    interval: %s,\n", graphQLString(spec.TimeRange.Interval))
	fmt.Fprintf(&b, "    from: %s,\n", graphQLString(spec.TimeRange.From+timestampSuffix))
	fmt.Fprintf(&b, "    to: %s\n", graphQLString(spec.TimeRange.To+timestampSuffix))
	b.WriteString("  ) {\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n    timestamp\n  }\n}")
	return b.String()
}

func generateSegments(spec models.QuerySpec) string {
	var b strings.Builder
	b.WriteString("query {\n  segments(\n")
	fmt.Fprintf(&b, "    tokenId: %s,\n", spec.VehicleTokenID)
	fmt.Fprintf(&b, "    from: %s,\n", graphQLString(spec.TimeRange.From+timestampSuffix))
	fmt.Fprintf(&b, "    to: %s,\n", graphQLString(spec.TimeRange.To+timestampSuffix))
	fmt.Fprintf(&b, "    mechanism: %s\n", spec.SegmentMechanism)
	b.WriteString("  ) {\n")
	writeFields(&b, segmentFields)
	b.WriteString("  }\n}")
	return b.String()
}

func generateEvents(spec models.QuerySpec) string {
	var b strings.Builder
	b.WriteString("query {\n  events(\n")
	fmt.Fprintf(&b, "    tokenId: %s,\n", spec.VehicleTokenID)
	fmt.Fprintf(&b, "    from: %s,\n", graphQLString(spec.TimeRange.From+timestampSuffix))
	fmt.Fprintf(&b, "    to: %s", graphQLString(spec.TimeRange.To+timestampSuffix))
	if len(spec.SelectedEventTypes) > 0 {
		names := make([]string, len(spec.SelectedEventTypes))
		for i, name := range spec.SelectedEventTypes {
			names[i] = graphQLString(name)
		}
		fmt.Fprintf(&b, ",\n    filter: {name: {in: [%s]}}", strings.Join(names, ", "))
	}
	b.WriteString("\n  ) {\n")
	writeFields(&b, eventFields)
	b.WriteString("  }\n}")
	return b.String()
}

func writeFields(b *strings.Builder, fields []string) {
	for _, f := range fields {
		b.WriteString("    ")
		b.WriteString(f)
		b.WriteString("\n")
	}
}

// graphQLString renders v as a GraphQL string literal. JSON string escapes
// are a subset of GraphQL's; invalid UTF-8 becomes U+FFFD.
func graphQLString(v string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
	return strings.TrimSuffix(b.String(), "\n")
}
