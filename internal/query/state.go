// Package query holds the query builder state and renders it into GraphQL
// query text for the telemetry API.
package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/models"
)

// ErrInvalidAggregation is wrapped by SetAggregation failures.
var ErrInvalidAggregation = errors.New("invalid aggregation")

// Defaults applied to a fresh or reset query.
const (
	DefaultKind      = models.QueryKindLatest
	DefaultInterval  = "1h"
	DefaultMechanism = models.MechanismIgnition
	DefaultLookback  = 24 * time.Hour
)

// State is the single live query of a workspace. It is not safe for
// concurrent use; callers serialize access.
//
// Switching kinds never clears anything: selections, aggregations, the time
// range, the mechanism and event filters all survive. Reset is the only way
// to discard them.
type State struct {
	catalog *catalog.Catalog
	spec    models.QuerySpec
}

// NewState creates a query state with default values relative to now.
func NewState(cat *catalog.Catalog, now time.Time) *State {
	return &State{
		catalog: cat,
		spec:    DefaultSpec(now),
	}
}

// DefaultSpec returns the initial spec: latest-signals kind, no selections,
// and a 24 hour window ending at now.
func DefaultSpec(now time.Time) models.QuerySpec {
	now = now.UTC()
	return models.QuerySpec{
		Kind:                DefaultKind,
		SelectedSignals:     []string{},
		AggregationBySignal: map[string]string{},
		TimeRange: models.TimeRange{
			From:     now.Add(-DefaultLookback).Format(models.LocalDateTimeLayout),
			To:       now.Format(models.LocalDateTimeLayout),
			Interval: DefaultInterval,
		},
		SegmentMechanism:   DefaultMechanism,
		SelectedEventTypes: []string{},
	}
}

// Spec returns a copy of the current spec.
func (s *State) Spec() models.QuerySpec {
	return s.spec.Clone()
}

// Kind returns the active query kind.
func (s *State) Kind() models.QueryKind {
	return s.spec.Kind
}

// Catalog returns the catalog the state validates against.
func (s *State) Catalog() *catalog.Catalog {
	return s.catalog
}

// Query renders the current spec.
func (s *State) Query() string {
	return Generate(s.spec)
}

// ToggleSignal adds name to the end of the selection, or removes it if it
// is already selected. Adding while building a historical query seeds the
// signal's default aggregation unless one is already set. Removing leaves any
// seeded aggregation in place. Returns whether the signal is now selected.
func (s *State) ToggleSignal(name string) bool {
	if idx := indexOf(s.spec.SelectedSignals, name); idx >= 0 {
		s.spec.SelectedSignals = append(s.spec.SelectedSignals[:idx], s.spec.SelectedSignals[idx+1:]...)
		return false
	}

	s.spec.SelectedSignals = append(s.spec.SelectedSignals, name)
	if s.spec.Kind == models.QueryKindSignals {
		if _, ok := s.spec.AggregationBySignal[name]; !ok {
			s.spec.AggregationBySignal[name] = s.catalog.DefaultAggregation(name)
		}
	}
	return true
}

// SetAggregation sets the aggregation function used for a signal. The value
// must be one of the options offered for the signal's aggregation kind.
func (s *State) SetAggregation(name, value string) error {
	if !s.catalog.ValidAggregation(name, value) {
		return &models.Error{
			Kind:    models.ErrorKindValidation,
			Message: fmt.Sprintf("Aggregation %s is not available for %s", value, name),
			Err:     ErrInvalidAggregation,
		}
	}
	s.spec.AggregationBySignal[name] = value
	return nil
}

// SetQueryKind switches the active kind without touching any other state.
func (s *State) SetQueryKind(kind models.QueryKind) error {
	if !kind.Valid() {
		return models.NewValidationError(fmt.Sprintf("Unknown query type: %s", kind))
	}
	s.spec.Kind = kind
	return nil
}

// ToggleEventType adds or removes an event type filter. Returns whether the
// event type is now selected.
func (s *State) ToggleEventType(name string) bool {
	if idx := indexOf(s.spec.SelectedEventTypes, name); idx >= 0 {
		s.spec.SelectedEventTypes = append(s.spec.SelectedEventTypes[:idx], s.spec.SelectedEventTypes[idx+1:]...)
		return false
	}
	s.spec.SelectedEventTypes = append(s.spec.SelectedEventTypes, name)
	return true
}

// SetTimeRange stores the query window. An empty interval keeps the current
// one. Endpoint ordering is checked by Validate, not here.
func (s *State) SetTimeRange(from, to, interval string) error {
	if interval != "" && !s.catalog.ValidInterval(interval) {
		return models.NewValidationError(fmt.Sprintf("Unknown interval: %s", interval))
	}
	s.spec.TimeRange.From = from
	s.spec.TimeRange.To = to
	if interval != "" {
		s.spec.TimeRange.Interval = interval
	}
	return nil
}

// SetMechanism selects the segment detection mechanism.
func (s *State) SetMechanism(m models.SegmentMechanism) error {
	if !m.Valid() {
		return models.NewValidationError(fmt.Sprintf("Unknown segment mechanism: %s", m))
	}
	s.spec.SegmentMechanism = m
	return nil
}

// SetVehicleTokenID sets the vehicle the query targets.
func (s *State) SetVehicleTokenID(id string) {
	s.spec.VehicleTokenID = id
}

// Reset discards all builder input except the vehicle token id.
func (s *State) Reset(now time.Time) {
	vehicle := s.spec.VehicleTokenID
	s.spec = DefaultSpec(now)
	s.spec.VehicleTokenID = vehicle
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}
