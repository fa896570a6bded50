package query

import (
	"errors"
	"testing"
	"time"

	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 2, 12, 30, 45, 0, time.UTC)

func newTestState() *State {
	return NewState(catalog.Default(), testNow)
}

func TestNewStateDefaults(t *testing.T) {
	s := newTestState()
	spec := s.Spec()

	assert.Equal(t, models.QueryKindLatest, spec.Kind)
	assert.Empty(t, spec.SelectedSignals)
	assert.Empty(t, spec.AggregationBySignal)
	assert.Equal(t, "2024-01-01T12:30", spec.TimeRange.From)
	assert.Equal(t, "2024-01-02T12:30", spec.TimeRange.To)
	assert.Equal(t, "1h", spec.TimeRange.Interval)
	assert.Equal(t, models.MechanismIgnition, spec.SegmentMechanism)
	assert.Empty(t, spec.SelectedEventTypes)
}

func TestToggleSignal(t *testing.T) {
	t.Run("appends in selection order", func(t *testing.T) {
		s := newTestState()
		assert.True(t, s.ToggleSignal("speed"))
		assert.True(t, s.ToggleSignal("obdRunTime"))
		assert.True(t, s.ToggleSignal("isIgnitionOn"))
		assert.Equal(t, []string{"speed", "obdRunTime", "isIgnitionOn"}, s.Spec().SelectedSignals)
	})

	t.Run("second toggle removes", func(t *testing.T) {
		s := newTestState()
		s.ToggleSignal("speed")
		s.ToggleSignal("obdRunTime")
		assert.False(t, s.ToggleSignal("speed"))
		assert.Equal(t, []string{"obdRunTime"}, s.Spec().SelectedSignals)
	})

	t.Run("latest kind does not seed aggregations", func(t *testing.T) {
		s := newTestState()
		s.ToggleSignal("speed")
		assert.Empty(t, s.Spec().AggregationBySignal)
	})

	t.Run("historical kind seeds defaults by aggregation kind", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, s.SetQueryKind(models.QueryKindSignals))
		s.ToggleSignal("speed")
		s.ToggleSignal("powertrainType")
		s.ToggleSignal("undocumentedSignal")

		aggs := s.Spec().AggregationBySignal
		assert.Equal(t, "AVG", aggs["speed"])
		assert.Equal(t, "RAND", aggs["powertrainType"])
		assert.Equal(t, "AVG", aggs["undocumentedSignal"])
	})

	t.Run("existing aggregation is not overwritten on reselect", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, s.SetQueryKind(models.QueryKindSignals))
		s.ToggleSignal("speed")
		require.NoError(t, s.SetAggregation("speed", "MAX"))
		s.ToggleSignal("speed")
		s.ToggleSignal("speed")
		assert.Equal(t, "MAX", s.Spec().AggregationBySignal["speed"])
	})

	t.Run("double toggle restores selection but keeps seeded aggregation", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, s.SetQueryKind(models.QueryKindSignals))
		s.ToggleSignal("speed")
		before := s.Spec().SelectedSignals

		s.ToggleSignal("obdDTCList")
		s.ToggleSignal("obdDTCList")

		assert.Equal(t, before, s.Spec().SelectedSignals)
		assert.Equal(t, "RAND", s.Spec().AggregationBySignal["obdDTCList"])
	})
}

func TestSetAggregation(t *testing.T) {
	tests := []struct {
		name    string
		signal  string
		value   string
		wantErr bool
	}{
		{"numeric option on numeric signal", "speed", "MED", false},
		{"string option on string signal", "obdDTCList", "TOP", false},
		{"string option on numeric signal", "speed", "UNIQUE", true},
		{"numeric option on string signal", "isIgnitionOn", "AVG", true},
		{"unknown function", "speed", "SUM", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState()
			err := s.SetAggregation(tt.signal, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAggregation))
				assert.Equal(t, models.ErrorKindValidation, models.KindOf(err))
				assert.NotContains(t, s.Spec().AggregationBySignal, tt.signal)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, s.Spec().AggregationBySignal[tt.signal])
		})
	}
}

func TestSetQueryKindRetainsState(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.SetQueryKind(models.QueryKindSignals))
	s.ToggleSignal("speed")
	s.ToggleEventType("safety.collision")
	require.NoError(t, s.SetMechanism(models.MechanismFrequencyAnalysis))
	require.NoError(t, s.SetTimeRange("2024-01-01T00:00", "2024-01-01T01:00", "6h"))

	for _, kind := range []models.QueryKind{models.QueryKindSegments, models.QueryKindEvents, models.QueryKindLatest} {
		require.NoError(t, s.SetQueryKind(kind))
	}

	spec := s.Spec()
	assert.Equal(t, models.QueryKindLatest, spec.Kind)
	assert.Equal(t, []string{"speed"}, spec.SelectedSignals)
	assert.Equal(t, "AVG", spec.AggregationBySignal["speed"])
	assert.Equal(t, []string{"safety.collision"}, spec.SelectedEventTypes)
	assert.Equal(t, models.MechanismFrequencyAnalysis, spec.SegmentMechanism)
	assert.Equal(t, "6h", spec.TimeRange.Interval)

	err := s.SetQueryKind("vehicles")
	require.Error(t, err)
	assert.Equal(t, models.QueryKindLatest, s.Kind())
}

func TestToggleEventType(t *testing.T) {
	s := newTestState()
	assert.True(t, s.ToggleEventType("behavior.harshBraking"))
	assert.True(t, s.ToggleEventType("safety.collision"))
	assert.False(t, s.ToggleEventType("behavior.harshBraking"))
	assert.Equal(t, []string{"safety.collision"}, s.Spec().SelectedEventTypes)
	assert.Empty(t, s.Spec().AggregationBySignal)
}

func TestSetTimeRange(t *testing.T) {
	s := newTestState()

	require.NoError(t, s.SetTimeRange("2024-02-01T08:00", "2024-02-01T09:00", ""))
	assert.Equal(t, "1h", s.Spec().TimeRange.Interval, "empty interval keeps current")
	assert.Equal(t, "2024-02-01T08:00", s.Spec().TimeRange.From)

	err := s.SetTimeRange("2024-02-01T08:00", "2024-02-01T09:00", "90m")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindValidation, models.KindOf(err))
	assert.Equal(t, "1h", s.Spec().TimeRange.Interval)
}

func TestSetMechanism(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.SetMechanism(models.MechanismChangePointDetection))
	assert.Equal(t, models.MechanismChangePointDetection, s.Spec().SegmentMechanism)
	assert.Error(t, s.SetMechanism("gps"))
}

func TestReset(t *testing.T) {
	s := newTestState()
	s.SetVehicleTokenID("12345")
	require.NoError(t, s.SetQueryKind(models.QueryKindSignals))
	s.ToggleSignal("speed")
	s.ToggleEventType("safety.collision")

	later := testNow.Add(time.Hour)
	s.Reset(later)

	spec := s.Spec()
	assert.Equal(t, "12345", spec.VehicleTokenID)
	assert.Equal(t, models.QueryKindLatest, spec.Kind)
	assert.Empty(t, spec.SelectedSignals)
	assert.Empty(t, spec.AggregationBySignal)
	assert.Empty(t, spec.SelectedEventTypes)
	assert.Equal(t, "2024-01-02T13:30", spec.TimeRange.To)
}

func TestSpecIsACopy(t *testing.T) {
	s := newTestState()
	s.ToggleSignal("speed")

	spec := s.Spec()
	spec.SelectedSignals[0] = "mutated"
	spec.AggregationBySignal["x"] = "MAX"

	assert.Equal(t, []string{"speed"}, s.Spec().SelectedSignals)
	assert.NotContains(t, s.Spec().AggregationBySignal, "x")
}
