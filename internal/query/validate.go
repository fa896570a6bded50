package query

import (
	"fmt"
	"time"

	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/models"
)

// Validate checks that spec can be executed. In strict mode every selected
// signal, aggregation, interval and event type must also be known to the
// catalog; otherwise unknown names pass through untouched.
func Validate(spec models.QuerySpec, cat *catalog.Catalog, strict bool) error {
	if spec.VehicleTokenID == "" {
		return models.NewValidationError("Please enter a Vehicle Token ID")
	}
	if !spec.Kind.Valid() {
		return models.NewValidationError(fmt.Sprintf("Unknown query type: %s", spec.Kind))
	}
	if spec.Kind.NeedsSignals() && len(spec.SelectedSignals) == 0 {
		return models.NewValidationError("Please select at least one signal")
	}
	if spec.Kind.NeedsTimeRange() {
		if err := validateTimeRange(spec.TimeRange); err != nil {
			return err
		}
	}
	if spec.Kind == models.QueryKindSegments && !spec.SegmentMechanism.Valid() {
		return models.NewValidationError(fmt.Sprintf("Unknown segment mechanism: %s", spec.SegmentMechanism))
	}

	if strict {
		return validateStrict(spec, cat)
	}
	return nil
}

func validateTimeRange(tr models.TimeRange) error {
	if tr.From == "" || tr.To == "" {
		return models.NewValidationError("Please specify both start and end dates for historical data")
	}
	from, err := time.Parse(models.LocalDateTimeLayout, tr.From)
	if err != nil {
		return models.NewValidationError(fmt.Sprintf("Invalid start date: %s", tr.From))
	}
	to, err := time.Parse(models.LocalDateTimeLayout, tr.To)
	if err != nil {
		return models.NewValidationError(fmt.Sprintf("Invalid end date: %s", tr.To))
	}
	if !from.Before(to) {
		return models.NewValidationError("Start date must be before end date")
	}
	return nil
}

func validateStrict(spec models.QuerySpec, cat *catalog.Catalog) error {
	switch spec.Kind {
	case models.QueryKindLatest, models.QueryKindSignals:
		for _, name := range spec.SelectedSignals {
			if _, ok := cat.Lookup(name); !ok {
				return models.NewValidationError(fmt.Sprintf("Unknown signal: %s", name))
			}
			if spec.Kind != models.QueryKindSignals {
				continue
			}
			agg := spec.AggregationBySignal[name]
			if agg == "" {
				agg = catalog.DefaultNumericAggregation
			}
			if !cat.ValidAggregation(name, agg) {
				return &models.Error{
					Kind:    models.ErrorKindValidation,
					Message: fmt.Sprintf("Aggregation %s is not available for %s", agg, name),
					Err:     ErrInvalidAggregation,
				}
			}
		}
		if spec.Kind == models.QueryKindSignals && !cat.ValidInterval(spec.TimeRange.Interval) {
			return models.NewValidationError(fmt.Sprintf("Unknown interval: %s", spec.TimeRange.Interval))
		}
	case models.QueryKindEvents:
		for _, name := range spec.SelectedEventTypes {
			if !cat.ValidEventType(name) {
				return models.NewValidationError(fmt.Sprintf("Unknown event type: %s", name))
			}
		}
	}
	return nil
}
