// Package catalog provides the static signal reference data used by the
// query builder: signal categories, aggregation options, intervals, segment
// mechanisms and event types.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed signals.yaml
var defaultCatalogYAML []byte

// AggregationKind decides which aggregation functions apply to a signal.
type AggregationKind string

const (
	AggregationNumeric AggregationKind = "numeric"
	AggregationString  AggregationKind = "string"
)

// Default aggregations seeded when a signal is first selected for a
// historical query.
const (
	DefaultNumericAggregation = "AVG"
	DefaultStringAggregation  = "RAND"
)

// Option is a selectable value with a display label.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Signal describes a single telemetry signal.
type Signal struct {
	Name            string          `json:"name" yaml:"name"`
	Description     string          `json:"description" yaml:"description"`
	Category        string          `json:"category" yaml:"-"`
	AggregationKind AggregationKind `json:"aggregationKind" yaml:"-"`
}

// Category groups signals for display.
type Category struct {
	Name    string   `json:"name" yaml:"name"`
	Signals []Signal `json:"signals" yaml:"signals"`
}

// Catalog is the immutable signal reference data.
type Catalog struct {
	StringSignals []string `json:"stringAggregationSignals" yaml:"string_aggregation_signals"`
	Aggregations  struct {
		Numeric []Option `json:"numeric" yaml:"numeric"`
		String  []Option `json:"string" yaml:"string"`
	} `json:"aggregations" yaml:"aggregations"`
	Intervals  []Option   `json:"intervals" yaml:"intervals"`
	Mechanisms []Option   `json:"mechanisms" yaml:"mechanisms"`
	EventTypes []Option   `json:"eventTypes" yaml:"event_types"`
	Categories []Category `json:"categories" yaml:"categories"`

	index     map[string]Signal
	stringSet map[string]struct{}
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded signal catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// LoadFile parses a catalog override file.
func LoadFile(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader parses a catalog from an io.Reader.
func LoadFromReader(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and indexes catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(c.Aggregations.Numeric) == 0 || len(c.Aggregations.String) == 0 {
		return nil, fmt.Errorf("parsing catalog: aggregation options are required")
	}
	if len(c.Intervals) == 0 {
		return nil, fmt.Errorf("parsing catalog: at least one interval is required")
	}

	c.stringSet = make(map[string]struct{}, len(c.StringSignals))
	for _, name := range c.StringSignals {
		c.stringSet[name] = struct{}{}
	}

	c.index = make(map[string]Signal)
	for i := range c.Categories {
		cat := &c.Categories[i]
		for j := range cat.Signals {
			sig := &cat.Signals[j]
			if sig.Name == "" {
				return nil, fmt.Errorf("parsing catalog: unnamed signal in category %q", cat.Name)
			}
			if _, dup := c.index[sig.Name]; dup {
				return nil, fmt.Errorf("parsing catalog: duplicate signal %q", sig.Name)
			}
			sig.Category = cat.Name
			sig.AggregationKind = c.AggregationKindOf(sig.Name)
			c.index[sig.Name] = *sig
		}
	}

	return &c, nil
}

// Lookup returns the descriptor for a known signal.
func (c *Catalog) Lookup(name string) (Signal, bool) {
	sig, ok := c.index[name]
	return sig, ok
}

// Signals returns every known signal in category order.
func (c *Catalog) Signals() []Signal {
	var out []Signal
	for _, cat := range c.Categories {
		out = append(out, cat.Signals...)
	}
	return out
}

// AggregationKindOf reports the aggregation kind of any signal name. Names
// outside the string set are numeric, known or not.
func (c *Catalog) AggregationKindOf(name string) AggregationKind {
	if _, ok := c.stringSet[name]; ok {
		return AggregationString
	}
	return AggregationNumeric
}

// DefaultAggregation returns the aggregation seeded for a newly selected signal.
func (c *Catalog) DefaultAggregation(name string) string {
	if c.AggregationKindOf(name) == AggregationString {
		return DefaultStringAggregation
	}
	return DefaultNumericAggregation
}

// AggregationOptions returns the aggregation functions offered for a signal.
func (c *Catalog) AggregationOptions(name string) []Option {
	if c.AggregationKindOf(name) == AggregationString {
		return c.Aggregations.String
	}
	return c.Aggregations.Numeric
}

// ValidAggregation reports whether value is offered for the signal.
func (c *Catalog) ValidAggregation(name, value string) bool {
	return containsValue(c.AggregationOptions(name), value)
}

// ValidInterval reports whether value is a known bucket interval.
func (c *Catalog) ValidInterval(value string) bool {
	return containsValue(c.Intervals, value)
}

// ValidEventType reports whether value is a known event type.
func (c *Catalog) ValidEventType(value string) bool {
	return containsValue(c.EventTypes, value)
}

func containsValue(options []Option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}
