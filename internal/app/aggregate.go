package app

import (
	"errors"
	"fmt"

	"github.com/chrissnell/swrdecode/pkg/responseformat"
)

// ErrUnknownKey is returned when an aggregate is addressed with a task time
// or zone it was not built with
var ErrUnknownKey = errors.New("app: unknown aggregate key")

// Aggregate collects values per task time and zone. Every (task, zone) pair
// exists from construction, so a task time with no events still reports an
// empty list rather than a missing key.
type Aggregate struct {
	tasks  []string
	zones  []string
	values map[string]map[string][]float64
}

// NewAggregate builds an empty record for every task and zone pair
func NewAggregate(tasks, zones []string) *Aggregate {
	a := &Aggregate{
		tasks:  append([]string(nil), tasks...),
		zones:  append([]string(nil), zones...),
		values: make(map[string]map[string][]float64, len(tasks)),
	}
	for _, task := range tasks {
		row := make(map[string][]float64, len(zones))
		for _, zone := range zones {
			row[zone] = []float64{}
		}
		a.values[task] = row
	}
	return a
}

// Tasks returns the task labels in construction order
func (a *Aggregate) Tasks() []string {
	return append([]string(nil), a.tasks...)
}

// Zones returns the zone labels in construction order
func (a *Aggregate) Zones() []string {
	return append([]string(nil), a.zones...)
}

// Append adds values to one (task, zone) list
func (a *Aggregate) Append(task, zone string, values ...float64) error {
	row, ok := a.values[task]
	if !ok {
		return fmt.Errorf("%w: task time %q", ErrUnknownKey, task)
	}
	if _, ok := row[zone]; !ok {
		return fmt.Errorf("%w: zone %q", ErrUnknownKey, zone)
	}
	row[zone] = append(row[zone], values...)
	return nil
}

// Values returns a copy of one (task, zone) list
func (a *Aggregate) Values(task, zone string) ([]float64, error) {
	row, ok := a.values[task]
	if !ok {
		return nil, fmt.Errorf("%w: task time %q", ErrUnknownKey, task)
	}
	v, ok := row[zone]
	if !ok {
		return nil, fmt.Errorf("%w: zone %q", ErrUnknownKey, zone)
	}
	return append([]float64(nil), v...), nil
}

// Report renders the aggregate for output. NaN entries become nulls in JSON.
func (a *Aggregate) Report() map[string]map[string][]responseformat.Float {
	out := make(map[string]map[string][]responseformat.Float, len(a.values))
	for task, row := range a.values {
		r := make(map[string][]responseformat.Float, len(row))
		for zone, v := range row {
			r[zone] = responseformat.Floats(v)
		}
		out[task] = r
	}
	return out
}
