package prediction

import (
	"fmt"
	"strings"

	"github.com/router-for-me/predictions/internal/config"
)

// SelectedData maps destination columns to values and remembers the order in which
// columns were first set. Setting an existing column replaces its value in place.
type SelectedData struct {
	keys   []string
	values map[string]any
}

// NewSelectedData returns an empty SelectedData.
func NewSelectedData() *SelectedData {
	return &SelectedData{values: make(map[string]any)}
}

// Set stores value under key.
func (d *SelectedData) Set(key string, value any) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value stored under key.
func (d *SelectedData) Get(key string) (any, bool) {
	value, ok := d.values[key]
	return value, ok
}

// Len returns the number of columns.
func (d *SelectedData) Len() int {
	return len(d.keys)
}

// Keys returns the columns in insertion order.
func (d *SelectedData) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Values returns the values in the same order as Keys.
func (d *SelectedData) Values() []any {
	values := make([]any, len(d.keys))
	for i, key := range d.keys {
		values[i] = d.values[key]
	}
	return values
}

func (d *SelectedData) String() string {
	parts := make([]string, len(d.keys))
	for i, key := range d.keys {
		parts[i] = fmt.Sprintf("%s:%v", key, d.values[key])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// MapFields projects the record's prediction object through mappings. Mappings are
// applied in order, so when two name the same column the later one wins.
func MapFields(rec Record, mappings []config.FieldMapping) (*SelectedData, error) {
	prediction, err := rec.Prediction()
	if err != nil {
		return nil, err
	}

	selected := NewSelectedData()
	for _, mapping := range mappings {
		value, ok := prediction[mapping.Source]
		if !ok {
			return nil, NewMappingError(mapping.Source)
		}
		selected.Set(mapping.Destination, value)
	}
	return selected, nil
}
