package domain

import (
	"maps"
	"slices"
)

// Fields maps field names to values. Keys may be Go field names (UniqueName),
// column names (unique_name) or their camel-case form (uniqueName).
//
// As a match set, nil values are ignored. As a patch, nil writes NULL.
type Fields map[string]any

// Validate requires at least one non-nil value.
func (f Fields) Validate() error {
	if len(f) == 0 {
		return Validationf("at least one field is required")
	}
	for _, v := range f {
		if v != nil {
			return nil
		}
	}
	return Validationf("at least one non-null field is required")
}

// ValidatePatch requires at least one key. Nil values are allowed and clear
// the column.
func (f Fields) ValidatePatch() error {
	if len(f) == 0 {
		return Validationf("patch requires at least one field")
	}
	return nil
}

// NonNil returns a copy of f without nil values.
func (f Fields) NonNil() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// Merge returns a new map holding f overridden by each of others in order.
func (f Fields) Merge(others ...Fields) Fields {
	out := make(Fields, len(f))
	maps.Copy(out, f)
	for _, o := range others {
		maps.Copy(out, o)
	}
	return out
}

// Keys returns the keys of f in sorted order.
func (f Fields) Keys() []string {
	return slices.Sorted(maps.Keys(f))
}
