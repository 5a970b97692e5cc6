package entity

import (
	"bytes"
	"encoding/json"
)

// Field is a tri-state value for partial updates: unset (leave the stored
// value alone), null (clear it) or a concrete value.
type Field[T any] struct {
	set   bool
	null  bool
	value T
}

// Set returns a field carrying v.
func Set[T any](v T) Field[T] {
	return Field[T]{set: true, value: v}
}

// Null returns a field that explicitly clears the stored value.
func Null[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}

// IsSet reports whether the field was provided at all.
func (f Field[T]) IsSet() bool { return f.set }

// IsNull reports whether the field was provided as an explicit null.
func (f Field[T]) IsNull() bool { return f.set && f.null }

// Value returns the carried value and whether one is present.
func (f Field[T]) Value() (T, bool) {
	if !f.set || f.null {
		var zero T
		return zero, false
	}
	return f.value, true
}

// Ptr returns a pointer to the value, nil for unset or null.
func (f Field[T]) Ptr() *T {
	v, ok := f.Value()
	if !ok {
		return nil
	}
	return &v
}

// MarshalJSON encodes null for unset/null fields; callers omit unset ones.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set || f.null {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON is only invoked for keys present in the payload.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.null = true
		var zero T
		f.value = zero
		return nil
	}
	f.null = false
	return json.Unmarshal(data, &f.value)
}
