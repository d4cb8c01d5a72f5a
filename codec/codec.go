// Package codec serializes persisted records for store backends.
// All roster records (tasks, job definitions, the group tree, the storage
// version sentinel) go through the same JSON encoding, so every backend
// stores opaque bytes and decoding stays backend-independent.
package codec

import (
	"encoding/json"
	"fmt"
)

// Codec converts records of type T to and from their persisted form.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// JSON is the codec used throughout roster. Timestamps marshal as
// RFC3339Nano; a zero time round-trips as a zero time.
type JSON[T any] struct{}

// NewJSON returns a JSON codec for T.
func NewJSON[T any]() JSON[T] { return JSON[T]{} }

// Encode marshals v.
func (JSON[T]) Encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}

	return data, nil
}

// Decode unmarshals data into a fresh T.
func (JSON[T]) Decode(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T

		return zero, fmt.Errorf("codec: decode: %w", err)
	}

	return v, nil
}
