// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package vartype provides optional values that remember whether they have been set.
package vartype

import (
	"encoding/json"
	"fmt"
)

// Optional holds a value of type T together with the information whether it was ever set.
// The zero value is an unset Optional.
type Optional[T any] struct {
	value T
	isset bool
}

// Some returns an Optional that is set to value.
func Some[T any](value T) Optional[T] {
	return Optional[T]{value: value, isset: true}
}

// Set stores val and marks the Optional as set.
func (o *Optional[T]) Set(val T) {
	o.value = val
	o.isset = true
}

// Reset drops the stored value.
func (o *Optional[T]) Reset() {
	var zero T
	o.value = zero
	o.isset = false
}

// Get returns the stored value and whether it is set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.isset
}

// IsSet reports whether a value has been stored.
func (o Optional[T]) IsSet() bool {
	return o.isset
}

func (o Optional[T]) String() string {
	if !o.isset {
		return "unset"
	}
	return fmt.Sprint(o.value)
}

// MarshalJSON encodes an unset Optional as null and a set one as its value.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.isset {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
