// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package position defines the coordinate pair that locreport reports to remote endpoints.
package position

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPosition is returned for coordinates outside of the WGS84 value range.
var ErrInvalidPosition = errors.New("invalid position")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Position is a latitude/longitude pair. Its JSON form is {"lat":<float>,"lng":<float>}.
type Position struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// New returns a validated Position.
func New(lat, lng float64) (Position, error) {
	pos := Position{Lat: lat, Lng: lng}
	return pos, pos.Validate()
}

// Validate checks that latitude and longitude are within their valid ranges.
func (p Position) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPosition, err)
	}
	return nil
}

// Payload returns the JSON document that is transmitted for the Position.
func (p Position) Payload() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode position: %w", err)
	}
	return data, nil
}

func (p Position) String() string {
	return fmt.Sprintf("%g,%g", p.Lat, p.Lng)
}
