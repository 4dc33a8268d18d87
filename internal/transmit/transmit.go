// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package transmit defines how a position leaves the device.
package transmit

import (
	"context"
	"errors"

	"github.com/wneessen/locreport/internal/position"
)

// ErrNotConnected is returned by transmitters that lost their connection to the remote side.
var ErrNotConnected = errors.New("transmitter is not connected")

// Transmitter sends a single position to a remote destination. Transmit is called exactly once
// per reporting cycle and must not retry on its own.
type Transmitter interface {
	Name() string
	Transmit(ctx context.Context, pos position.Position) error
	Close() error
}
