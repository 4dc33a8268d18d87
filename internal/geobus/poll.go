// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"fmt"
	"time"
)

// LocateFunc performs a single position lookup.
type LocateFunc func(ctx context.Context) (Coordinate, error)

// Poll calls locate right away and then once every period. Each coordinate that differs from the
// previous one is turned into a Result by build and sent on the returned channel. Failed or
// panicking lookups are retried on the next period. The channel is closed once ctx is cancelled.
func Poll(ctx context.Context, period time.Duration, locate LocateFunc, build func(Coordinate) Result) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		state := GeolocationState{}

		for {
			coord, err := safeLocate(ctx, locate)
			if err == nil && state.HasChanged(coord) {
				state.Update(coord)
				select {
				case <-ctx.Done():
					return
				case out <- build(coord):
				}
			}

			if !sleepOrDone(ctx, period) {
				return
			}
		}
	}()
	return out
}

func safeLocate(ctx context.Context, locate LocateFunc) (coord Coordinate, err error) {
	defer func() {
		if r := recover(); r != nil {
			coord, err = Coordinate{}, fmt.Errorf("lookup panicked: %v", r)
		}
	}()
	return locate(ctx)
}
