// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"fmt"
	"sync"

	"github.com/wneessen/locreport/internal/logger"
)

// Orchestrator runs a set of providers and publishes their fixes to a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider
}

// Track runs every provider concurrently for key until ctx is cancelled. A provider whose
// stream ends or panics is restarted with exponential backoff.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Go(func() {
			o.trackProvider(ctx, p, key)
		})
	}
	<-ctx.Done()
	wg.Wait()
}

func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	backoff := initialBackoff
	for ctx.Err() == nil {
		lookupChan, err := o.safeLookup(ctx, p, key)
		if err != nil {
			o.logError(p, err)
		}
		if lookupChan != nil {
			published, ok := o.drain(ctx, lookupChan)
			if !ok {
				return
			}
			if published > 0 {
				backoff = initialBackoff
			}
		}

		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// drain publishes everything the stream delivers until it is closed and returns the number of
// published results. The boolean is false if ctx was cancelled first.
func (o *Orchestrator) drain(ctx context.Context, stream <-chan Result) (int, bool) {
	published := 0
	for {
		select {
		case <-ctx.Done():
			return published, false
		case r, ok := <-stream:
			if !ok {
				return published, true
			}
			o.Bus.Publish(r)
			published++
		}
	}
}

// safeLookup calls LookupStream and turns a panic into an error.
func (o *Orchestrator) safeLookup(ctx context.Context, p Provider, key string) (ch <-chan Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ch, err = nil, fmt.Errorf("provider %s panicked: %v", p.Name(), r)
		}
	}()
	return p.LookupStream(ctx, key), nil
}

func (o *Orchestrator) logError(p Provider, err error) {
	if o.Bus == nil || o.Bus.logger == nil {
		return
	}
	o.Bus.logger.Warn("geolocation provider failed", "provider", p.Name(), logger.Err(err))
}
