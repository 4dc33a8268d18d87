// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wneessen/locreport/internal/logger"
)

const (
	accuracyEpsilon = 1e-6
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
)

// Accuracy radii in meters for the different kinds of location sources.
const (
	AccuracyGPS     = 10
	AccuracyWifi    = 100
	AccuracyZip     = 3000
	AccuracyCity    = 15000
	AccuracyRegion  = 100000
	AccuracyCountry = 300000
	AccuracyUnknown = 1000000
	TruncPrecision  = 4
)

// Provider is a source of geolocation fixes.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// GeoBus keeps the best known fix per key and fans out updates to its subscribers.
type GeoBus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	best        map[string]Result
	subscribers map[string]map[chan Result]struct{}
}

// Result is a single geolocation fix as reported by a Provider.
type Result struct {
	Key            string
	Lat, Lon       float64
	AccuracyMeters float64
	Source         string
	At             time.Time
	TTL            time.Duration
}

// Coordinate returns the position part of the Result.
func (r Result) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon, Acc: r.AccuracyMeters}
}

// BetterThan reports whether r is at least as recent as prev and strictly more accurate.
func (r Result) BetterThan(prev Result) bool {
	if prev.Key == "" {
		return true
	}
	if r.At.Before(prev.At) {
		return false
	}
	return r.AccuracyMeters < prev.AccuracyMeters-accuracyEpsilon
}

// IsExpired reports whether the TTL of the Result has passed.
func (r Result) IsExpired() bool {
	return r.TTL > 0 && time.Since(r.At) > r.TTL
}

// New returns an empty GeoBus.
func New(log *logger.Logger) *GeoBus {
	return &GeoBus{
		logger:      log,
		best:        make(map[string]Result),
		subscribers: make(map[string]map[chan Result]struct{}),
	}
}

// NewOrchestrator returns an Orchestrator that feeds the given providers into the bus.
func (b *GeoBus) NewOrchestrator(providers []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: providers,
	}
}

// Subscribe registers a buffered channel for updates on key. The current best fix, if any, is
// delivered right away. The returned function removes the subscription and closes the channel.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Result, func()) {
	if size < 1 {
		size = 1
	}
	resultChan := make(chan Result, size)

	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[chan Result]struct{})
	}
	b.subscribers[key][resultChan] = struct{}{}
	if best, ok := b.best[key]; ok && !best.IsExpired() {
		resultChan <- best
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subscribers[key]; ok {
				delete(subs, resultChan)
				if len(subs) == 0 {
					delete(b.subscribers, key)
				}
			}
			b.mu.Unlock()
			close(resultChan)
		})
	}

	return resultChan, unsub
}

// Publish offers a fix to the bus. It replaces the stored fix for its key when there is none,
// when the stored one expired, when the new fix is better and has moved significantly, or when
// it comes from the same source as the stored one.
// Fixes without an accuracy or with invalid coordinates are ignored.
func (b *GeoBus) Publish(r Result) {
	if r.AccuracyMeters <= 0 || !r.Coordinate().Valid() {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev, have := b.best[r.Key]
	switch {
	case !have, prev.IsExpired(), r.BetterThan(prev) && r.Coordinate().PosHasSignificantChange(prev.Coordinate()):
		b.best[r.Key] = r
		b.broadcast(r)
	case prev.Source == r.Source:
		// a source's latest reading supersedes its own earlier one
		b.best[r.Key] = r
		if r.Lat != prev.Lat || r.Lon != prev.Lon {
			b.broadcast(r)
		}
	}
}

// Best returns the stored non-expired fix for key.
func (b *GeoBus) Best(key string) (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.best[key]
	return r, ok && !r.IsExpired()
}

func (b *GeoBus) broadcast(r Result) {
	for ch := range b.subscribers[r.Key] {
		select {
		case ch <- r:
		default:
			if b.logger != nil {
				b.logger.Debug("dropping geolocation update for slow subscriber", "key", r.Key)
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Truncate cuts x down to the given number of decimal places.
func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
