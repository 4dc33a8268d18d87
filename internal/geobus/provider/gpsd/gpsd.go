// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/locreport/internal/geobus"
	"github.com/wneessen/locreport/internal/logger"
)

const name = "gpsd"

// Provider streams TPV reports from a gpsd daemon.
type Provider struct {
	name   string
	addr   string
	period time.Duration
	ttl    time.Duration
	logger *logger.Logger
}

// New returns a gpsd Provider that connects to host:port.
func New(host, port string, log *logger.Logger) *Provider {
	return &Provider{
		name:   name,
		addr:   net.JoinHostPort(host, port),
		period: time.Second * 30,
		ttl:    time.Minute * 2,
		logger: log,
	}
}

func (p *Provider) Name() string {
	return p.name
}

// LookupStream connects to gpsd and emits a Result for every changed fix. Lost connections are
// re-established after the provider period.
func (p *Provider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)
		state := geobus.GeolocationState{}

		for ctx.Err() == nil {
			session, err := gpsd.Dial(p.addr)
			if err != nil {
				p.logger.Debug("failed to connect to gpsd", slog.String("addr", p.addr), logger.Err(err))
				if !wait(ctx, p.period) {
					return
				}
				continue
			}

			session.AddFilter("TPV", func(r interface{}) {
				report, ok := r.(*gpsd.TPVReport)
				if !ok {
					return
				}
				coord, ok := coordinateFromTPV(report)
				if !ok || !state.HasChanged(coord) {
					return
				}
				state.Update(coord)

				select {
				case <-ctx.Done():
				case out <- p.createResult(key, coord):
				}
			})

			// go-gpsd has no Close(), the watch ends when the connection drops
			done := session.Watch()
			select {
			case <-ctx.Done():
				return
			case <-done:
			}

			if !wait(ctx, p.period) {
				return
			}
		}
	}()

	return out
}

func (p *Provider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Source:         p.name,
		At:             time.Now(),
		TTL:            p.ttl,
	}
}

// coordinateFromTPV converts a TPV report into a Coordinate. Reports without at least a 2D fix
// are rejected. The accuracy is the horizontal error estimate, or AccuracyGPS if gpsd does not
// report one.
func coordinateFromTPV(report *gpsd.TPVReport) (geobus.Coordinate, bool) {
	if report == nil || report.Mode < gpsd.Mode2D {
		return geobus.Coordinate{}, false
	}
	acc := math.Hypot(report.Epx, report.Epy)
	if acc <= 0 || math.IsNaN(acc) {
		acc = geobus.AccuracyGPS
	}
	coord := geobus.Coordinate{
		Lat: geobus.Truncate(report.Lat, geobus.TruncPrecision),
		Lon: geobus.Truncate(report.Lon, geobus.TruncPrecision),
		Acc: acc,
	}
	return coord, coord.Valid()
}

func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
