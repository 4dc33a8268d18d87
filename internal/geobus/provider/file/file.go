// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/locreport/internal/geobus"
)

const name = "file"

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// Provider reads a "lat,lon" pair from a text file. Lines starting with # are ignored and the
// first valid line wins. The file is re-read periodically so edits are picked up.
type Provider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc
}

// New returns a file Provider for path.
func New(path string) *Provider {
	provider := &Provider{
		name:   name,
		path:   path,
		period: time.Minute * 2,
		ttl:    time.Hour,
	}
	provider.locateFn = provider.readFile
	return provider
}

func (p *Provider) Name() string {
	return p.name
}

// LookupStream emits a Result whenever the coordinates in the file change.
func (p *Provider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.Poll(ctx, p.period, p.locateFn, func(coord geobus.Coordinate) geobus.Result {
		return p.createResult(key, coord)
	})
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

func (p *Provider) readFile(context.Context) (geobus.Coordinate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		latStr, lonStr, found := strings.Cut(line, ",")
		if !found {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil {
			continue
		}
		coord := geobus.Coordinate{Lat: lat, Lon: lon, Acc: geobus.AccuracyZip}
		if !coord.Valid() {
			continue
		}
		return coord, nil
	}
	return geobus.Coordinate{}, ErrNoCoordinates
}
