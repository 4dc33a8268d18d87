// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/locreport/internal/geobus"
	"github.com/wneessen/locreport/internal/http"
	"github.com/wneessen/locreport/internal/logger"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	wifiScanTime  = time.Minute * 2
	name          = "ichnaea"
)

// scanner is the part of the nl80211 client the provider needs.
type scanner interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
	Close() error
}

// Provider locates the device by sending nearby Wi-Fi access points to an ICHNAEA compatible
// geolocation API (beacondb).
type Provider struct {
	name     string
	endpoint string
	http     *http.Client
	wlan     scanner
	logger   *logger.Logger
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc

	apLock sync.RWMutex
	aps    []WirelessNetwork
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

type apiRequest struct {
	ConsiderIP   bool              `json:"considerIp"`
	AccessPoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
}

// New returns an ICHNAEA Provider. It fails if no nl80211 Wi-Fi client can be opened.
func New(client *http.Client, log *logger.Logger) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	return newProvider(client, wlan, log), nil
}

func newProvider(client *http.Client, wlan scanner, log *logger.Logger) *Provider {
	provider := &Provider{
		name:     name,
		endpoint: apiEndpoint,
		http:     client,
		wlan:     wlan,
		logger:   log,
		period:   time.Minute * 5,
		ttl:      time.Hour,
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *Provider) Name() string {
	return p.name
}

// LookupStream scans for access points in the background and periodically asks the API for
// the matching position.
func (p *Provider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	go p.monitorWifiAccessPoints(ctx)
	return geobus.Poll(ctx, p.period, p.locateFn, func(coord geobus.Coordinate) geobus.Result {
		return p.createResult(key, coord)
	})
}

// Close releases the Wi-Fi client.
func (p *Provider) Close() error {
	return p.wlan.Close()
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

func (p *Provider) monitorWifiAccessPoints(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		list, err := p.wifiAccessPoints()
		if err != nil {
			p.logger.Debug("failed to scan for wifi access points", logger.Err(err))
		} else {
			p.apLock.Lock()
			p.aps = list
			p.apLock.Unlock()
		}
		timer.Reset(wifiScanTime)
	}
}

// wifiAccessPoints lists the access points visible to all station interfaces. Hidden networks
// and networks that opted out via the _nomap suffix are skipped.
func (p *Provider) wifiAccessPoints() ([]WirelessNetwork, error) {
	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var list []WirelessNetwork
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, nil
}

func (p *Provider) locate(ctx context.Context) (geobus.Coordinate, error) {
	p.apLock.RLock()
	req := apiRequest{ConsiderIP: true, AccessPoints: p.aps}
	p.apLock.RUnlock()

	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(req); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(APIResult)
	if _, err := p.http.PostWithTimeout(ctx, p.endpoint, result, body,
		map[string]string{"Content-Type": "application/json"}, lookupTimeout); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	coord := geobus.Coordinate{
		Lat: geobus.Truncate(result.Location.Latitude, geobus.TruncPrecision),
		Lon: geobus.Truncate(result.Location.Longitude, geobus.TruncPrecision),
		Acc: result.Accuracy,
	}
	if coord.Acc <= 0 {
		coord.Acc = geobus.AccuracyUnknown
	}
	return coord, nil
}
