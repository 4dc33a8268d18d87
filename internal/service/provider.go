// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/locreport/internal/geobus"
	"github.com/wneessen/locreport/internal/geobus/provider/file"
	"github.com/wneessen/locreport/internal/geobus/provider/geoip"
	"github.com/wneessen/locreport/internal/geobus/provider/gpsd"
	"github.com/wneessen/locreport/internal/geobus/provider/ichnaea"
	"github.com/wneessen/locreport/internal/geocode"
	nominatim "github.com/wneessen/locreport/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/locreport/internal/http"
	"github.com/wneessen/locreport/internal/logger"
	"github.com/wneessen/locreport/internal/notify"
	"github.com/wneessen/locreport/internal/transmit"
	httppost "github.com/wneessen/locreport/internal/transmit/provider/http-post"
	"github.com/wneessen/locreport/internal/transmit/provider/mqtt"
	"github.com/wneessen/locreport/internal/transmit/provider/rabbitmq"
)

var ErrNoProviders = errors.New("no geolocation providers enabled")

func (s *Service) selectGeobusProviders() ([]geobus.Provider, error) {
	httpClient := http.New(s.logger)
	var provider []geobus.Provider

	if !s.config.GeoLocation.DisableFile {
		provider = append(provider, file.New(s.config.GeoLocation.File))
	}

	if !s.config.GeoLocation.DisableGPSD {
		provider = append(provider, gpsd.New(s.config.GeoLocation.GPSDHost, s.config.GeoLocation.GPSDPort, s.logger))
	}

	if !s.config.GeoLocation.DisableGeoIP {
		provider = append(provider, geoip.New(httpClient))
	}

	if !s.config.GeoLocation.DisableICHNAEA {
		mls, err := ichnaea.New(httpClient, s.logger)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		return nil, ErrNoProviders
	}

	return provider, nil
}

// selectGeocodeProvider returns the configured reverse geocoder. A nil Geocoder means address
// resolution is disabled.
func (s *Service) selectGeocodeProvider() (geocode.Geocoder, error) {
	switch strings.ToLower(s.config.GeoCoder.Provider) {
	case "", "none":
		return nil, nil
	case "nominatim":
		return geocode.NewCachedGeocoder(nominatim.New(http.New(s.logger), s.localizer.Language()),
			cacheHitTTL, cacheMissTTL), nil
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", s.config.GeoCoder.Provider)
	}
}

func (s *Service) selectTransmitter(context.Context) (transmit.Transmitter, error) {
	conf := s.config.Transmit
	var (
		transmitter transmit.Transmitter
		err         error
	)
	switch strings.ToLower(conf.Provider) {
	case "http":
		transmitter, err = httppost.New(http.New(s.logger), conf.Endpoint, s.config.DeviceID, conf.Timeout)
	case "mqtt":
		transmitter, err = mqtt.New(mqtt.Config{
			Broker:   conf.MQTT.Broker,
			Topic:    conf.MQTT.Topic,
			QoS:      byte(conf.MQTT.QoS), //nolint:gosec
			DeviceID: s.config.DeviceID,
			Timeout:  conf.Timeout,
		}, s.logger)
	case "amqp":
		transmitter, err = rabbitmq.New(rabbitmq.Config{
			URL:        conf.AMQP.URL,
			Exchange:   conf.AMQP.Exchange,
			RoutingKey: conf.AMQP.RoutingKey,
			DeviceID:   s.config.DeviceID,
			Timeout:    conf.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported transmit provider: %s", conf.Provider)
	}
	if err != nil {
		return nil, err
	}
	return transmitter, nil
}

func (s *Service) connectNotifier(ctx context.Context) (notifier, error) {
	dbusNotifier, err := notify.New(ctx, s.config.Notification.Expire)
	if err != nil {
		return nil, err
	}
	info := dbusNotifier.Server()
	s.logger.Debug("connected to notification server", slog.String("name", info.Name),
		slog.String("vendor", info.Vendor), slog.String("version", info.Version))
	return dbusNotifier, nil
}
