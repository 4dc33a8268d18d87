// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/locreport/internal/geobus"
	"github.com/wneessen/locreport/internal/geocode"
	"github.com/wneessen/locreport/internal/logger"
	"github.com/wneessen/locreport/internal/notify"
	"github.com/wneessen/locreport/internal/position"
	"github.com/wneessen/locreport/internal/reporter"
)

// announce raises the notification for a report cycle.
func (s *Service) announce(ctx context.Context, out reporter.Outcome) error {
	addr := s.resolveAddress(ctx, out.Position)
	tplCtx := s.presenter.BuildContext(out.Position, addr, out.Transmitter, out.At, out.Err)
	if fix, ok := s.geobus.Best(LocationKey); ok && fix.Lat == out.Position.Lat && fix.Lon == out.Position.Lng {
		tplCtx.Accuracy = fix.AccuracyMeters
		tplCtx.Source = fix.Source
	}

	summary, body, err := s.presenter.Render(tplCtx)
	if err != nil {
		return fmt.Errorf("failed to render notification: %w", err)
	}
	return s.notifier.Notify(ctx, notify.Message{
		Summary:  summary,
		Body:     body,
		Critical: out.Status == reporter.StatusFailed,
	})
}

func (s *Service) resolveAddress(ctx context.Context, pos position.Position) geocode.Address {
	if s.geocoder == nil {
		return geocode.Address{}
	}
	ctxGeo, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	addr, err := s.geocoder.Reverse(ctxGeo, geobus.Coordinate{Lat: pos.Lat, Lon: pos.Lng})
	if err != nil {
		s.logger.Warn("failed to resolve address", logger.Err(err), slog.String("position", pos.String()))
		return geocode.Address{}
	}
	return addr
}
