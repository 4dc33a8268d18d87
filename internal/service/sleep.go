// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/locreport/internal/logger"
)

const (
	login1Interface = "org.freedesktop.login1.Manager"
	login1Member    = "PrepareForSleep"

	debounceWindow   = 2 // seconds
	signalBufferSize = 8

	busReconnectDelay  = 5 * time.Second
	networkWakeupDelay = 10 * time.Second
)

// monitorSleepResume watches logind for PrepareForSleep signals and restarts the reporter
// after a resume. Lost bus connections are re-established until ctx is cancelled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResumeUnix int64

	for {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err == nil {
			s.watchSleepSignals(ctx, conn, &lastResumeUnix)
			if cerr := conn.Close(); cerr != nil && ctx.Err() == nil {
				s.logger.Error("failed to close system bus connection", logger.Err(cerr))
			}
		} else {
			s.logger.Debug("system bus is not available", logger.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(busReconnectDelay):
		}
	}
}

// watchSleepSignals subscribes to the logind sleep signal on conn and handles signals until the
// connection drops or ctx is cancelled.
func (s *Service) watchSleepSignals(ctx context.Context, conn *dbus.Conn, lastResumeUnix *int64) {
	if err := conn.AddMatchSignal(dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember(login1Member),
	); err != nil {
		s.logger.Error("failed to subscribe to dbus signal", slog.String("interface", login1Interface),
			slog.String("member", login1Member), logger.Err(err))
		return
	}

	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)
	s.logger.Debug("subscribed to dbus signal", slog.String("interface", login1Interface),
		slog.String("member", login1Member))

	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			if isResumeSignal(sgn) {
				s.handleResumeEvent(ctx, lastResumeUnix)
			}
		}
	}
}

// isResumeSignal reports whether sgn is a PrepareForSleep(false) signal, which logind emits
// after the system woke up.
func isResumeSignal(sgn *dbus.Signal) bool {
	if sgn == nil || len(sgn.Body) != 1 {
		return false
	}
	sleeping, ok := sgn.Body[0].(bool)
	return ok && !sleeping
}

// handleResumeEvent restarts the reporter loop after the system woke up, so a fresh report is
// sent right away. Repeated resume events within the debounce window are ignored.
func (s *Service) handleResumeEvent(ctx context.Context, lastResumeUnix *int64) {
	now := time.Now().Unix()

	// debounce in case of multiple resume events
	if now-atomic.LoadInt64(lastResumeUnix) < debounceWindow {
		return
	}
	atomic.StoreInt64(lastResumeUnix, now)

	// Give the system time to wake up and establish network connection
	select {
	case <-ctx.Done():
		return
	case <-time.After(networkWakeupDelay):
	}

	if !s.reporter.Running() {
		s.logger.Debug("resumed from sleep, reporter is paused")
		return
	}
	s.logger.Debug("resumed from sleep, restarting location reporter")
	s.reporter.Start(ctx)
}
