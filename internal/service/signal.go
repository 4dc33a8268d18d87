// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals reacts to user signals: SIGUSR1 stops a running reporter loop or starts a
// stopped one, SIGUSR2 logs the current reporter state.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				s.toggleReporter(ctx)
			case syscall.SIGUSR2:
				snap := s.reporter.Snapshot()
				s.logger.Info("current reporter state", slog.Bool("running", snap.Running),
					slog.String("position", snap.Position.String()),
					slog.String("last_sent_at", snap.LastSentAt.String()),
					slog.String("last_error", snap.LastError))
			}
		}
	}
}

func (s *Service) toggleReporter(ctx context.Context) {
	if s.reporter.Running() {
		s.reporter.Stop()
		s.logger.Info("location reporter paused")
		return
	}
	if s.reporter.Start(ctx) {
		s.logger.Info("location reporter resumed")
	}
}
