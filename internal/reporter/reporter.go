// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package reporter implements the location report cycle: fetch the last known position, transmit
// it once and announce the outcome.
package reporter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wneessen/locreport/internal/job"
	"github.com/wneessen/locreport/internal/logger"
	"github.com/wneessen/locreport/internal/position"
	"github.com/wneessen/locreport/internal/transmit"
	"github.com/wneessen/locreport/internal/vartype"
)

var (
	ErrNoLocator     = errors.New("locator is required")
	ErrNoTransmitter = errors.New("transmitter is required")
	ErrNoLogger      = errors.New("logger is required")
)

// Status is the result of a single report cycle.
type Status int

const (
	StatusSkipped Status = iota
	StatusSent
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Locator returns the last known position, if there is one.
type Locator interface {
	LastKnown() (position.Position, bool)
}

// Announcer is informed about the outcome of every cycle that attempted a transmission.
type Announcer interface {
	Announce(ctx context.Context, out Outcome) error
}

// AnnouncerFunc adapts a plain function to the Announcer interface.
type AnnouncerFunc func(ctx context.Context, out Outcome) error

func (f AnnouncerFunc) Announce(ctx context.Context, out Outcome) error {
	return f(ctx, out)
}

// Outcome describes what a single cycle did.
type Outcome struct {
	Status      Status
	Position    position.Position
	Transmitter string
	At          time.Time
	Err         error
}

// Snapshot is a point-in-time view of the reporter state.
type Snapshot struct {
	Running    bool                                `json:"running"`
	Position   vartype.Optional[position.Position] `json:"position"`
	LastSentAt vartype.Optional[time.Time]         `json:"last_sent_at"`
	LastError  string                              `json:"last_error,omitempty"`
	Sent       uint64                              `json:"sent"`
	Failed     uint64                              `json:"failed"`
	Skipped    uint64                              `json:"skipped"`
}

type Reporter struct {
	locator     Locator
	transmitter transmit.Transmitter
	announcer   Announcer
	logger      *logger.Logger
	job         *job.Job
	now         func() time.Time

	mu       sync.RWMutex
	position vartype.Optional[position.Position]
	lastSent vartype.Optional[time.Time]
	lastErr  error

	sent    atomic.Uint64
	failed  atomic.Uint64
	skipped atomic.Uint64
}

// New returns a Reporter that runs a cycle every interval once started. The announcer is
// optional.
func New(interval time.Duration, locator Locator, transmitter transmit.Transmitter, announcer Announcer,
	log *logger.Logger,
) (*Reporter, error) {
	if locator == nil {
		return nil, ErrNoLocator
	}
	if transmitter == nil {
		return nil, ErrNoTransmitter
	}
	if log == nil {
		return nil, ErrNoLogger
	}
	rep := &Reporter{
		locator:     locator,
		transmitter: transmitter,
		announcer:   announcer,
		logger:      log,
		now:         time.Now,
	}
	rep.job = job.New(interval, func(ctx context.Context) { rep.Cycle(ctx) })
	return rep, nil
}

// Start starts the report loop. A loop that is already running is stopped first.
func (r *Reporter) Start(ctx context.Context) bool {
	started := r.job.Start(ctx)
	if started {
		r.logger.Debug("location reporter started", slog.String("transmitter", r.transmitter.Name()))
	}
	return started
}

// Stop stops the report loop and waits for a running cycle to finish.
func (r *Reporter) Stop() {
	r.job.Stop()
	r.logger.Debug("location reporter stopped")
}

func (r *Reporter) Running() bool {
	return r.job.Running()
}

// Cycle runs one report iteration. Without a known position nothing is sent. Otherwise the
// position is transmitted exactly once; errors are logged and never retried.
func (r *Reporter) Cycle(ctx context.Context) Outcome {
	pos, ok := r.locator.LastKnown()
	if !ok {
		r.skipped.Add(1)
		r.logger.Debug("no position available, skipping report")
		return Outcome{Status: StatusSkipped, At: r.now()}
	}

	r.mu.Lock()
	r.position.Set(pos)
	r.mu.Unlock()

	out := Outcome{
		Status:      StatusSent,
		Position:    pos,
		Transmitter: r.transmitter.Name(),
	}
	err := r.transmitter.Transmit(ctx, pos)
	out.At = r.now()
	if err != nil {
		out.Status, out.Err = StatusFailed, err
		r.failed.Add(1)
		r.logger.Error("failed to transmit position", logger.Err(err),
			slog.String("transmitter", out.Transmitter), slog.String("position", pos.String()))
	} else {
		r.sent.Add(1)
		r.logger.Debug("position transmitted", slog.String("transmitter", out.Transmitter),
			slog.Float64("lat", pos.Lat), slog.Float64("lng", pos.Lng))
	}

	r.mu.Lock()
	if err == nil {
		r.lastSent.Set(out.At)
	}
	r.lastErr = err
	r.mu.Unlock()

	if r.announcer != nil && ctx.Err() == nil {
		if aerr := r.announcer.Announce(ctx, out); aerr != nil {
			r.logger.Warn("failed to announce report outcome", logger.Err(aerr))
		}
	}
	return out
}

// Snapshot returns the current reporter state.
func (r *Reporter) Snapshot() Snapshot {
	running := r.Running()

	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		Running:    running,
		Position:   r.position,
		LastSentAt: r.lastSent,
		Sent:       r.sent.Load(),
		Failed:     r.failed.Load(),
		Skipped:    r.skipped.Load(),
	}
	if r.lastErr != nil {
		snap.LastError = r.lastErr.Error()
	}
	return snap
}
