// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires geolocation, transmission and notifications into the locreport daemon.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/locreport/internal/config"
	"github.com/wneessen/locreport/internal/geobus"
	"github.com/wneessen/locreport/internal/geocode"
	"github.com/wneessen/locreport/internal/logger"
	"github.com/wneessen/locreport/internal/notify"
	"github.com/wneessen/locreport/internal/position"
	"github.com/wneessen/locreport/internal/presenter"
	"github.com/wneessen/locreport/internal/reporter"
	"github.com/wneessen/locreport/internal/status"
	"github.com/wneessen/locreport/internal/transmit"
)

const (
	LocationKey = "locreport"

	subscriberBufferSize = 32
	geocodeTimeout       = 5 * time.Second
	cacheHitTTL          = 6 * time.Hour
	cacheMissTTL         = 15 * time.Minute
)

// notifier is implemented by notify.DBus.
type notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
	Close() error
}

type Service struct {
	SignalSrc signalSource

	config    *config.Config
	logger    *logger.Logger
	localizer *spreak.Localizer
	geobus    *geobus.GeoBus
	presenter *presenter.Presenter
	scheduler gocron.Scheduler

	orchestrator *geobus.Orchestrator
	geocoder     geocode.Geocoder
	transmitter  transmit.Transmitter
	notifier     notifier
	reporter     *reporter.Reporter

	// replaced in tests
	newNotifier    func(ctx context.Context) (notifier, error)
	newTransmitter func(ctx context.Context) (transmit.Transmitter, error)
	watchSleep     func(ctx context.Context)
}

// New returns a Service for the given configuration. Providers are selected when the service is
// started.
func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if conf == nil {
		return nil, errors.New("config is required")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	pres, err := presenter.New(conf, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	serv := &Service{
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		logger:    log,
		localizer: loc,
		geobus:    geobus.New(log),
		presenter: pres,
		scheduler: scheduler,
	}
	serv.newNotifier = serv.connectNotifier
	serv.newTransmitter = serv.selectTransmitter
	serv.watchSleep = serv.monitorSleepResume
	return serv, nil
}

// Run starts the location reporter and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) (err error) {
	providers, err := s.selectGeobusProviders()
	if err != nil {
		return fmt.Errorf("failed to create geobus orchestrator: %w", err)
	}
	s.orchestrator = s.geobus.NewOrchestrator(providers)

	if s.geocoder, err = s.selectGeocodeProvider(); err != nil {
		return fmt.Errorf("failed to create geocode provider: %w", err)
	}

	if s.transmitter, err = s.newTransmitter(ctx); err != nil {
		return fmt.Errorf("failed to create transmitter: %w", err)
	}
	defer func() {
		if cerr := s.transmitter.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close transmitter: %w", cerr))
		}
	}()

	var announcer reporter.Announcer
	if !s.config.Notification.Disable {
		s.notifier, err = s.newNotifier(ctx)
		if err != nil {
			s.logger.Warn("notifications are unavailable, continuing without", logger.Err(err))
		} else {
			announcer = reporter.AnnouncerFunc(s.announce)
			defer func() {
				if cerr := s.notifier.Close(); cerr != nil {
					s.logger.Error("failed to close notifier", logger.Err(cerr))
				}
			}()
		}
	}

	s.reporter, err = reporter.New(s.config.Intervals.Report, busLocator{bus: s.geobus, key: LocationKey},
		s.transmitter, announcer, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create reporter: %w", err)
	}

	// Start scheduled jobs
	if err = s.createScheduledJob(ctx, s.config.Intervals.Stats, s.logStats, "report_stats_job"); err != nil {
		return err
	}
	if err = s.createScheduledJob(ctx, s.config.Intervals.CachePrune, s.pruneGeocodeCache,
		"geocode_cache_prune_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	// Subscribe to geolocation updates from the geobus
	sub, unsub := s.geobus.Subscribe(LocationKey, subscriberBufferSize)
	go s.processLocationUpdates(ctx, sub)
	go s.orchestrator.Track(ctx, LocationKey)
	go s.watchSleep(ctx)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer s.SignalSrc.Stop(sigChan)
		s.HandleSignals(ctx, sigChan)
	}()

	if s.config.Status.Listen != "" {
		srv := status.New(s.config.Status.Listen, s.reporter, s.logger)
		go func() {
			if serr := srv.ListenAndServe(ctx); serr != nil {
				s.logger.Error("status endpoint stopped", logger.Err(serr))
			}
		}()
	}

	s.reporter.Start(ctx)
	s.logger.Info("location reporter running", slog.String("transmitter", s.transmitter.Name()),
		slog.Duration("interval", s.config.Intervals.Report), slog.Int("providers", len(providers)))

	// Wait for the context to cancel
	<-ctx.Done()
	unsub()
	s.reporter.Stop()
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// processLocationUpdates logs the geolocation updates published on the bus.
func (s *Service) processLocationUpdates(ctx context.Context, sub <-chan geobus.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-sub:
			if !ok {
				return
			}
			s.logger.Debug("received geolocation update",
				slog.Float64("lat", r.Lat), slog.Float64("lon", r.Lon),
				slog.Float64("accuracy", r.AccuracyMeters), slog.String("source", r.Source))
		}
	}
}

func (s *Service) logStats(context.Context) {
	snap := s.reporter.Snapshot()
	s.logger.Info("location report statistics", slog.Bool("running", snap.Running),
		slog.Uint64("sent", snap.Sent), slog.Uint64("failed", snap.Failed),
		slog.Uint64("skipped", snap.Skipped), slog.String("position", snap.Position.String()))
}

func (s *Service) pruneGeocodeCache(context.Context) {
	cached, ok := s.geocoder.(*geocode.CachedGeocoder)
	if !ok {
		return
	}
	if pruned := cached.Prune(); pruned > 0 {
		s.logger.Debug("pruned geocode cache", slog.Int("entries", pruned), slog.Int("remaining", cached.Len()))
	}
}

// busLocator answers the reporter's last known position query from the geobus.
type busLocator struct {
	bus *geobus.GeoBus
	key string
}

func (l busLocator) LastKnown() (position.Position, bool) {
	fix, ok := l.bus.Best(l.key)
	if !ok {
		return position.Position{}, false
	}
	pos, err := position.New(fix.Lat, fix.Lon)
	if err != nil {
		return position.Position{}, false
	}
	return pos, true
}
