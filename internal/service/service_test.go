// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"testing/synctest"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/locreport/internal/config"
	"github.com/wneessen/locreport/internal/geobus"
	"github.com/wneessen/locreport/internal/geocode"
	"github.com/wneessen/locreport/internal/i18n"
	"github.com/wneessen/locreport/internal/logger"
	"github.com/wneessen/locreport/internal/notify"
	"github.com/wneessen/locreport/internal/position"
	"github.com/wneessen/locreport/internal/reporter"
	"github.com/wneessen/locreport/internal/transmit"
)

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.SignalSrc == nil {
			t.Error("expected signal source to be set")
		}
	})
	t.Run("invalid template configuration should fail", func(t *testing.T) {
		t.Setenv("LOCREPORT_NOTIFICATION_SUMMARY", "{{")
		_, err := testService(t, false)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "failed to parse summary template"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("nil logger fails the service initialization", func(t *testing.T) {
		_, err := testService(t, true)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "logger is required"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("nil config fails the service initialization", func(t *testing.T) {
		_, err := New(nil, testLogger(io.Discard), nil)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("positions are reported and the service shuts down gracefully", func(t *testing.T) {
		serv, trans, notif := testRunService(t)
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- serv.Run(ctx) }()

		waitFor(t, func() bool { return notif.count() > 0 })
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("failed to run service: %s", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("service did not shut down")
		}

		sent := trans.positions()
		if len(sent) == 0 {
			t.Fatal("expected at least one transmission")
		}
		want := position.Position{Lat: 40.7185, Lng: -74.0025}
		if sent[0] != want {
			t.Errorf("expected transmitted position to be %s, got %s", want, sent[0])
		}
		if !trans.closed.Load() {
			t.Error("expected transmitter to be closed")
		}
		if !notif.closed.Load() {
			t.Error("expected notifier to be closed")
		}
		msg := notif.messages()[0]
		if msg.Summary != "Current location" {
			t.Errorf("expected summary to be %q, got %q", "Current location", msg.Summary)
		}
		if !strings.HasPrefix(msg.Body, "Lat: 40.7185, Lng: -74.0025") {
			t.Errorf("expected body to start with the position, got %q", msg.Body)
		}
	})
	t.Run("service runs without notifications when unavailable", func(t *testing.T) {
		serv, trans, _ := testRunService(t)
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = testLogger(buf)
		serv.newNotifier = func(context.Context) (notifier, error) {
			return nil, notify.ErrUnavailable
		}
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- serv.Run(ctx) }()

		waitFor(t, func() bool { return len(trans.positions()) > 0 })
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("failed to run service: %s", err)
		}
		wantLog := "notifications are unavailable, continuing without"
		if !strings.Contains(buf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
		}
	})
	t.Run("disabled notifications are never connected", func(t *testing.T) {
		serv, trans, _ := testRunService(t)
		serv.config.Notification.Disable = true
		var connects atomic.Int32
		serv.newNotifier = func(context.Context) (notifier, error) {
			connects.Add(1)
			return nil, notify.ErrUnavailable
		}
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- serv.Run(ctx) }()

		waitFor(t, func() bool { return len(trans.positions()) > 0 })
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("failed to run service: %s", err)
		}
		if got := connects.Load(); got != 0 {
			t.Errorf("expected no notifier connection, got %d", got)
		}
	})
	t.Run("starting service fails due to invalid geocoding provider", func(t *testing.T) {
		serv, _, _ := testRunService(t)
		serv.config.GeoCoder.Provider = "invalid"
		err := serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		wantErr := `failed to create geocode provider: unsupported geocoder type: invalid`
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("starting service fails due to missing geobus providers", func(t *testing.T) {
		serv, _, _ := testRunService(t)
		serv.config.GeoLocation.DisableFile = true
		err := serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		wantErr := `failed to create geobus orchestrator: no geolocation providers enabled`
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("starting service fails due to transmitter error", func(t *testing.T) {
		serv, _, _ := testRunService(t)
		serv.newTransmitter = func(context.Context) (transmit.Transmitter, error) {
			return nil, errors.New("broker unreachable")
		}
		err := serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		wantErr := `failed to create transmitter: broker unreachable`
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
}

func TestService_selectGeobusProviders(t *testing.T) {
	tests := []struct {
		name       string
		confFn     func(*config.Config)
		shouldFail bool
	}{
		{
			name: "all providers enabled",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableFile = false
				c.GeoLocation.DisableGPSD = false
				c.GeoLocation.DisableGeoIP = false
				c.GeoLocation.DisableICHNAEA = false
			},
		},
		{
			name: "only geolocation file",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableGPSD = true
				c.GeoLocation.DisableGeoIP = true
				c.GeoLocation.DisableICHNAEA = true
			},
		},
		{
			name: "only gpsd",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableFile = true
				c.GeoLocation.DisableGeoIP = true
				c.GeoLocation.DisableICHNAEA = true
			},
		},
		{
			name: "only geo ip",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableFile = true
				c.GeoLocation.DisableGPSD = true
				c.GeoLocation.DisableICHNAEA = true
			},
		},
		{
			name: "no provider fails",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableFile = true
				c.GeoLocation.DisableGPSD = true
				c.GeoLocation.DisableGeoIP = true
				c.GeoLocation.DisableICHNAEA = true
			},
			shouldFail: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			tc.confFn(serv.config)

			providers, err := serv.selectGeobusProviders()
			if tc.shouldFail {
				if !errors.Is(err, ErrNoProviders) {
					t.Errorf("expected error to be %s, got %s", ErrNoProviders, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to select provider: %s", err)
			}
			if len(providers) == 0 {
				t.Error("expected at least one provider")
			}
		})
	}
}

func TestService_selectGeocodeProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantName string
		wantNil  bool
		wantFail bool
	}{
		{"none", "none", "", true, false},
		{"empty", "", "", true, false},
		{"osm-nominatim", "nominatim", "geocoder cache using osm-nominatim", false, false},
		{"case insensitive", "Nominatim", "geocoder cache using osm-nominatim", false, false},
		{"unsupported provider", "invalid", "", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.config.GeoCoder.Provider = tc.provider
			coder, err := serv.selectGeocodeProvider()
			if tc.wantFail {
				if err == nil {
					t.Fatal("expected geocode provider selection to fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to select geocode provider: %s", err)
			}
			if tc.wantNil {
				if coder != nil {
					t.Errorf("expected no geocoder, got %s", coder.Name())
				}
				return
			}
			if coder == nil {
				t.Fatal("expected geocoder to be non-nil")
			}
			if coder.Name() != tc.wantName {
				t.Errorf("expected geocoder name to be %q, got %q", tc.wantName, coder.Name())
			}
		})
	}
}

func TestService_selectTransmitter(t *testing.T) {
	t.Run("http transmitter is the default", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		trans, err := serv.selectTransmitter(t.Context())
		if err != nil {
			t.Fatalf("failed to select transmitter: %s", err)
		}
		if trans.Name() != "http" {
			t.Errorf("expected transmitter name to be %q, got %q", "http", trans.Name())
		}
	})
	t.Run("http transmitter without endpoint fails", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Transmit.Endpoint = ""
		trans, err := serv.selectTransmitter(t.Context())
		if err == nil {
			t.Fatal("expected transmitter selection to fail")
		}
		if trans != nil {
			t.Errorf("expected transmitter to be nil, got %v", trans)
		}
	})
	t.Run("unsupported transmitter fails", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Transmit.Provider = "carrier-pigeon"
		_, err = serv.selectTransmitter(t.Context())
		wantErr := "unsupported transmit provider: carrier-pigeon"
		if err == nil || !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %v", wantErr, err)
		}
	})
}

func TestBusLocator_LastKnown(t *testing.T) {
	t.Run("empty bus has no position", func(t *testing.T) {
		locator := busLocator{bus: geobus.New(testLogger(io.Discard)), key: LocationKey}
		if _, ok := locator.LastKnown(); ok {
			t.Error("expected no position")
		}
	})
	t.Run("best fix is returned", func(t *testing.T) {
		bus := geobus.New(testLogger(io.Discard))
		bus.Publish(testFix(40.7185, -74.0025))
		pos, ok := busLocator{bus: bus, key: LocationKey}.LastKnown()
		if !ok {
			t.Fatal("expected a position")
		}
		want := position.Position{Lat: 40.7185, Lng: -74.0025}
		if pos != want {
			t.Errorf("expected position to be %s, got %s", want, pos)
		}
	})
	t.Run("fixes for other keys are ignored", func(t *testing.T) {
		bus := geobus.New(testLogger(io.Discard))
		fix := testFix(40.7185, -74.0025)
		fix.Key = "other"
		bus.Publish(fix)
		if _, ok := (busLocator{bus: bus, key: LocationKey}).LastKnown(); ok {
			t.Error("expected no position")
		}
	})
}

func TestService_announce(t *testing.T) {
	pos := position.Position{Lat: 40.7185, Lng: -74.0025}
	t.Run("successful report is announced with address", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		notif := new(fakeNotifier)
		serv.notifier = notif
		serv.geocoder = new(mockGeocoder)

		out := reporter.Outcome{Status: reporter.StatusSent, Position: pos, Transmitter: "http", At: time.Now()}
		if err = serv.announce(t.Context(), out); err != nil {
			t.Fatalf("failed to announce: %s", err)
		}
		msgs := notif.messages()
		if len(msgs) != 1 {
			t.Fatalf("expected 1 notification, got %d", len(msgs))
		}
		if msgs[0].Critical {
			t.Error("expected notification to not be critical")
		}
		if !strings.Contains(msgs[0].Body, "Test Location 40.718500,-74.002500") {
			t.Errorf("expected body to contain the address, got %q", msgs[0].Body)
		}
		if !strings.Contains(msgs[0].Body, "Location sent") {
			t.Errorf("expected body to contain the send status, got %q", msgs[0].Body)
		}
	})
	t.Run("failed report is announced as critical", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		notif := new(fakeNotifier)
		serv.notifier = notif

		out := reporter.Outcome{
			Status: reporter.StatusFailed, Position: pos, Transmitter: "http", At: time.Now(),
			Err: errors.New("unexpected HTTP status: 500"),
		}
		if err = serv.announce(t.Context(), out); err != nil {
			t.Fatalf("failed to announce: %s", err)
		}
		msg := notif.messages()[0]
		if !msg.Critical {
			t.Error("expected notification to be critical")
		}
		if !strings.Contains(msg.Body, "Sending location failed") {
			t.Errorf("expected body to contain the failure, got %q", msg.Body)
		}
	})
	t.Run("accuracy and source of the current fix are used", func(t *testing.T) {
		t.Setenv("LOCREPORT_NOTIFICATION_BODY", "{{.Source}} {{.Accuracy}}")
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		notif := new(fakeNotifier)
		serv.notifier = notif
		serv.geobus.Publish(testFix(pos.Lat, pos.Lng))

		out := reporter.Outcome{Status: reporter.StatusSent, Position: pos, Transmitter: "http", At: time.Now()}
		if err = serv.announce(t.Context(), out); err != nil {
			t.Fatalf("failed to announce: %s", err)
		}
		if body := notif.messages()[0].Body; body != "test 3000" {
			t.Errorf("expected body to be %q, got %q", "test 3000", body)
		}
	})
	t.Run("failing notifier returns an error", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.notifier = &fakeNotifier{err: errors.New("no reply")}
		out := reporter.Outcome{Status: reporter.StatusSent, Position: pos, Transmitter: "http", At: time.Now()}
		if err = serv.announce(t.Context(), out); err == nil {
			t.Error("expected announce to fail")
		}
	})
}

func TestService_resolveAddress(t *testing.T) {
	pos := position.Position{Lat: 44.4375, Lng: 26.125}
	t.Run("no geocoder returns an empty address", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if addr := serv.resolveAddress(t.Context(), pos); addr.AddressFound {
			t.Error("expected no address")
		}
	})
	t.Run("geocoder fails", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = testLogger(buf)
		serv.geocoder = &mockGeocoder{shouldFail: true}
		if addr := serv.resolveAddress(t.Context(), pos); addr.AddressFound {
			t.Error("expected no address")
		}
		wantLog := `msg="failed to resolve address" error="intentionally failing"`
		if !strings.Contains(buf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
		}
	})
}

func TestService_pruneGeocodeCache(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		cached := geocode.NewCachedGeocoder(new(mockGeocoder), time.Minute, time.Minute)
		serv.geocoder = cached
		if _, err = cached.Reverse(t.Context(), geobus.Coordinate{Lat: 44.4375, Lon: 26.125}); err != nil {
			t.Fatalf("failed to reverse geocode: %s", err)
		}
		serv.pruneGeocodeCache(t.Context())
		if cached.Len() != 1 {
			t.Errorf("expected 1 cache entry, got %d", cached.Len())
		}
		time.Sleep(time.Minute * 2)
		serv.pruneGeocodeCache(t.Context())
		if cached.Len() != 0 {
			t.Errorf("expected cache to be empty, got %d entries", cached.Len())
		}
	})
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal toggles the reporter", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv := testReporterService(t, nil)
			serv.reporter.Start(t.Context())

			ctx, cancel := context.WithCancel(t.Context())
			sigChan := make(chan os.Signal, 1)
			go serv.HandleSignals(ctx, sigChan)

			sigChan <- syscall.SIGUSR1
			synctest.Wait()
			if serv.reporter.Running() {
				t.Error("expected reporter to be paused")
			}

			sigChan <- syscall.SIGUSR1
			synctest.Wait()
			if !serv.reporter.Running() {
				t.Error("expected reporter to be resumed")
			}

			cancel()
			serv.reporter.Stop()
		})
	})
	t.Run("USR2 signal logs the reporter state", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv := testReporterService(t, buf)

			ctx, cancel := context.WithCancel(t.Context())
			sigChan := make(chan os.Signal, 1)
			go serv.HandleSignals(ctx, sigChan)

			sigChan <- syscall.SIGUSR2
			synctest.Wait()
			wantLog := `msg="current reporter state" running=false position=unset last_sent_at=unset`
			if !strings.Contains(buf.String(), wantLog) {
				t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
			}
			cancel()
		})
	})
}

func TestService_handleResumeEvent(t *testing.T) {
	t.Run("running reporter is restarted after resume", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv := testReporterService(t, nil)
			trans := serv.transmitter.(*fakeTransmitter)
			serv.geobus.Publish(testFix(40.7185, -74.0025))
			serv.reporter.Start(t.Context())
			synctest.Wait()
			if got := len(trans.positions()); got != 1 {
				t.Fatalf("expected 1 transmission, got %d", got)
			}

			var lastResume int64
			serv.handleResumeEvent(t.Context(), &lastResume)
			synctest.Wait()
			if got := len(trans.positions()); got != 2 {
				t.Errorf("expected a transmission after resume, got %d", got)
			}
			serv.reporter.Stop()
		})
	})
	t.Run("resume events are debounced", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv := testReporterService(t, nil)
			trans := serv.transmitter.(*fakeTransmitter)
			serv.geobus.Publish(testFix(40.7185, -74.0025))
			serv.reporter.Start(t.Context())
			synctest.Wait()

			lastResume := time.Now().Unix()
			serv.handleResumeEvent(t.Context(), &lastResume)
			synctest.Wait()
			if got := len(trans.positions()); got != 1 {
				t.Errorf("expected no additional transmission, got %d", got)
			}
			serv.reporter.Stop()
		})
	})
	t.Run("paused reporter stays paused", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv := testReporterService(t, nil)
			var lastResume int64
			serv.handleResumeEvent(t.Context(), &lastResume)
			if serv.reporter.Running() {
				t.Error("expected reporter to stay paused")
			}
		})
	})
}

func TestIsResumeSignal(t *testing.T) {
	tests := []struct {
		name string
		sgn  *dbus.Signal
		want bool
	}{
		{"nil signal", nil, false},
		{"resume", &dbus.Signal{Body: []interface{}{false}}, true},
		{"going to sleep", &dbus.Signal{Body: []interface{}{true}}, false},
		{"empty body", &dbus.Signal{}, false},
		{"wrong type", &dbus.Signal{Body: []interface{}{"false"}}, false},
		{"too many values", &dbus.Signal{Body: []interface{}{false, true}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isResumeSignal(tc.sgn); got != tc.want {
				t.Errorf("expected %t, got %t", tc.want, got)
			}
		})
	}
}

func testService(t *testing.T, nilLogger bool) (*Service, error) {
	conf, err := config.New()
	if err != nil {
		return nil, err
	}
	conf.Locale = "en"

	var log *logger.Logger
	if !nilLogger {
		log = testLogger(io.Discard)
	}

	lang, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, err
	}
	serv, err := New(conf, log, lang)
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { _ = serv.scheduler.Shutdown() })
	return serv, nil
}

// testRunService returns a service that reads its position from a temporary geolocation file
// and uses fakes for transmission and notifications.
func testRunService(t *testing.T) (*Service, *fakeTransmitter, *fakeNotifier) {
	t.Helper()
	serv, err := testService(t, false)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	path := filepath.Join(t.TempDir(), "geolocation")
	if err = os.WriteFile(path, []byte("# test location\n40.7185,-74.0025\n"), 0o600); err != nil {
		t.Fatalf("failed to write geolocation file: %s", err)
	}
	serv.config.GeoLocation.File = path
	serv.config.GeoLocation.DisableGPSD = true
	serv.config.GeoLocation.DisableGeoIP = true
	serv.config.GeoLocation.DisableICHNAEA = true
	serv.config.Intervals.Report = time.Millisecond * 10

	trans := new(fakeTransmitter)
	notif := new(fakeNotifier)
	serv.newTransmitter = func(context.Context) (transmit.Transmitter, error) { return trans, nil }
	serv.newNotifier = func(context.Context) (notifier, error) { return notif, nil }
	serv.watchSleep = func(context.Context) {}
	serv.SignalSrc = fakeSignalSource{}
	return serv, trans, notif
}

// testReporterService returns a service with a reporter that uses a fake transmitter.
func testReporterService(t *testing.T, buf *syncBuffer) *Service {
	t.Helper()
	serv, err := testService(t, false)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	if buf != nil {
		serv.logger = testLogger(buf)
	}
	serv.transmitter = new(fakeTransmitter)
	serv.reporter, err = reporter.New(time.Hour, busLocator{bus: serv.geobus, key: LocationKey},
		serv.transmitter, nil, serv.logger)
	if err != nil {
		t.Fatalf("failed to create reporter: %s", err)
	}
	return serv
}

func testFix(lat, lon float64) geobus.Result {
	return geobus.Result{
		Key:            LocationKey,
		Lat:            lat,
		Lon:            lon,
		AccuracyMeters: geobus.AccuracyZip,
		Source:         "test",
		At:             time.Now(),
		TTL:            time.Hour,
	}
}

func testLogger(w io.Writer) *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, w)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond * 10)
	}
}

type (
	mockGeocoder struct{ shouldFail bool }
	syncBuffer   struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
	fakeSignalSource struct{}
	fakeTransmitter  struct {
		mu     sync.Mutex
		sent   []position.Position
		closed atomic.Bool
	}
	fakeNotifier struct {
		mu     sync.Mutex
		msgs   []notify.Message
		err    error
		closed atomic.Bool
	}
)

func (m *mockGeocoder) Name() string {
	return "mock geocoder"
}

func (m *mockGeocoder) Reverse(_ context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	if m.shouldFail {
		return geocode.Address{}, errors.New("intentionally failing")
	}
	return geocode.Address{
		AddressFound: true,
		Latitude:     coords.Lat,
		Longitude:    coords.Lon,
		DisplayName:  fmt.Sprintf("Test Location %.6f,%.6f", coords.Lat, coords.Lon),
	}, nil
}

func (fakeSignalSource) Notify(chan<- os.Signal, ...os.Signal) {}

func (fakeSignalSource) Stop(chan<- os.Signal) {}

func (f *fakeTransmitter) Name() string { return "fake" }

func (f *fakeTransmitter) Transmit(_ context.Context, pos position.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pos)
	return nil
}

func (f *fakeTransmitter) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeTransmitter) positions() []position.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]position.Position(nil), f.sent...)
}

func (f *fakeNotifier) Notify(_ context.Context, msg notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeNotifier) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeNotifier) messages() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.msgs...)
}

func (f *fakeNotifier) count() int {
	return len(f.messages())
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
