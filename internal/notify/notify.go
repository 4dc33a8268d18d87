// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package notify raises desktop notifications through the freedesktop notification service on
// the D-Bus session bus.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	dbusDestination = "org.freedesktop.Notifications"
	dbusPath        = "/org/freedesktop/Notifications"
	dbusInterface   = "org.freedesktop.Notifications"

	AppName      = "locreport"
	AppIcon      = "mark-location"
	DesktopEntry = "locreport"
	Category     = "device"
)

// Urgency levels as defined by the desktop notifications specification.
const (
	UrgencyLow byte = iota
	UrgencyNormal
	UrgencyCritical
)

// ErrUnavailable is returned when no notification server can be reached.
var ErrUnavailable = errors.New("notification service unavailable")

// Message is a single notification.
type Message struct {
	Summary  string
	Body     string
	Critical bool
}

// ServerInfo describes the running notification server.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBus sends notifications to the session bus. Every notification replaces the previous one, so
// there is at most one locreport notification on screen.
type DBus struct {
	obj    busObject
	conn   io.Closer
	expire time.Duration
	info   ServerInfo

	mu     sync.Mutex
	lastID uint32
}

// New connects to the session bus and verifies that a notification server is running.
func New(ctx context.Context, expire time.Duration) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to session bus: %w", ErrUnavailable, err)
	}
	notifier, err := newDBus(ctx, conn.Object(dbusDestination, dbusPath), conn, expire)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return notifier, nil
}

func newDBus(ctx context.Context, obj busObject, conn io.Closer, expire time.Duration) (*DBus, error) {
	notifier := &DBus{obj: obj, conn: conn, expire: expire}
	info, err := notifier.serverInformation(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	notifier.info = info
	return notifier, nil
}

// Server returns the information the notification server reported on connect.
func (d *DBus) Server() ServerInfo {
	return d.info
}

// Notify shows msg, replacing the notification that was sent before.
func (d *DBus) Notify(ctx context.Context, msg Message) error {
	urgency := UrgencyNormal
	if msg.Critical {
		urgency = UrgencyCritical
	}
	hints := map[string]dbus.Variant{
		"category":      dbus.MakeVariant(Category),
		"desktop-entry": dbus.MakeVariant(DesktopEntry),
		"urgency":       dbus.MakeVariant(urgency),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	call := d.obj.CallWithContext(ctx, dbusInterface+".Notify", 0, AppName, d.lastID, AppIcon,
		msg.Summary, msg.Body, []string{}, hints, expireTimeout(d.expire))
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	d.lastID = id
	return nil
}

// Close releases the session bus connection.
func (d *DBus) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func (d *DBus) serverInformation(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	call := d.obj.CallWithContext(ctx, dbusInterface+".GetServerInformation", 0)
	if err := call.Store(&info.Name, &info.Vendor, &info.Version, &info.SpecVersion); err != nil {
		return info, fmt.Errorf("failed to query notification server: %w", err)
	}
	return info, nil
}

// expireTimeout converts d to the millisecond timeout of the Notify call. Zero and negative
// durations let the server decide.
func expireTimeout(d time.Duration) int32 {
	if d <= 0 {
		return -1
	}
	return int32(min(d.Milliseconds(), int64(^uint32(0)>>1))) //nolint:gosec
}
