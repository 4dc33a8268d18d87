// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wneessen/locreport/internal/position"
	"github.com/wneessen/locreport/internal/transmit"
)

const (
	name         = "amqp"
	appID        = "locreport"
	exchangeKind = "topic"
)

// Config holds the broker settings for the Transmitter.
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	DeviceID   string
	Timeout    time.Duration
}

// channel is the subset of *amqp.Channel used for sending.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Transmitter publishes positions to a RabbitMQ exchange. A connection that was closed by the
// broker is dropped and dialed again on the next Transmit.
type Transmitter struct {
	mu       sync.Mutex
	conn     io.Closer
	ch       channel
	dial     func() (io.Closer, channel, error)
	exchange string
	key      string
	deviceID string
	timeout  time.Duration
	now      func() time.Time
}

// New dials the broker, declares the exchange and returns a Transmitter.
func New(conf Config) (*Transmitter, error) {
	if conf.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	if conf.Exchange == "" {
		return nil, errors.New("amqp exchange is required")
	}

	conn, ch, err := dial(conf)
	if err != nil {
		return nil, err
	}
	t := newTransmitter(conn, ch, conf)
	t.dial = func() (io.Closer, channel, error) { return dial(conf) }
	return t, nil
}

// dial opens a connection and a channel and declares the exchange on it.
func dial(conf Config) (io.Closer, channel, error) {
	conn, err := amqp.DialConfig(conf.URL, amqp.Config{
		Dial:       amqp.DefaultDial(conf.Timeout),
		Properties: amqp.Table{"connection_name": appID + "-" + conf.DeviceID},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err = ch.ExchangeDeclare(conf.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

func newTransmitter(conn io.Closer, ch channel, conf Config) *Transmitter {
	return &Transmitter{
		conn:     conn,
		ch:       ch,
		exchange: conf.Exchange,
		key:      conf.RoutingKey,
		deviceID: conf.DeviceID,
		timeout:  conf.Timeout,
		now:      time.Now,
	}
}

func (t *Transmitter) Name() string {
	return name
}

// Transmit publishes the position JSON as a persistent message.
func (t *Transmitter) Transmit(ctx context.Context, pos position.Position) error {
	payload, err := pos.Payload()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err = t.connectLocked(); err != nil {
		return fmt.Errorf("failed to publish position: %w", errors.Join(transmit.ErrNotConnected, err))
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        appID,
		Timestamp:    t.now(),
		Headers:      amqp.Table{"device_id": t.deviceID},
		Body:         payload,
	}
	if err = t.ch.PublishWithContext(ctx, t.exchange, t.key, false, false, msg); err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			t.resetLocked()
			return fmt.Errorf("failed to publish position: %w", errors.Join(transmit.ErrNotConnected, err))
		}
		return fmt.Errorf("failed to publish position: %w", err)
	}
	return nil
}

// connectLocked dials the broker again if the previous connection was dropped.
func (t *Transmitter) connectLocked() error {
	if t.ch != nil {
		return nil
	}
	if t.dial == nil {
		return amqp.ErrClosed
	}
	conn, ch, err := t.dial()
	if err != nil {
		return err
	}
	t.conn, t.ch = conn, ch
	return nil
}

func (t *Transmitter) resetLocked() {
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.conn, t.ch = nil, nil
}

// Close closes the channel and the connection.
func (t *Transmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		return nil
	}
	err := errors.Join(t.ch.Close(), t.conn.Close())
	t.conn, t.ch = nil, nil
	return err
}
