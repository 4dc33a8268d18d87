// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/wneessen/locreport/internal/logger"
	"github.com/wneessen/locreport/internal/position"
	"github.com/wneessen/locreport/internal/transmit"
)

const (
	name              = "mqtt"
	devicePlaceholder = "{device}"
	disconnectQuiesce = 250
)

// Config holds the broker settings for the Transmitter.
type Config struct {
	Broker   string
	Topic    string
	QoS      byte
	DeviceID string
	Timeout  time.Duration
}

// publisher is the subset of the paho client used for sending.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Transmitter publishes positions to an MQTT topic.
type Transmitter struct {
	client  publisher
	topic   string
	qos     byte
	timeout time.Duration
}

// New connects to the broker and returns a Transmitter. The client reconnects on its own
// after the connection was lost.
func New(conf Config, log *logger.Logger) (*Transmitter, error) {
	if conf.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if conf.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}

	opts := paho.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID("locreport-" + conf.DeviceID).
		SetAutoReconnect(true).
		SetConnectTimeout(conf.Timeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", slog.String("broker", conf.Broker), logger.Err(err))
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(conf.Timeout) {
		return nil, fmt.Errorf("mqtt connect: timed out after %s", conf.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return newTransmitter(client, conf), nil
}

func newTransmitter(client publisher, conf Config) *Transmitter {
	return &Transmitter{
		client:  client,
		topic:   Topic(conf.Topic, conf.DeviceID),
		qos:     conf.QoS,
		timeout: conf.Timeout,
	}
}

// Topic replaces the device placeholder in topic.
func Topic(topic, deviceID string) string {
	return strings.ReplaceAll(topic, devicePlaceholder, deviceID)
}

func (t *Transmitter) Name() string {
	return name
}

// Transmit publishes the position JSON and waits until the broker acknowledged it according to
// the configured QoS.
func (t *Transmitter) Transmit(ctx context.Context, pos position.Position) error {
	if !t.client.IsConnectionOpen() {
		return transmit.ErrNotConnected
	}
	payload, err := pos.Payload()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	token := t.client.Publish(t.topic, t.qos, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err = token.Error(); err != nil {
		return fmt.Errorf("failed to publish position to %s: %w", t.topic, err)
	}
	return nil
}

func (t *Transmitter) Close() error {
	t.client.Disconnect(disconnectQuiesce)
	return nil
}
