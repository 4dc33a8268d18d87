// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package httppost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/locreport/internal/http"
	"github.com/wneessen/locreport/internal/position"
)

const (
	name        = "http"
	contentType = "application/json; charset=utf-8"
)

// Transmitter POSTs the position JSON to a fixed endpoint. The response body is ignored, only
// the status code is checked.
type Transmitter struct {
	http     *http.Client
	endpoint string
	deviceID string
	timeout  time.Duration
}

// New returns an HTTP POST Transmitter.
func New(client *http.Client, endpoint, deviceID string, timeout time.Duration) (*Transmitter, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if timeout <= 0 {
		timeout = http.DefaultTimeout
	}
	return &Transmitter{
		http:     client,
		endpoint: endpoint,
		deviceID: deviceID,
		timeout:  timeout,
	}, nil
}

func (t *Transmitter) Name() string {
	return name
}

// Transmit sends pos to the endpoint.
func (t *Transmitter) Transmit(ctx context.Context, pos position.Position) error {
	payload, err := pos.Payload()
	if err != nil {
		return err
	}

	headers := map[string]string{"Content-Type": contentType}
	if t.deviceID != "" {
		headers["X-Device-ID"] = t.deviceID
	}
	if _, err = t.http.PostWithTimeout(ctx, t.endpoint, nil, bytes.NewReader(payload), headers, t.timeout); err != nil {
		return fmt.Errorf("failed to send position to %s: %w", t.endpoint, err)
	}
	return nil
}

// Close is a no-op, the HTTP client is shared.
func (t *Transmitter) Close() error {
	return nil
}
