// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package status serves a small local HTTP API that exposes the reporter state and lets the
// reporter loop be started and stopped.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wneessen/locreport/internal/logger"
	"github.com/wneessen/locreport/internal/reporter"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Controller is the part of the reporter the status API operates on.
type Controller interface {
	Start(ctx context.Context) bool
	Stop()
	Snapshot() reporter.Snapshot
}

type Server struct {
	addr       string
	controller Controller
	logger     *logger.Logger
}

type statusResponse struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type runningResponse struct {
	Running bool `json:"running"`
}

func New(addr string, ctrl Controller, log *logger.Logger) *Server {
	return &Server{
		addr:       addr,
		controller: ctrl,
		logger:     log,
	}
}

// Handler returns the router of the status API. A reporter started through the API runs with ctx.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/position", s.positionHandler).Methods(http.MethodGet)
	r.HandleFunc("/reporter/start", func(w http.ResponseWriter, _ *http.Request) {
		if !s.controller.Start(ctx) {
			s.writeJSON(w, http.StatusInternalServerError, statusResponse{Error: "failed to start reporter"})
			return
		}
		s.writeJSON(w, http.StatusOK, runningResponse{Running: true})
	}).Methods(http.MethodPost)
	r.HandleFunc("/reporter/stop", func(w http.ResponseWriter, _ *http.Request) {
		s.controller.Stop()
		s.writeJSON(w, http.StatusOK, runningResponse{Running: false})
	}).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves the status API on the configured address until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves the status API on listener until ctx is cancelled and then shuts the server down
// gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.logger.Info("status endpoint listening", slog.String("addr", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status endpoint failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down status endpoint: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) positionHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode status response", logger.Err(err))
	}
}
