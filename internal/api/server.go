// Package api provides the HTTP REST API and WebSocket server for
// SensorFlow Core.
//
// It exposes the device registration contract, an HTTP ingestion path
// for readings, and the WebSocket feed that dashboards subscribe to.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sensorflow/sensorflow-core/internal/broker"
	"github.com/sensorflow/sensorflow-core/internal/codec"
	"github.com/sensorflow/sensorflow-core/internal/infrastructure/config"
	"github.com/sensorflow/sensorflow-core/internal/infrastructure/logging"
	"github.com/sensorflow/sensorflow-core/internal/registry"
	"github.com/sensorflow/sensorflow-core/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Hub      *relay.Hub
	Registry *registry.Registry
	Codec    *codec.Codec
	Topics   broker.Topics
	Version  string
}

// Server is the HTTP API server for SensorFlow Core.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	hub      *relay.Hub
	registry *registry.Registry
	codec    *codec.Codec
	topics   broker.Topics
	version  string
	server   *http.Server
}

// New creates an API server. It is not listening until Start.
//
// Returns:
//   - *Server: Configured server
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("relay hub is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if deps.Codec == nil {
		return nil, fmt.Errorf("codec is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		hub:      deps.Hub,
		registry: deps.Registry,
		codec:    deps.Codec,
		topics:   deps.Topics,
		version:  deps.Version,
	}, nil
}

// Start launches the HTTP listener in a background goroutine.
//
// Returns:
//   - error: Reserved for listener construction failures; runtime
//     errors are logged
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting for in-flight
// requests up to the shutdown timeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
