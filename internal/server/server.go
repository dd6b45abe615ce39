// Package server runs the HTTP listener with graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/common/logging"
)

// Server represents an HTTP server
type Server struct {
	srv     *http.Server
	tlsCert string
	tlsKey  string
	addr    net.Addr
	done    chan error
	logger  logging.Logger
}

// New creates a new server instance. TLS is used when both tlsCert and
// tlsKey are set.
func New(handler http.Handler, port, tlsCert, tlsKey string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		tlsCert: tlsCert,
		tlsKey:  tlsKey,
		done:    make(chan error, 1),
		logger:  logging.Component("server"),
	}
}

// Start binds the listen address and serves in the background. Bind errors
// are returned; later serve errors are reported by Wait.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.ConfigError("failed to listen on " + s.srv.Addr + ": " + err.Error())
	}
	s.addr = ln.Addr()

	tlsEnabled := s.tlsCert != "" && s.tlsKey != ""
	if tlsEnabled {
		s.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	go func() {
		var err error
		if tlsEnabled {
			err = s.srv.ServeTLS(ln, s.tlsCert, s.tlsKey)
		} else {
			err = s.srv.Serve(ln)
		}
		if err == http.ErrServerClosed {
			err = nil
		}
		if err != nil {
			s.logger.Error("HTTP server stopped", err)
		}
		s.done <- err
	}()

	s.logger.Info("HTTP server listening",
		logging.String("addr", s.addr.String()),
		logging.Bool("tls", tlsEnabled),
	)
	return nil
}

// Addr is the bound address, available after Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Wait blocks until the server stops serving and returns its error, if any.
func (s *Server) Wait() <-chan error {
	return s.done
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
