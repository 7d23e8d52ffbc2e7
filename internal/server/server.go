// Package server exposes the key pool, the rotation path and the per-user
// session path over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server wraps http.Server with keygate's timeouts.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer creates a Server. writeTimeout bounds one response, which
// includes waiting for a free key. With enableHTTP2, cleartext HTTP/2 (h2c)
// is accepted alongside HTTP/1.1.
func NewServer(addr string, handler http.Handler, writeTimeout time.Duration, enableHTTP2 bool) *Server {
	if enableHTTP2 {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe starts the server (blocks). A graceful shutdown returns nil.
func (s *Server) ListenAndServe() error {
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve accepts connections on l (blocks).
func (s *Server) Serve(l net.Listener) error {
	return ignoreClosed(s.httpServer.Serve(l))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
