// Package httpserver constructs the operator-facing HTTP listener.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the service's HTTP server. Only connection-level timeouts live
// here; per-request deadlines are applied by the router's timeout middleware.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
