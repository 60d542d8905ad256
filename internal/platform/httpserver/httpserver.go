// Package httpserver builds the process http.Server.
package httpserver

import (
	"net/http"
	"time"

	"cradle/internal/platform/config"
)

// New builds the server around the given handler. Read and write timeouts
// come from config; the header timeout is fixed because no legitimate client
// needs longer, and idle keep-alive connections are bounded so load balancer
// churn cannot pin file descriptors.
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
