package httpserver

import (
	"net/http"

	"downloadgate/internal/platform/config"
)

// New builds an HTTP server with sane defaults for this project.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		// Downloads are served by the blob store; every response here is small JSON.
		WriteTimeout: cfg.RequestTimeout + cfg.ReadHeaderTimeout,
		IdleTimeout:  2 * cfg.RequestTimeout,
	}
}
