// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.

The push endpoint (/ws) lives outside the request middleware chain: the
global timeout would sever long-lived connections, and the logging
middleware's status-recording writer does not support the connection
hijack the websocket upgrade needs.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/novira/internal/core/chapter"
	"github.com/taibuivan/novira/internal/core/document"
	"github.com/taibuivan/novira/internal/crawler/probe"
	"github.com/taibuivan/novira/internal/crawler/push"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
	"github.com/taibuivan/novira/internal/crawler/task"
	"github.com/taibuivan/novira/internal/platform/config"
	"github.com/taibuivan/novira/internal/platform/constants"
	"github.com/taibuivan/novira/internal/platform/middleware"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
//
// # Usage
//
// New domains add a field here — no other change to server.go is required.
type Handlers struct {
	// Liveness is the /health handler — always returns 200 if process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Configs manages the per-site crawl config registry.
	Configs *siteconfig.Handler

	// Probe runs one-off extraction checks for config authors.
	Probe *probe.Handler

	// Tasks supervises crawl tasks (create, start, stop, logs).
	Tasks *task.Handler

	// Documents serves the crawled library.
	Documents *document.Handler

	// Chapters serves chapter listings and content under a document.
	Chapters *chapter.Handler

	// Push streams task events to connected dashboards over /ws.
	Push *push.Hub
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups. The context bounds background middleware
// work (rate-limit bookkeeping) and should live until shutdown.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, h Handlers) *Server {
	r := chi.NewRouter()

	// # Request API
	// All request/response endpoints share the full middleware chain.
	r.Group(func(root chi.Router) {
		root.Use(middleware.RequestID())
		root.Use(middleware.StructuredLogger(log))
		root.Use(chimw.Timeout(constants.GlobalRequestTimeout))
		root.Use(middleware.RateLimit(context))
		root.Use(middleware.PanicRecovery(log))
		root.Use(middleware.CORS(cfg))
		root.Use(chimw.CleanPath)

		// Unauthenticated health probes for container orchestration.
		root.Get("/health", h.Liveness)
		root.Get("/ready", h.Readiness)

		// Domain route groups under the versioned prefix.
		root.Route("/api/v1", func(api chi.Router) {
			h.Configs.RegisterRoutes(api)
			h.Probe.RegisterRoutes(api)
			h.Tasks.RegisterRoutes(api)
			h.Documents.RegisterRoutes(api)
			h.Chapters.RegisterRoutes(api)
		})
	})

	// # Push API
	// Long-lived socket upgrades; recovery only, no timeout or writer wraps.
	r.Group(func(ws chi.Router) {
		ws.Use(middleware.RequestID())
		ws.Use(middleware.PanicRecovery(log))
		ws.Get("/ws", h.Push.HandleSocket)
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
