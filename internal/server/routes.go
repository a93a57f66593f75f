package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/citycrawl/crawl/internal/crawl"
	"github.com/citycrawl/crawl/internal/handler/health"
	"github.com/citycrawl/crawl/internal/progress"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Logger   *slog.Logger
	Store    Store
	Catalog  crawl.Catalog
	Tracker  *progress.Tracker
	Verifier TokenVerifier
	Broker   *Broker
	// Invalidator is optional; leave nil when the catalog is not cached.
	Invalidator Invalidator
	Checks      map[string]health.Checker
	SPADir      string
}

func addRoutes(r chi.Router, d Deps) {
	logger := d.Logger

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("City Crawl API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, d.Checks).Routes())

	// Streams authenticate with a token query parameter.
	r.Get("/api/events", handleEvents(logger, d.Verifier, d.Store, d.Broker))
	r.Get("/ws/progress", handleProgressSocket(logger, d.Verifier, d.Store, d.Tracker, d.Broker))

	r.Group(func(r chi.Router) {
		r.Use(userAuthMiddleware(d.Verifier, d.Store, logger))

		r.Get("/api/crawls", handleListCrawls(logger, d.Catalog, d.Store))
		r.Get("/api/crawls/{crawlID}", handleGetCrawl(logger, d.Catalog, d.Store))
		r.Post("/api/crawls/{crawlID}/signup", handleSignUp(logger, d.Catalog, d.Store))
		r.Delete("/api/crawls/{crawlID}/signup", handleCancelSignup(logger, d.Store))

		r.Get("/api/me", handleGetProfile(logger, d.Store))
		r.Put("/api/me", handleUpdateProfile(logger, d.Store))
		r.Get("/api/me/signups", handleListSignups(logger, d.Store))

		r.Route("/api/progress", func(r chi.Router) {
			r.Get("/", handleGetProgress(logger, d.Tracker))
			r.Post("/start", handleStartCrawl(logger, d.Tracker, d.Broker))
			r.Post("/stops/{stopNumber}/complete", handleCompleteStop(logger, d.Tracker, d.Broker))
			r.Post("/advance", handleAdvance(logger, d.Tracker, d.Broker))
			r.Post("/exit", handleExit(logger, d.Tracker, d.Broker))
			r.Post("/end", handleEndCrawl(logger, d.Tracker, d.Broker))
		})

		r.Get("/api/history", handleHistory(logger, d.Store))
		r.Get("/api/stats", handleStats(logger, d.Store))
	})

	// Admin auth.
	r.Post("/api/admin/login", handleAdminLogin(logger, d.Store))
	r.Post("/api/admin/logout", handleAdminLogout(d.Logger, d.Store))
	r.With(adminAuthMiddleware(d.Store)).Get("/api/admin/me", handleAdminMe())

	// Crawl authoring, stored in the database.
	r.Route("/api/admin/crawls", func(r chi.Router) {
		r.Use(adminAuthMiddleware(d.Store))
		r.Get("/", handleAdminListCrawls(logger, d.Store))
		r.Post("/", handleAdminCreateCrawl(logger, d.Store, d.Invalidator))
		r.Get("/{id}", handleAdminGetCrawl(logger, d.Store))
		r.Put("/{id}", handleAdminUpdateCrawl(logger, d.Store, d.Invalidator))
		r.Delete("/{id}", handleAdminDeleteCrawl(logger, d.Store, d.Invalidator))
	})

	if d.SPADir != "" {
		if info, err := os.Stat(d.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", d.SPADir)
			r.NotFound(handleSPA(d.SPADir))
		}
	}
}
