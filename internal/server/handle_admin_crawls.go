package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citycrawl/crawl/internal/content"
	"github.com/citycrawl/crawl/internal/crawl"
)

// Invalidator drops cached content after an admin write.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
}

func invalidate(ctx context.Context, inv Invalidator, ids ...string) {
	if inv != nil {
		// Failures are logged by the cache; entries expire on their own.
		_ = inv.Invalidate(ctx, ids...)
	}
}

// AdminCrawlSummary is a row in the admin crawl list.
type AdminCrawlSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
	StopCount  int    `json:"stopCount"`
}

func handleAdminListCrawls(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs, err := store.Crawls(r.Context())
		if err != nil {
			logger.Error("listing crawls", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]AdminCrawlSummary, 0, len(defs))
		for _, d := range defs {
			out = append(out, AdminCrawlSummary{
				ID:         d.ID,
				Name:       d.Name,
				Visibility: string(d.Visibility),
				StopCount:  d.TotalStops(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleAdminGetCrawl(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := store.Crawl(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		if err != nil {
			logger.Error("loading crawl", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, content.Doc(def))
	}
}

func handleAdminCreateCrawl(logger *slog.Logger, store Store, inv Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc content.CrawlDoc
		if err := readJSON(r, &doc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		def, err := content.Build(doc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		_, err = store.Crawl(r.Context(), def.ID)
		if err == nil {
			writeError(w, http.StatusConflict, "a crawl with this id already exists")
			return
		}
		if !errors.Is(err, crawl.ErrNotFound) {
			logger.Error("checking crawl id", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if err := store.SaveCrawl(r.Context(), def); err != nil {
			logger.Error("creating crawl", "crawl_id", def.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		invalidate(r.Context(), inv, def.ID)
		logger.Info("crawl created", "crawl_id", def.ID, "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusCreated, content.Doc(def))
	}
}

func handleAdminUpdateCrawl(logger *slog.Logger, store Store, inv Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var doc content.CrawlDoc
		if err := readJSON(r, &doc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		doc.ID = id
		def, err := content.Build(doc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if _, err := store.Crawl(r.Context(), id); errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl not found")
			return
		} else if err != nil {
			logger.Error("loading crawl", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if err := store.SaveCrawl(r.Context(), def); err != nil {
			logger.Error("updating crawl", "crawl_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		invalidate(r.Context(), inv, id)
		logger.Info("crawl updated", "crawl_id", id, "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusOK, content.Doc(def))
	}
}

func handleAdminDeleteCrawl(logger *slog.Logger, store Store, inv Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := store.DeleteCrawl(r.Context(), id)
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		if err != nil {
			logger.Error("deleting crawl", "crawl_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		invalidate(r.Context(), inv, id)
		logger.Info("crawl deleted", "crawl_id", id, "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
