package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citycrawl/crawl/internal/crawl"
)

func signedUpSet(r *http.Request, store Store) (map[string]bool, error) {
	signups, err := store.Signups(r.Context(), userFrom(r).UserID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(signups))
	for _, s := range signups {
		set[s.CrawlID] = true
	}
	return set, nil
}

func handleListCrawls(logger *slog.Logger, catalog crawl.Catalog, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visibility := crawl.Visibility(r.URL.Query().Get("visibility"))
		switch visibility {
		case "", crawl.VisibilityPublic, crawl.VisibilityLibrary:
		default:
			writeError(w, http.StatusBadRequest, "visibility must be public or library")
			return
		}

		defs, err := catalog.Crawls(r.Context())
		if err != nil {
			logger.Error("listing crawls", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		signedUp, err := signedUpSet(r, store)
		if err != nil {
			logger.Error("listing signups", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		out := []CrawlSummary{}
		for _, def := range defs {
			if visibility != "" && def.Visibility != visibility {
				continue
			}
			out = append(out, crawlSummary(def, signedUp[def.ID]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetCrawl(logger *slog.Logger, catalog crawl.Catalog, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := catalog.Crawl(r.Context(), chi.URLParam(r, "crawlID"))
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		if err != nil {
			logger.Error("loading crawl", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		signedUp, err := signedUpSet(r, store)
		if err != nil {
			logger.Error("listing signups", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, crawlDetail(def, signedUp[def.ID]))
	}
}
