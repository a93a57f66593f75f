package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citycrawl/crawl/internal/crawl"
)

func handleSignUp(logger *slog.Logger, catalog crawl.Catalog, store Store) http.HandlerFunc {
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
		if !def.IsPublic() {
			writeError(w, http.StatusBadRequest, "only public crawls take signups")
			return
		}

		signup, err := store.SignUp(r.Context(), userFrom(r).UserID, def.ID)
		if err != nil {
			logger.Error("signing up", "crawl_id", def.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, signup)
	}
}

func handleCancelSignup(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.CancelSignup(r.Context(), userFrom(r).UserID, chi.URLParam(r, "crawlID"))
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not signed up")
			return
		}
		if err != nil {
			logger.Error("cancelling signup", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleListSignups(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signups, err := store.Signups(r.Context(), userFrom(r).UserID)
		if err != nil {
			logger.Error("listing signups", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, signups)
	}
}
