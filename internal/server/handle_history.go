package server

import (
	"log/slog"
	"net/http"
)

func handleHistory(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := store.History(r.Context(), userFrom(r).UserID)
		if err != nil {
			logger.Error("listing history", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleStats(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats(r.Context(), userFrom(r).UserID)
		if err != nil {
			logger.Error("aggregating stats", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
