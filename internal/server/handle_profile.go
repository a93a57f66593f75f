package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/citycrawl/crawl/internal/crawl"
)

type UpdateProfileRequest struct {
	DisplayName string `json:"displayName" validate:"required,max=64"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url"`
}

func handleGetProfile(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := store.Profile(r.Context(), userFrom(r).UserID)
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		if err != nil {
			logger.Error("loading profile", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func handleUpdateProfile(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateProfileRequest
		if err := decodeRequest(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		profile, err := store.UpdateProfile(r.Context(), userFrom(r).UserID,
			strings.TrimSpace(req.DisplayName), strings.TrimSpace(req.AvatarURL))
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		if err != nil {
			logger.Error("updating profile", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}
