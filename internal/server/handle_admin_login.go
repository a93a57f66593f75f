package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/citycrawl/crawl/internal/crawl"
)

// AdminLoginRequest is the request body for POST /api/admin/login.
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminMeResponse is the response for GET /api/admin/me.
type AdminMeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func handleAdminLogin(logger *slog.Logger, admin AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminLoginRequest
		if err := decodeRequest(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		email := strings.TrimSpace(strings.ToLower(req.Email))

		adminID, passwordHash, err := admin.AdminByEmail(r.Context(), email)
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			logger.Error("looking up admin", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		sessionID, err := admin.CreateAdminSession(r.Context(), adminID)
		if err != nil {
			logger.Error("creating admin session", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		http.SetCookie(w, adminCookie(sessionID, int(adminSessionTTL/time.Second)))
		logger.Info("admin signed in", "admin_id", adminID)
		writeJSON(w, http.StatusOK, AdminMeResponse{ID: adminID, Email: email})
	}
}

func handleAdminMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := adminFrom(r)
		writeJSON(w, http.StatusOK, AdminMeResponse{ID: sess.AdminID, Email: sess.Email})
	}
}

// handleAdminLogout always clears the cookie. A failed session delete is
// logged; the session still expires server side.
func handleAdminLogout(logger *slog.Logger, admin AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(adminCookieName); err == nil && cookie.Value != "" {
			if err := admin.DeleteAdminSession(r.Context(), cookie.Value); err != nil {
				logger.Error("deleting admin session", "error", err)
			}
		}

		http.SetCookie(w, adminCookie("", -1))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
