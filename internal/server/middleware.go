package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

type ctxKey int

const (
	ctxKeyUser ctxKey = iota
	ctxKeyAdmin
)

// userAuthMiddleware requires a bearer identity token. The user's profile is
// created on the first authenticated request.
func userAuthMiddleware(verifier TokenVerifier, store Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			sess, err := authenticate(r.Context(), verifier, store, token)
			if errors.Is(err, errNoSession) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if err != nil {
				logger.Error("loading user profile", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminAuthMiddleware(admin AdminStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := adminFromRequest(r, admin)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyAdmin, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userFrom(r *http.Request) userSession {
	return r.Context().Value(ctxKeyUser).(userSession)
}

func adminFrom(r *http.Request) adminSession {
	return r.Context().Value(ctxKeyAdmin).(adminSession)
}
