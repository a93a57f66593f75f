package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	ssePingInterval = 30 * time.Second
	sseRetryMillis  = 3000
)

// handleEvents streams the caller's progress events over SSE. EventSource
// cannot set headers, so the identity token comes as a query parameter.
func handleEvents(logger *slog.Logger, verifier TokenVerifier, store Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "token query parameter required")
			return
		}
		sess, err := authenticate(r.Context(), verifier, store, token)
		if errors.Is(err, errNoSession) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err != nil {
			logger.Error("authenticating event stream", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		fmt.Fprintf(w, "retry: %d\n\n", sseRetryMillis)
		flusher.Flush()

		ch := broker.Subscribe(sess.UserID)
		defer broker.Unsubscribe(sess.UserID, ch)
		logger.Debug("event stream opened", "user_id", sess.UserID)

		ping := time.NewTicker(ssePingInterval)
		defer ping.Stop()

		var seq int
		for {
			select {
			case <-r.Context().Done():
				logger.Debug("event stream closed", "user_id", sess.UserID)
				return
			case data := <-ch:
				seq++
				fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", seq, data)
			case <-ping.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			flusher.Flush()
		}
	}
}
