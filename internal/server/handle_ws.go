package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/citycrawl/crawl/internal/crawl"
	"github.com/citycrawl/crawl/internal/progress"
)

// progressMessage is one WebSocket frame. The first frame after connecting
// is a snapshot of the active crawl; later frames carry broker events.
type progressMessage struct {
	Type     string            `json:"type"`
	Progress *ProgressResponse `json:"progress,omitempty"`
	Event    json.RawMessage   `json:"event,omitempty"`
}

func handleProgressSocket(logger *slog.Logger, verifier TokenVerifier, store Store, tracker *progress.Tracker, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := authenticate(r.Context(), verifier, store, r.URL.Query().Get("token"))
		if errors.Is(err, errNoSession) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err != nil {
			logger.Error("authenticating progress socket", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ch := broker.Subscribe(sess.UserID)
		defer broker.Unsubscribe(sess.UserID, ch)

		// Clients only listen; CloseRead handles control frames and cancels
		// ctx once the peer goes away.
		ctx := conn.CloseRead(r.Context())

		first := progressMessage{Type: "snapshot"}
		snap, err := tracker.Resume(ctx, sess.UserID)
		switch {
		case err == nil:
			resp := progressResponse(snap, time.Now())
			first.Progress = &resp
		case errors.Is(err, progress.ErrNoActiveCrawl):
			first.Progress = &ProgressResponse{Phase: string(crawl.PhaseNotStarted), Synced: true}
		default:
			logger.Error("loading progress for socket", "user_id", sess.UserID, "error", err)
		}
		if err := writeMessage(ctx, conn, first); err != nil {
			logger.Debug("websocket write failed", "error", err)
			return
		}

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case data := <-ch:
				if err := writeMessage(ctx, conn, progressMessage{Type: "event", Event: data}); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg progressMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
