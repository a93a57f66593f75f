package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citycrawl/crawl/internal/crawl"
	"github.com/citycrawl/crawl/internal/progress"
)

type StartRequest struct {
	CrawlID string `json:"crawlId" validate:"required"`
	// Confirm abandons a different active crawl instead of failing.
	Confirm bool `json:"confirm"`
}

type CompleteStopRequest struct {
	Answer string `json:"answer" validate:"max=500"`
}

type ExitRequest struct {
	// Persist defaults to true when omitted.
	Persist *bool `json:"persist"`
}

// writeProgressError maps tracker and domain errors to responses.
func writeProgressError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		conflict *progress.ConflictError
		locked   *crawl.LockedError
	)
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:           err.Error(),
			ActiveCrawlID:   conflict.ActiveCrawlID,
			ActiveCrawlName: conflict.ActiveCrawlName,
		})
	case errors.As(err, &locked):
		writeJSON(w, http.StatusConflict, LockedResponse{Error: "stop is locked", UnlockAt: locked.Until})
	case errors.Is(err, crawl.ErrWrongAnswer):
		writeError(w, http.StatusUnprocessableEntity, "wrong answer")
	case errors.Is(err, crawl.ErrNotCurrentStop),
		errors.Is(err, crawl.ErrStopPending),
		errors.Is(err, crawl.ErrAlreadyCompleted),
		errors.Is(err, crawl.ErrNoStops):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, progress.ErrNoActiveCrawl):
		writeError(w, http.StatusNotFound, "no active crawl")
	case errors.Is(err, crawl.ErrNotFound):
		writeError(w, http.StatusNotFound, "crawl not found")
	default:
		logger.Error("progress operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func publishSnapshot(broker *Broker, userID, kind string, stopNumber int, snap progress.Snapshot) {
	broker.Publish(userID, ProgressEvent{
		Type:        kind,
		CrawlID:     snap.Progress.CrawlID,
		StopNumber:  stopNumber,
		CurrentStop: snap.Progress.CurrentStop,
		Completed:   snap.Progress.Completed,
	})
}

func handleGetProgress(logger *slog.Logger, tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := tracker.Resume(r.Context(), userFrom(r).UserID)
		if errors.Is(err, progress.ErrNoActiveCrawl) {
			writeJSON(w, http.StatusOK, ProgressResponse{Phase: string(crawl.PhaseNotStarted), Synced: true})
			return
		}
		if err != nil {
			writeProgressError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, progressResponse(snap, time.Now()))
	}
}

func handleStartCrawl(logger *slog.Logger, tracker *progress.Tracker, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		if err := decodeRequest(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		user := userFrom(r)
		snap, err := tracker.Start(r.Context(), user.UserID, req.CrawlID, req.Confirm)
		if err != nil {
			writeProgressError(w, logger, err)
			return
		}
		publishSnapshot(broker, user.UserID, eventStarted, 0, snap)
		writeJSON(w, http.StatusOK, progressResponse(snap, time.Now()))
	}
}

func handleCompleteStop(logger *slog.Logger, tracker *progress.Tracker, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopNumber, err := strconv.Atoi(chi.URLParam(r, "stopNumber"))
		if err != nil || stopNumber < 1 {
			writeError(w, http.StatusBadRequest, "invalid stop number")
			return
		}
		var req CompleteStopRequest
		if err := decodeRequest(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		user := userFrom(r)
		snap, err := tracker.CompleteStop(r.Context(), user.UserID, stopNumber, req.Answer)
		if err != nil {
			writeProgressError(w, logger, err)
			return
		}
		publishSnapshot(broker, user.UserID, eventStopCompleted, stopNumber, snap)
		writeJSON(w, http.StatusOK, progressResponse(snap, time.Now()))
	}
}

func handleAdvance(logger *slog.Logger, tracker *progress.Tracker, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		snap, err := tracker.Advance(r.Context(), user.UserID)
		if err != nil {
			writeProgressError(w, logger, err)
			return
		}
		kind := eventAdvanced
		if snap.Progress.Completed {
			kind = eventCompleted
		}
		publishSnapshot(broker, user.UserID, kind, 0, snap)
		writeJSON(w, http.StatusOK, progressResponse(snap, time.Now()))
	}
}

func handleExit(logger *slog.Logger, tracker *progress.Tracker, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExitRequest
		if err := decodeRequest(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		persist := req.Persist == nil || *req.Persist

		user := userFrom(r)
		if err := tracker.Exit(r.Context(), user.UserID, persist); err != nil {
			writeProgressError(w, logger, err)
			return
		}
		broker.Publish(user.UserID, ProgressEvent{Type: eventExited})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleEndCrawl(logger *slog.Logger, tracker *progress.Tracker, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		if err := tracker.End(r.Context(), user.UserID); err != nil {
			writeProgressError(w, logger, err)
			return
		}
		broker.Publish(user.UserID, ProgressEvent{Type: eventEnded})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
