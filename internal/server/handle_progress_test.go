package server

import (
	"net/http"
	"testing"

	"github.com/citycrawl/crawl/internal/crawl"
)

func TestProgressRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/progress", "", nil)
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.do(t, http.MethodGet, "/api/progress", "not-a-jwt", nil)
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestProgressNotStarted(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/progress", env.token(t, "u1"), nil)
	expectStatus(t, w, http.StatusOK)

	resp := decode[ProgressResponse](t, w)
	if resp.Phase != string(crawl.PhaseNotStarted) {
		t.Errorf("expected phase not_started, got %q", resp.Phase)
	}
	if resp.Stop != nil {
		t.Error("expected no stop before starting")
	}
}

func TestCrawlTraversal(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1")

	w := env.do(t, http.MethodPost, "/api/progress/start", tok, StartRequest{CrawlID: "riverside"})
	expectStatus(t, w, http.StatusOK)
	resp := decode[ProgressResponse](t, w)
	if resp.CurrentStop != 1 || resp.TotalStops != 3 {
		t.Fatalf("expected stop 1 of 3, got %d of %d", resp.CurrentStop, resp.TotalStops)
	}
	if resp.Stop == nil || resp.Stop.Prompt == "" {
		t.Fatalf("expected riddle prompt, got %+v", resp.Stop)
	}
	if resp.Stop.RewardURL != "" {
		t.Error("reward must stay hidden until the stop is done")
	}

	// Wrong answer.
	w = env.do(t, http.MethodPost, "/api/progress/stops/1/complete", tok, CompleteStopRequest{Answer: "ferry"})
	expectStatus(t, w, http.StatusUnprocessableEntity)

	// Out of order.
	w = env.do(t, http.MethodPost, "/api/progress/stops/2/complete", tok, nil)
	expectStatus(t, w, http.StatusConflict)

	// Advancing before the stop is done.
	w = env.do(t, http.MethodPost, "/api/progress/advance", tok, nil)
	expectStatus(t, w, http.StatusConflict)

	w = env.do(t, http.MethodPost, "/api/progress/stops/1/complete", tok, CompleteStopRequest{Answer: "  Bridge "})
	expectStatus(t, w, http.StatusOK)
	resp = decode[ProgressResponse](t, w)
	if resp.Stop == nil || resp.Stop.RewardURL != "https://example.com/r1" {
		t.Errorf("expected reward after completion, got %+v", resp.Stop)
	}
	if len(resp.CompletedStops) != 1 {
		t.Errorf("expected 1 completed stop, got %d", len(resp.CompletedStops))
	}

	w = env.do(t, http.MethodPost, "/api/progress/advance", tok, nil)
	expectStatus(t, w, http.StatusOK)
	resp = decode[ProgressResponse](t, w)
	if resp.CurrentStop != 2 || resp.Stop.LocationName != "Boathouse" {
		t.Fatalf("expected boathouse at stop 2, got %+v", resp)
	}

	for _, path := range []string{
		"/api/progress/stops/2/complete",
		"/api/progress/advance",
		"/api/progress/stops/3/complete",
	} {
		w = env.do(t, http.MethodPost, path, tok, nil)
		expectStatus(t, w, http.StatusOK)
	}

	w = env.do(t, http.MethodPost, "/api/progress/advance", tok, nil)
	expectStatus(t, w, http.StatusOK)
	resp = decode[ProgressResponse](t, w)
	if !resp.Completed || resp.Phase != string(crawl.PhaseCompleted) {
		t.Fatalf("expected completed crawl, got phase %q", resp.Phase)
	}
	if resp.History == nil || !resp.History.Completed || resp.History.StopsCompleted != 3 {
		t.Fatalf("expected completed history entry, got %+v", resp.History)
	}

	w = env.do(t, http.MethodGet, "/api/progress", tok, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[ProgressResponse](t, w).Phase; got != string(crawl.PhaseNotStarted) {
		t.Errorf("expected not_started after completion, got %q", got)
	}

	w = env.do(t, http.MethodGet, "/api/history", tok, nil)
	expectStatus(t, w, http.StatusOK)
	history := decode[[]crawl.HistoryEntry](t, w)
	if len(history) != 1 || history[0].CrawlID != "riverside" {
		t.Fatalf("expected one riverside entry, got %+v", history)
	}

	w = env.do(t, http.MethodGet, "/api/stats", tok, nil)
	expectStatus(t, w, http.StatusOK)
	stats := decode[crawl.Stats](t, w)
	if stats.CrawlsCompleted != 1 || stats.LibraryCompleted != 1 || stats.PublicCompleted != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.LastCompletedAt == nil {
		t.Error("expected lastCompletedAt")
	}
}

func TestStartConflict(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1")

	w := env.do(t, http.MethodPost, "/api/progress/start", tok, StartRequest{CrawlID: "riverside"})
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodPost, "/api/progress/start", tok, StartRequest{CrawlID: "night-market"})
	expectStatus(t, w, http.StatusConflict)
	conflict := decode[ConflictResponse](t, w)
	if conflict.ActiveCrawlID != "riverside" || conflict.ActiveCrawlName != "Riverside Walk" {
		t.Errorf("unexpected conflict %+v", conflict)
	}

	w = env.do(t, http.MethodPost, "/api/progress/start", tok, StartRequest{CrawlID: "night-market", Confirm: true})
	expectStatus(t, w, http.StatusOK)
	resp := decode[ProgressResponse](t, w)
	if resp.CrawlID != "night-market" || !resp.IsPublic {
		t.Errorf("expected public night-market attempt, got %+v", resp)
	}

	w = env.do(t, http.MethodGet, "/api/stats", tok, nil)
	expectStatus(t, w, http.StatusOK)
	if stats := decode[crawl.Stats](t, w); stats.CrawlsAbandoned != 1 || stats.CrawlsCompleted != 0 {
		t.Errorf("expected one abandoned crawl, got %+v", stats)
	}
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1")

	w := env.do(t, http.MethodPost, "/api/progress/start", tok, StartRequest{})
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/api/progress/start", tok, StartRequest{CrawlID: "nope"})
	expectStatus(t, w, http.StatusNotFound)

	w = env.do(t, http.MethodPost, "/api/progress/stops/abc/complete", tok, nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestExitAndResume(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1")

	env.do(t, http.MethodPost, "/api/progress/start", tok, StartRequest{CrawlID: "riverside"})
	w := env.do(t, http.MethodPost, "/api/progress/stops/1/complete", tok, CompleteStopRequest{Answer: "bridge"})
	expectStatus(t, w, http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/api/progress/advance", tok, nil), http.StatusOK)

	w = env.do(t, http.MethodPost, "/api/progress/exit", tok, nil)
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, "/api/progress", tok, nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[ProgressResponse](t, w)
	if resp.CrawlID != "riverside" || resp.CurrentStop != 2 {
		t.Fatalf("expected resume at riverside stop 2, got %q stop %d", resp.CrawlID, resp.CurrentStop)
	}
	if len(resp.CompletedStops) != 1 {
		t.Errorf("expected 1 completed stop after resume, got %d", len(resp.CompletedStops))
	}
}

func TestEndCrawl(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1")

	w := env.do(t, http.MethodPost, "/api/progress/end", tok, nil)
	expectStatus(t, w, http.StatusNotFound)

	env.do(t, http.MethodPost, "/api/progress/start", tok, StartRequest{CrawlID: "riverside"})
	w = env.do(t, http.MethodPost, "/api/progress/end", tok, nil)
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, "/api/history", tok, nil)
	expectStatus(t, w, http.StatusOK)
	history := decode[[]crawl.HistoryEntry](t, w)
	if len(history) != 1 || history[0].Completed {
		t.Fatalf("expected one abandoned entry, got %+v", history)
	}

	w = env.do(t, http.MethodGet, "/api/progress", tok, nil)
	if got := decode[ProgressResponse](t, w).Phase; got != string(crawl.PhaseNotStarted) {
		t.Errorf("expected not_started after ending, got %q", got)
	}
}

func TestProgressIsPerUser(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/progress/start", env.token(t, "alice"), StartRequest{CrawlID: "riverside"})

	w := env.do(t, http.MethodGet, "/api/progress", env.token(t, "bob"), nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[ProgressResponse](t, w).Phase; got != string(crawl.PhaseNotStarted) {
		t.Errorf("bob should have no active crawl, got %q", got)
	}
}
