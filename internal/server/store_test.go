package server

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/citycrawl/crawl/internal/auth"
	"github.com/citycrawl/crawl/internal/crawl"
)

func TestStoreCatalog(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))
	for _, def := range testCrawls(t) {
		if err := store.SaveCrawl(ctx, def); err != nil {
			t.Fatalf("saving crawl: %v", err)
		}
	}

	defs, err := store.Crawls(ctx)
	if err != nil {
		t.Fatalf("listing crawls: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 crawls, got %d", len(defs))
	}

	def, err := store.Crawl(ctx, "night-market")
	if err != nil {
		t.Fatalf("loading crawl: %v", err)
	}
	if !def.IsPublic() || def.StartTime == nil || !def.StartTime.Equal(time.Date(2030, 6, 6, 19, 0, 0, 0, time.UTC)) {
		t.Errorf("start time not stored: %+v", def.StartTime)
	}

	def, err = store.Crawl(ctx, "riverside")
	if err != nil {
		t.Fatalf("loading crawl: %v", err)
	}
	if def.Stops[0].Riddle == nil || def.Stops[0].Riddle.Answer != "bridge" {
		t.Errorf("riddle not stored: %+v", def.Stops[0])
	}
	if def.Stops[1].Location == nil || def.Stops[1].Location.Link == "" {
		t.Errorf("location not stored: %+v", def.Stops[1])
	}

	if _, err := store.Crawl(ctx, "missing"); !errors.Is(err, crawl.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	n, err := store.CountCrawls(ctx)
	if err != nil || n != 2 {
		t.Errorf("expected 2 crawls counted, got %d (%v)", n, err)
	}
}

func TestStoreProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))

	if _, err := store.ActiveProgress(ctx, "u1"); !errors.Is(err, crawl.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	started := time.Date(2025, 6, 6, 19, 0, 0, 0, time.UTC)
	p := crawl.Progress{
		UserID:      "u1",
		CrawlID:     "riverside",
		CurrentStop: 2,
		TotalStops:  3,
		CompletedStops: map[int]crawl.StopCompletion{
			1: {StopNumber: 1, UserAnswer: "bridge", CompletedAt: started.Add(5 * time.Minute)},
		},
		StartedAt:   started,
		LastUpdated: started.Add(5 * time.Minute),
	}
	if err := store.SaveProgress(ctx, p); err != nil {
		t.Fatalf("saving progress: %v", err)
	}

	got, err := store.ActiveProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("loading progress: %v", err)
	}
	if got.CrawlID != "riverside" || got.CurrentStop != 2 || got.Completed {
		t.Errorf("unexpected progress %+v", got)
	}
	if c, ok := got.CompletedStops[1]; !ok || c.UserAnswer != "bridge" || !c.CompletedAt.Equal(p.CompletedStops[1].CompletedAt) {
		t.Errorf("completion not stored: %+v", got.CompletedStops)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("startedAt = %v, want %v", got.StartedAt, started)
	}

	// Saving again replaces the row.
	p.CrawlID = "night-market"
	p.IsPublic = true
	if err := store.SaveProgress(ctx, p); err != nil {
		t.Fatalf("saving progress: %v", err)
	}
	got, _ = store.ActiveProgress(ctx, "u1")
	if got.CrawlID != "night-market" || !got.IsPublic {
		t.Errorf("expected replaced row, got %+v", got)
	}

	if err := store.DeleteProgress(ctx, "u1"); err != nil {
		t.Fatalf("deleting progress: %v", err)
	}
	if _, err := store.ActiveProgress(ctx, "u1"); !errors.Is(err, crawl.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreHistoryAndStats(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))

	stats, err := store.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != (crawl.Stats{}) {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	history, err := store.History(ctx, "u1")
	if err != nil || history == nil || len(history) != 0 {
		t.Fatalf("expected empty non-nil history, got %v (%v)", history, err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []crawl.HistoryEntry{
		{ID: "h1", UserID: "u1", CrawlID: "riverside", Completed: true, StopsCompleted: 3, CompletedAt: base, TotalTimeMinutes: 40},
		{ID: "h2", UserID: "u1", CrawlID: "night-market", IsPublic: true, Completed: true, StopsCompleted: 1, CompletedAt: base.Add(24 * time.Hour), TotalTimeMinutes: 45},
		{ID: "h3", UserID: "u1", CrawlID: "riverside", Completed: false, StopsCompleted: 1, CompletedAt: base.Add(48 * time.Hour), TotalTimeMinutes: 200},
		{ID: "h4", UserID: "u2", CrawlID: "riverside", Completed: true, StopsCompleted: 3, CompletedAt: base, TotalTimeMinutes: 10},
	}
	for _, e := range entries {
		if err := store.AppendHistory(ctx, e); err != nil {
			t.Fatalf("appending history: %v", err)
		}
	}

	history, err = store.History(ctx, "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[0].ID != "h3" || history[2].ID != "h1" {
		t.Fatalf("expected newest first, got %+v", history)
	}

	stats, err = store.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := crawl.Stats{
		CrawlsCompleted:  2,
		CrawlsAbandoned:  1,
		PublicCompleted:  1,
		LibraryCompleted: 1,
		TotalMinutes:     85,
		AverageMinutes:   43,
	}
	if stats.LastCompletedAt == nil || !stats.LastCompletedAt.Equal(base.Add(24*time.Hour)) {
		t.Errorf("lastCompletedAt = %v", stats.LastCompletedAt)
	}
	stats.LastCompletedAt = nil
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestStoreTouchProfile(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))

	p, err := store.TouchProfile(ctx, auth.Identity{UserID: "u1", Email: "a@example.com", Name: "Ana"})
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if p.DisplayName != "Ana" || p.Email != "a@example.com" {
		t.Fatalf("unexpected profile %+v", p)
	}

	p, err = store.TouchProfile(ctx, auth.Identity{UserID: "u1", Email: "new@example.com", Name: "Someone Else", Avatar: "https://img.example.com/a.png"})
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if p.DisplayName != "Ana" || p.Email != "new@example.com" || p.AvatarURL != "https://img.example.com/a.png" {
		t.Errorf("unexpected merge %+v", p)
	}

	if _, err := store.UpdateProfile(ctx, "ghost", "x", ""); !errors.Is(err, crawl.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

const seedIndex = `
crawls:
  - id: harbour
    name: Harbour Lights
    visibility: library
    stops:
      - stop_number: 1
        stop_type: location
        stop_components:
          name: Quay
  - id: broken
    name: Broken
    visibility: library
`

func TestSeedContent(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))
	fsys := fstest.MapFS{"crawls.yaml": {Data: []byte(seedIndex)}}

	if err := SeedContent(ctx, discard, store, fsys); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	defs, err := store.Crawls(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(defs) != 1 || defs[0].ID != "harbour" {
		t.Fatalf("expected only harbour seeded, got %+v", defs)
	}

	// A non-empty database is left alone.
	if err := store.DeleteCrawl(ctx, "harbour"); err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if err := store.SaveCrawl(ctx, testCrawls(t)[0]); err != nil {
		t.Fatalf("saving: %v", err)
	}
	if err := SeedContent(ctx, discard, store, fsys); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	if _, err := store.Crawl(ctx, "harbour"); !errors.Is(err, crawl.ErrNotFound) {
		t.Errorf("expected harbour not reseeded, got %v", err)
	}

	if err := SeedContent(ctx, discard, NewSQLiteStore(setupTestDB(t)), fstest.MapFS{}); err != nil {
		t.Errorf("missing content should not fail seeding: %v", err)
	}
}

func TestStoreHistoryOrdersSubSecondTimestamps(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))

	base := time.Date(2025, 6, 1, 19, 0, 5, 0, time.UTC)
	for _, e := range []crawl.HistoryEntry{
		{ID: "a", UserID: "u1", CrawlID: "riverside", Completed: true, CompletedAt: base},
		{ID: "b", UserID: "u1", CrawlID: "riverside", Completed: true, CompletedAt: base.Add(500 * time.Millisecond)},
	} {
		if err := store.AppendHistory(ctx, e); err != nil {
			t.Fatalf("appending history: %v", err)
		}
	}

	history, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ID != "b" || history[1].ID != "a" {
		t.Fatalf("expected b before a, got %+v", history)
	}
	if !history[0].CompletedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("completedAt = %v", history[0].CompletedAt)
	}

	stats, err := store.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.LastCompletedAt == nil || !stats.LastCompletedAt.Equal(base.Add(500*time.Millisecond)) {
		t.Errorf("lastCompletedAt = %v", stats.LastCompletedAt)
	}
}

func TestAdminSessionExpires(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.EnsureAdmin(ctx, "admin@example.com", "hash"); err != nil {
		t.Fatalf("ensuring admin: %v", err)
	}
	adminID, _, err := store.AdminByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("admin by email: %v", err)
	}
	sessionID, err := store.CreateAdminSession(ctx, adminID)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	now = now.Add(adminSessionTTL - time.Millisecond)
	if _, err := store.AdminFromSession(ctx, sessionID); err != nil {
		t.Fatalf("session should still be valid: %v", err)
	}

	now = now.Add(time.Millisecond)
	if _, err := store.AdminFromSession(ctx, sessionID); !errors.Is(err, errNoAdminSession) {
		t.Fatalf("expected errNoAdminSession, got %v", err)
	}
}
