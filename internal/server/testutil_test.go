package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citycrawl/crawl/internal/auth"
	"github.com/citycrawl/crawl/internal/crawl"
	"github.com/citycrawl/crawl/internal/database"
	"github.com/citycrawl/crawl/internal/migrations"
	"github.com/citycrawl/crawl/internal/progress"
)

const testSecret = "test-secret"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Memory)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustStop(t *testing.T, number int, name, stopType string, components map[string]string, reward string) crawl.Stop {
	t.Helper()
	s, err := crawl.NewStop(number, name, stopType, components, reward)
	if err != nil {
		t.Fatalf("building stop %d: %v", number, err)
	}
	return s
}

// testCrawls returns a library crawl with a riddle, a location and a button,
// and a scheduled public crawl with a single location.
func testCrawls(t *testing.T) []crawl.Definition {
	t.Helper()
	start := time.Date(2030, 6, 6, 19, 0, 0, 0, time.UTC)
	return []crawl.Definition{
		{
			ID:          "riverside",
			Name:        "Riverside Walk",
			Description: "Three stops along the river.",
			Duration:    "60 min",
			Distance:    "2 km",
			Difficulty:  "easy",
			Visibility:  crawl.VisibilityLibrary,
			Stops: []crawl.Stop{
				mustStop(t, 1, "Old Bridge", "riddle", map[string]string{"prompt": "What crosses the river without moving?", "answer": "bridge"}, "https://example.com/r1"),
				mustStop(t, 2, "Boathouse", "location", map[string]string{"name": "Boathouse", "link": "https://maps.example.com/boathouse"}, ""),
				mustStop(t, 3, "Pier", "button", map[string]string{"label": "Wave at the boats"}, ""),
			},
		},
		{
			ID:         "night-market",
			Name:       "Night Market",
			Visibility: crawl.VisibilityPublic,
			StartTime:  &start,
			Stops: []crawl.Stop{
				mustStop(t, 1, "Market Gate", "location", map[string]string{"name": "Market Gate"}, ""),
			},
		},
	}
}

type testEnv struct {
	router  chi.Router
	store   *SQLiteStore
	tracker *progress.Tracker
	broker  *Broker
	tokens  *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))
	for _, def := range testCrawls(t) {
		if err := store.SaveCrawl(ctx, def); err != nil {
			t.Fatalf("saving crawl %s: %v", def.ID, err)
		}
	}

	env := &testEnv{
		store:   store,
		tracker: progress.NewTracker(store, store, discard),
		broker:  NewBroker(),
		tokens:  auth.NewService(testSecret, "citycrawl", time.Hour),
	}
	env.router = NewRouter(Deps{
		Logger:   discard,
		Store:    store,
		Catalog:  store,
		Tracker:  env.tracker,
		Verifier: env.tokens,
		Broker:   env.broker,
	})
	return env
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.tokens.Issue(auth.Identity{UserID: userID, Email: userID + "@example.com", Name: "User " + userID})
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return tok
}

// do sends a request with an optional JSON body and bearer token.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

