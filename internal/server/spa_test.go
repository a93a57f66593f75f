package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSPAFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>crawl app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('hi')"), 0o644); err != nil {
		t.Fatal(err)
	}

	env := newTestEnv(t)
	env.router = NewRouter(Deps{
		Logger:   discard,
		Store:    env.store,
		Catalog:  env.store,
		Tracker:  env.tracker,
		Verifier: env.tokens,
		Broker:   env.broker,
		SPADir:   dir,
	})

	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/", http.StatusOK, "crawl app"},
		{"/crawls/riverside", http.StatusOK, "crawl app"},
		{"/app.js", http.StatusOK, "console.log"},
		{"/api/unknown", http.StatusNotFound, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body %q missing %q", w.Body.String(), tt.want)
			}
		})
	}
}
