package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/citycrawl/crawl/internal/crawl"
)

func TestListCrawls(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1")

	tests := []struct {
		query   string
		status  int
		wantIDs []string
	}{
		{"", http.StatusOK, []string{"night-market", "riverside"}},
		{"?visibility=public", http.StatusOK, []string{"night-market"}},
		{"?visibility=library", http.StatusOK, []string{"riverside"}},
		{"?visibility=secret", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/crawls"+tt.query, tok, nil)
			expectStatus(t, w, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			crawls := decode[[]CrawlSummary](t, w)
			if len(crawls) != len(tt.wantIDs) {
				t.Fatalf("expected %d crawls, got %d", len(tt.wantIDs), len(crawls))
			}
			for i, id := range tt.wantIDs {
				if crawls[i].ID != id {
					t.Errorf("crawl %d: expected %q, got %q", i, id, crawls[i].ID)
				}
			}
		})
	}
}

func TestGetCrawlHidesAnswers(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/crawls/riverside", env.token(t, "u1"), nil)
	expectStatus(t, w, http.StatusOK)
	if body := w.Body.String(); strings.Contains(body, `"bridge"`) || strings.Contains(body, "example.com/r1") {
		t.Fatalf("crawl detail leaks answer or reward: %s", body)
	}

	w = env.do(t, http.MethodGet, "/api/crawls/riverside", env.token(t, "u1"), nil)
	detail := decode[CrawlDetail](t, w)
	if detail.TotalStops != 3 || len(detail.Stops) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(detail.Stops))
	}
	if detail.Stops[0].StopType != string(crawl.StopRiddle) {
		t.Errorf("expected riddle first, got %q", detail.Stops[0].StopType)
	}

	w = env.do(t, http.MethodGet, "/api/crawls/missing", env.token(t, "u1"), nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestSignups(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1")

	w := env.do(t, http.MethodPost, "/api/crawls/riverside/signup", tok, nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/api/crawls/night-market/signup", tok, nil)
	expectStatus(t, w, http.StatusOK)
	first := decode[Signup](t, w)

	// Signing up again keeps the original registration.
	w = env.do(t, http.MethodPost, "/api/crawls/night-market/signup", tok, nil)
	expectStatus(t, w, http.StatusOK)
	if again := decode[Signup](t, w); !again.SignedUpAt.Equal(first.SignedUpAt) {
		t.Errorf("expected signup time %v, got %v", first.SignedUpAt, again.SignedUpAt)
	}

	w = env.do(t, http.MethodGet, "/api/crawls/night-market", tok, nil)
	if !decode[CrawlDetail](t, w).SignedUp {
		t.Error("expected signedUp on crawl detail")
	}

	w = env.do(t, http.MethodGet, "/api/me/signups", tok, nil)
	expectStatus(t, w, http.StatusOK)
	if signups := decode[[]Signup](t, w); len(signups) != 1 || signups[0].CrawlID != "night-market" {
		t.Fatalf("unexpected signups %+v", signups)
	}

	w = env.do(t, http.MethodDelete, "/api/crawls/night-market/signup", tok, nil)
	expectStatus(t, w, http.StatusOK)
	w = env.do(t, http.MethodDelete, "/api/crawls/night-market/signup", tok, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1")

	w := env.do(t, http.MethodGet, "/api/me", tok, nil)
	expectStatus(t, w, http.StatusOK)
	profile := decode[crawl.UserProfile](t, w)
	if profile.ID != "u1" || profile.Email != "u1@example.com" || profile.DisplayName != "User u1" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	w = env.do(t, http.MethodPut, "/api/me", tok, UpdateProfileRequest{DisplayName: "Ana", AvatarURL: "https://img.example.com/a.png"})
	expectStatus(t, w, http.StatusOK)

	// A later sign-in must not overwrite the edited name.
	w = env.do(t, http.MethodGet, "/api/me", tok, nil)
	profile = decode[crawl.UserProfile](t, w)
	if profile.DisplayName != "Ana" || profile.AvatarURL != "https://img.example.com/a.png" {
		t.Errorf("edits lost: %+v", profile)
	}

	w = env.do(t, http.MethodPut, "/api/me", tok, UpdateProfileRequest{DisplayName: ""})
	expectStatus(t, w, http.StatusBadRequest)
	w = env.do(t, http.MethodPut, "/api/me", tok, UpdateProfileRequest{DisplayName: "Ana", AvatarURL: "not a url"})
	expectStatus(t, w, http.StatusBadRequest)
}
