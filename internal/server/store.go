package server

import (
	"context"
	"time"

	"github.com/citycrawl/crawl/internal/auth"
	"github.com/citycrawl/crawl/internal/crawl"
	"github.com/citycrawl/crawl/internal/progress"
)

// Signup is a user's registration for a scheduled public crawl.
type Signup struct {
	CrawlID    string    `json:"crawlId"`
	SignedUpAt time.Time `json:"signedUpAt"`
}

type Store interface {
	progress.Gateway
	crawl.Catalog

	// TouchProfile creates the profile on first sign-in and refreshes the
	// fields carried by the identity token afterwards.
	TouchProfile(ctx context.Context, id auth.Identity) (crawl.UserProfile, error)
	Profile(ctx context.Context, userID string) (crawl.UserProfile, error)
	UpdateProfile(ctx context.Context, userID, displayName, avatarURL string) (crawl.UserProfile, error)

	SignUp(ctx context.Context, userID, crawlID string) (Signup, error)
	CancelSignup(ctx context.Context, userID, crawlID string) error
	Signups(ctx context.Context, userID string) ([]Signup, error)

	History(ctx context.Context, userID string) ([]crawl.HistoryEntry, error)
	Stats(ctx context.Context, userID string) (crawl.Stats, error)

	AdminStore
}

type AdminStore interface {
	EnsureAdmin(ctx context.Context, email, passwordHash string) error
	AdminByEmail(ctx context.Context, email string) (adminID, passwordHash string, err error)
	CreateAdminSession(ctx context.Context, adminID string) (sessionID string, err error)
	DeleteAdminSession(ctx context.Context, sessionID string) error
	AdminFromSession(ctx context.Context, sessionID string) (adminSession, error)

	SaveCrawl(ctx context.Context, def crawl.Definition) error
	DeleteCrawl(ctx context.Context, id string) error
	CountCrawls(ctx context.Context) (int, error)
}
