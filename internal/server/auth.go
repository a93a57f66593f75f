package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/citycrawl/crawl/internal/auth"
)

// TokenVerifier validates auth-provider identity tokens.
type TokenVerifier interface {
	Validate(token string) (*auth.Claims, error)
}

type userSession struct {
	UserID string
	Email  string
}

var errNoSession = errors.New("no valid session")

func bearerToken(r *http.Request) (string, error) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return "", errNoSession
	}
	return token, nil
}

// authenticate validates token and makes sure the user has a profile row.
func authenticate(ctx context.Context, verifier TokenVerifier, store Store, token string) (userSession, error) {
	claims, err := verifier.Validate(token)
	if err != nil {
		return userSession{}, errNoSession
	}
	profile, err := store.TouchProfile(ctx, claims.Identity())
	if err != nil {
		return userSession{}, err
	}
	return userSession{UserID: profile.ID, Email: profile.Email}, nil
}
