package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/citycrawl/crawl/internal/auth"
	"github.com/citycrawl/crawl/internal/crawl"
)

func (s *SQLiteStore) TouchProfile(ctx context.Context, id auth.Identity) (crawl.UserProfile, error) {
	now := formatTime(s.now())
	// Token fields only overwrite stored ones when present, so a user's own
	// edits survive sign-ins from providers that omit them.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (id, email, display_name, avatar_url, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE email END,
			display_name = CASE WHEN display_name = '' THEN excluded.display_name ELSE display_name END,
			avatar_url = CASE WHEN avatar_url = '' THEN excluded.avatar_url ELSE avatar_url END,
			last_seen_at = excluded.last_seen_at
	`, id.UserID, id.Email, id.Name, id.Avatar, now, now)
	if err != nil {
		return crawl.UserProfile{}, fmt.Errorf("upserting profile: %w", err)
	}
	return s.Profile(ctx, id.UserID)
}

func (s *SQLiteStore) Profile(ctx context.Context, userID string) (crawl.UserProfile, error) {
	var (
		p                    crawl.UserProfile
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, avatar_url, created_at, last_seen_at
		FROM user_profiles
		WHERE id = ?
	`, userID).Scan(&p.ID, &p.Email, &p.DisplayName, &p.AvatarURL, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return crawl.UserProfile{}, crawl.ErrNotFound
	}
	if err != nil {
		return crawl.UserProfile{}, fmt.Errorf("loading profile: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return crawl.UserProfile{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return crawl.UserProfile{}, err
	}
	return p, nil
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID, displayName, avatarURL string) (crawl.UserProfile, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_profiles SET display_name = ?, avatar_url = ?, last_seen_at = ?
		WHERE id = ?
	`, displayName, avatarURL, formatTime(s.now()), userID)
	if err != nil {
		return crawl.UserProfile{}, fmt.Errorf("updating profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return crawl.UserProfile{}, crawl.ErrNotFound
	}
	return s.Profile(ctx, userID)
}

// SignUp registers the user for a crawl. Signing up twice keeps the first
// registration.
func (s *SQLiteStore) SignUp(ctx context.Context, userID, crawlID string) (Signup, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO public_crawl_signups (user_id, crawl_id, signed_up_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, crawl_id) DO NOTHING
	`, userID, crawlID, formatTime(s.now()))
	if err != nil {
		return Signup{}, fmt.Errorf("signing up: %w", err)
	}

	var at string
	err = s.db.QueryRowContext(ctx, `
		SELECT signed_up_at FROM public_crawl_signups WHERE user_id = ? AND crawl_id = ?
	`, userID, crawlID).Scan(&at)
	if err != nil {
		return Signup{}, fmt.Errorf("loading signup: %w", err)
	}
	ts, err := parseTime(at)
	if err != nil {
		return Signup{}, err
	}
	return Signup{CrawlID: crawlID, SignedUpAt: ts}, nil
}

func (s *SQLiteStore) CancelSignup(ctx context.Context, userID, crawlID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM public_crawl_signups WHERE user_id = ? AND crawl_id = ?`, userID, crawlID)
	if err != nil {
		return fmt.Errorf("cancelling signup: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return crawl.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Signups(ctx context.Context, userID string) ([]Signup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT crawl_id, signed_up_at FROM public_crawl_signups
		WHERE user_id = ?
		ORDER BY signed_up_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing signups: %w", err)
	}
	defer rows.Close()

	signups := []Signup{}
	for rows.Next() {
		var (
			su Signup
			at string
		)
		if err := rows.Scan(&su.CrawlID, &at); err != nil {
			return nil, err
		}
		if su.SignedUpAt, err = parseTime(at); err != nil {
			return nil, err
		}
		signups = append(signups, su)
	}
	return signups, rows.Err()
}
