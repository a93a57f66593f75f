package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/citycrawl/crawl/internal/crawl"
)

// EnsureAdmin creates the admin account if the email is not registered yet.
// An existing account keeps its password.
func (s *SQLiteStore) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (id, email, password_hash) VALUES (?, ?, ?)
		ON CONFLICT (email) DO NOTHING
	`, uuid.NewString(), email, passwordHash)
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AdminByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM admins WHERE email = ?`, email,
	).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", crawl.ErrNotFound
	}
	return id, hash, err
}

func (s *SQLiteStore) CreateAdminSession(ctx context.Context, adminID string) (string, error) {
	sessionID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_sessions (id, admin_id, created_at) VALUES (?, ?, ?)`,
		sessionID, adminID, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("creating admin session: %w", err)
	}
	return sessionID, nil
}

func (s *SQLiteStore) DeleteAdminSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE id = ?`, sessionID)
	return err
}

// AdminFromSession resolves a session cookie. Sessions older than
// adminSessionTTL are treated as missing.
func (s *SQLiteStore) AdminFromSession(ctx context.Context, sessionID string) (adminSession, error) {
	var sess adminSession
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email
		FROM admin_sessions s
		JOIN admins a ON a.id = s.admin_id
		WHERE s.id = ? AND s.created_at > ?
	`, sessionID, formatTime(s.now().Add(-adminSessionTTL))).Scan(&sess.AdminID, &sess.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return adminSession{}, errNoAdminSession
	}
	return sess, err
}

// SaveCrawl inserts or replaces a crawl and its full stop list.
func (s *SQLiteStore) SaveCrawl(ctx context.Context, def crawl.Definition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var startTime sql.NullString
	if def.StartTime != nil {
		startTime = sql.NullString{String: formatTime(*def.StartTime), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawl_definitions (id, name, description, asset_folder, duration, distance, difficulty, visibility, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			asset_folder = excluded.asset_folder,
			duration = excluded.duration,
			distance = excluded.distance,
			difficulty = excluded.difficulty,
			visibility = excluded.visibility,
			start_time = excluded.start_time,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, def.ID, def.Name, def.Description, def.AssetFolder, def.Duration, def.Distance,
		def.Difficulty, string(def.Visibility), startTime)
	if err != nil {
		return fmt.Errorf("saving crawl %q: %w", def.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_stops WHERE crawl_id = ?`, def.ID); err != nil {
		return fmt.Errorf("clearing stops for %q: %w", def.ID, err)
	}
	for _, stop := range def.Stops {
		components, err := json.Marshal(stop.Components())
		if err != nil {
			return fmt.Errorf("encoding stop %d: %w", stop.Number, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO crawl_stops (crawl_id, stop_number, name, stop_type, components, reward_url)
			VALUES (?, ?, ?, ?, jsonb(?), ?)
		`, def.ID, stop.Number, stop.Name, string(stop.Type), string(components), stop.RewardURL)
		if err != nil {
			return fmt.Errorf("saving stop %d of %q: %w", stop.Number, def.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteCrawl removes a crawl and its stops. The foreign_keys pragma is set
// per connection, so stops are deleted explicitly rather than by cascade.
func (s *SQLiteStore) DeleteCrawl(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_stops WHERE crawl_id = ?`, id); err != nil {
		return fmt.Errorf("deleting stops of %q: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM crawl_definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting crawl %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return crawl.ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountCrawls(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_definitions`).Scan(&n)
	return n, err
}
