package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/citycrawl/crawl/internal/crawl"
)

// timeLayout is fixed width so stored timestamps sort lexically in time
// order. Column defaults written by strftime still parse as RFC 3339.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SQLiteStore implements Store on a libSQL database migrated by the
// migrations package. Structured fields live in JSONB columns.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// --- Catalog ---

const definitionColumns = `id, name, description, asset_folder, duration, distance, difficulty, visibility, start_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (crawl.Definition, error) {
	var (
		d          crawl.Definition
		visibility string
		startTime  sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.AssetFolder, &d.Duration,
		&d.Distance, &d.Difficulty, &visibility, &startTime); err != nil {
		return d, err
	}
	d.Visibility = crawl.Visibility(visibility)
	if startTime.Valid {
		ts, err := parseTime(startTime.String)
		if err != nil {
			return d, err
		}
		d.StartTime = &ts
	}
	return d, nil
}

// stops loads stop rows keyed by crawl id. An empty crawlID loads every
// crawl's stops.
func (s *SQLiteStore) stops(ctx context.Context, crawlID string) (map[string][]crawl.Stop, error) {
	query := `SELECT crawl_id, stop_number, name, stop_type, json(components), reward_url FROM crawl_stops`
	var args []any
	if crawlID != "" {
		query += ` WHERE crawl_id = ?`
		args = append(args, crawlID)
	}
	query += ` ORDER BY crawl_id, stop_number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]crawl.Stop{}
	for rows.Next() {
		var (
			id, name, stopType, rawComponents, rewardURL string
			number                                       int
			components                                   map[string]string
		)
		if err := rows.Scan(&id, &number, &name, &stopType, &rawComponents, &rewardURL); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rawComponents), &components); err != nil {
			return nil, fmt.Errorf("decoding stop %s/%d: %w", id, number, err)
		}
		stop, err := crawl.NewStop(number, name, stopType, components, rewardURL)
		if err != nil {
			return nil, fmt.Errorf("crawl %q: %w", id, err)
		}
		out[id] = append(out[id], stop)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Crawls(ctx context.Context) ([]crawl.Definition, error) {
	defs, err := s.definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing crawls: %w", err)
	}
	stops, err := s.stops(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing stops: %w", err)
	}
	for i := range defs {
		defs[i].Stops = stops[defs[i].ID]
	}
	return defs, nil
}

func (s *SQLiteStore) definitions(ctx context.Context) ([]crawl.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM crawl_definitions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []crawl.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *SQLiteStore) Crawl(ctx context.Context, id string) (crawl.Definition, error) {
	def, err := scanDefinition(s.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM crawl_definitions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return crawl.Definition{}, crawl.ErrNotFound
	}
	if err != nil {
		return crawl.Definition{}, fmt.Errorf("loading crawl %q: %w", id, err)
	}
	stops, err := s.stops(ctx, id)
	if err != nil {
		return crawl.Definition{}, fmt.Errorf("loading stops for %q: %w", id, err)
	}
	def.Stops = stops[id]
	return def, nil
}

// --- Progress gateway ---

func (s *SQLiteStore) ActiveProgress(ctx context.Context, userID string) (crawl.Progress, error) {
	var (
		p                      crawl.Progress
		isPublic, completed    int
		rawStops               string
		startedAt, lastUpdated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT crawl_id, is_public, current_stop, json(completed_stops), started_at, last_updated, completed
		FROM crawl_progress
		WHERE user_id = ?
	`, userID).Scan(&p.CrawlID, &isPublic, &p.CurrentStop, &rawStops, &startedAt, &lastUpdated, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return crawl.Progress{}, crawl.ErrNotFound
	}
	if err != nil {
		return crawl.Progress{}, fmt.Errorf("loading progress: %w", err)
	}

	var completions []crawl.StopCompletion
	if err := json.Unmarshal([]byte(rawStops), &completions); err != nil {
		return crawl.Progress{}, fmt.Errorf("decoding completed stops: %w", err)
	}
	p.CompletedStops = make(map[int]crawl.StopCompletion, len(completions))
	for _, c := range completions {
		p.CompletedStops[c.StopNumber] = c
	}
	if p.StartedAt, err = parseTime(startedAt); err != nil {
		return crawl.Progress{}, err
	}
	if p.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return crawl.Progress{}, err
	}
	p.UserID = userID
	p.IsPublic = isPublic == 1
	p.Completed = completed == 1
	return p, nil
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, p crawl.Progress) error {
	data, err := json.Marshal(p.Completions())
	if err != nil {
		return fmt.Errorf("encoding completed stops: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crawl_progress (user_id, crawl_id, is_public, current_stop, completed_stops, started_at, last_updated, completed)
		VALUES (?, ?, ?, ?, jsonb(?), ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			crawl_id = excluded.crawl_id,
			is_public = excluded.is_public,
			current_stop = excluded.current_stop,
			completed_stops = excluded.completed_stops,
			started_at = excluded.started_at,
			last_updated = excluded.last_updated,
			completed = excluded.completed
	`, p.UserID, p.CrawlID, boolInt(p.IsPublic), p.CurrentStop, string(data),
		formatTime(p.StartedAt), formatTime(p.LastUpdated), boolInt(p.Completed))
	if err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteProgress(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM crawl_progress WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, h crawl.HistoryEntry) error {
	var score sql.NullInt64
	if h.Score != nil {
		score = sql.NullInt64{Int64: int64(*h.Score), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_crawl_history (id, user_id, crawl_id, is_public, completed, stops_completed, completed_at, total_time_minutes, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.UserID, h.CrawlID, boolInt(h.IsPublic), boolInt(h.Completed), h.StopsCompleted,
		formatTime(h.CompletedAt), h.TotalTimeMinutes, score)
	if err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// --- History ---

func (s *SQLiteStore) History(ctx context.Context, userID string) ([]crawl.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, crawl_id, is_public, completed, stops_completed, completed_at, total_time_minutes, score
		FROM user_crawl_history
		WHERE user_id = ?
		ORDER BY completed_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	entries := []crawl.HistoryEntry{}
	for rows.Next() {
		var (
			h                   crawl.HistoryEntry
			isPublic, completed int
			completedAt         string
			score               sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &h.CrawlID, &isPublic, &completed, &h.StopsCompleted,
			&completedAt, &h.TotalTimeMinutes, &score); err != nil {
			return nil, err
		}
		if h.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			h.Score = &v
		}
		h.UserID = userID
		h.IsPublic = isPublic == 1
		h.Completed = completed == 1
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// Stats aggregates a user's history. Only completed attempts count towards
// minutes and per-visibility totals.
func (s *SQLiteStore) Stats(ctx context.Context, userID string) (crawl.Stats, error) {
	var (
		st   crawl.Stats
		last sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(completed), 0),
			COALESCE(SUM(1 - completed), 0),
			COALESCE(SUM(CASE WHEN completed = 1 AND is_public = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN completed = 1 AND is_public = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN completed = 1 THEN total_time_minutes ELSE 0 END), 0),
			MAX(CASE WHEN completed = 1 THEN completed_at END)
		FROM user_crawl_history
		WHERE user_id = ?
	`, userID).Scan(&st.CrawlsCompleted, &st.CrawlsAbandoned, &st.PublicCompleted,
		&st.LibraryCompleted, &st.TotalMinutes, &last)
	if err != nil {
		return crawl.Stats{}, fmt.Errorf("aggregating stats: %w", err)
	}
	if st.CrawlsCompleted > 0 {
		st.AverageMinutes = (st.TotalMinutes + st.CrawlsCompleted/2) / st.CrawlsCompleted
	}
	if last.Valid {
		ts, err := parseTime(last.String)
		if err != nil {
			return crawl.Stats{}, err
		}
		st.LastCompletedAt = &ts
	}
	return st, nil
}
