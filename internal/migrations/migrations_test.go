package migrations_test

import (
	"context"
	"testing"

	"github.com/citycrawl/crawl/internal/database"
	"github.com/citycrawl/crawl/internal/migrations"
)

func TestMigrations(t *testing.T) {
	db, err := database.Open(context.Background(), database.Memory)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	want := []string{
		"crawl_definitions", "crawl_stops", "crawl_progress", "user_crawl_history",
		"user_profiles", "public_crawl_signups", "admins", "admin_sessions",
	}
	for _, table := range want {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	v, err := migrations.Version(db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db, err := database.Open(context.Background(), database.Memory)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(db); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}

func TestJSONBColumnsRoundTrip(t *testing.T) {
	db, err := database.Open(context.Background(), database.Memory)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()
	if err := migrations.Run(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO crawl_definitions (id, name, visibility) VALUES ('c1', 'C1', 'library')`); err != nil {
		t.Fatalf("inserting crawl: %v", err)
	}
	_, err = db.Exec(`
		INSERT INTO crawl_stops (crawl_id, stop_number, stop_type, components)
		VALUES ('c1', 1, 'riddle', jsonb(?))
	`, `{"prompt":"p","answer":"a"}`)
	if err != nil {
		t.Fatalf("inserting stop: %v", err)
	}

	var answer string
	err = db.QueryRow(`SELECT json_extract(json(components), '$.answer') FROM crawl_stops WHERE crawl_id = 'c1'`).Scan(&answer)
	if err != nil {
		t.Fatalf("reading stop: %v", err)
	}
	if answer != "a" {
		t.Errorf("answer = %q, want %q", answer, "a")
	}

	if _, err := db.Exec(`INSERT INTO crawl_definitions (id, name, visibility) VALUES ('c2', 'C2', 'secret')`); err == nil {
		t.Error("expected visibility check constraint to reject 'secret'")
	}
}
