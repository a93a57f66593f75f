package server

import (
	"context"
	"io/fs"
	"log/slog"

	"github.com/citycrawl/crawl/internal/content"
)

// SeedContent imports the YAML crawls in fsys into an empty database. It does
// nothing once any crawl exists, so admin edits are never overwritten.
func SeedContent(ctx context.Context, logger *slog.Logger, admin AdminStore, fsys fs.FS) error {
	n, err := admin.CountCrawls(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	defs, errs := content.LoadAll(fsys)
	for _, err := range errs {
		if content.IsNotExist(err) {
			logger.Info("no crawl content to seed")
			return nil
		}
		logger.Warn("skipping crawl content", "error", err)
	}
	for _, def := range defs {
		if err := admin.SaveCrawl(ctx, def); err != nil {
			return err
		}
	}

	logger.Info("crawl content seeded", "crawls", len(defs))
	return nil
}

// SeedAdmin creates the configured admin account if it does not exist yet.
func SeedAdmin(ctx context.Context, logger *slog.Logger, admin AdminStore, email, passwordHash string) error {
	if email == "" || passwordHash == "" {
		return nil
	}
	if err := admin.EnsureAdmin(ctx, email, passwordHash); err != nil {
		return err
	}
	logger.Info("admin account ready", "email", email)
	return nil
}
