package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/citycrawl/crawl/internal/content"
	"github.com/citycrawl/crawl/internal/database"
	"github.com/citycrawl/crawl/internal/migrations"
	"github.com/citycrawl/crawl/internal/server"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import crawl YAML content into the database",
	Long:  "Creates or replaces every valid crawl from the content directory. Invalid crawls are reported and skipped unless --strict is set.",
	RunE:  runImport,
}

var (
	importDir    string
	importDB     string
	importStrict bool
)

func init() {
	importCmd.Flags().StringVarP(&importDir, "dir", "d", "content", "Content directory")
	importCmd.Flags().StringVar(&importDB, "db", "data/crawl.db", "SQLite database path")
	importCmd.Flags().BoolVar(&importStrict, "strict", false, "Abort without writing if any crawl is invalid")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	defs, errs := content.LoadAll(os.DirFS(importDir))
	out := cmd.OutOrStdout()
	for _, err := range errs {
		fmt.Fprintf(out, "skip  %v\n", err)
	}
	if importStrict && len(errs) > 0 {
		return errors.Join(errs...)
	}

	ctx := cmd.Context()
	db, err := database.Open(ctx, importDB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	store := server.NewSQLiteStore(db)
	for _, def := range defs {
		if err := store.SaveCrawl(ctx, def); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s\n", def.ID)
	}
	fmt.Fprintf(out, "%d crawls imported into %s\n", len(defs), importDB)
	return nil
}
