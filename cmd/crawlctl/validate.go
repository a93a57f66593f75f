package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/citycrawl/crawl/internal/content"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check crawl YAML content for errors",
	Long:  "Loads crawls.yaml and every referenced asset folder, reporting each crawl that fails to build.",
	RunE:  runValidate,
}

var validateDir string

func init() {
	validateCmd.Flags().StringVarP(&validateDir, "dir", "d", "content", "Content directory")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	defs, errs := content.LoadAll(os.DirFS(validateDir))
	out := cmd.OutOrStdout()
	for _, def := range defs {
		fmt.Fprintf(out, "ok    %-24s %d stops (%s)\n", def.ID, def.TotalStops(), def.Visibility)
	}
	for _, err := range errs {
		fmt.Fprintf(out, "error %v\n", err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
