package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vohoa/postgres-backup-plugin/internal/backup"
)

var (
	cleanInput  string
	cleanOutput string
	cleanSchema string
)

// cleanCmd runs the sanitizer over an existing dump file
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Strip client directives and namespace prefixes from a dump",
	Long: `Rewrite an existing SQL dump so it is free of interactive-client
directives and namespace qualification, leaving every bulk-copy payload block
byte-for-byte intact. A payload without a terminator fails the run; no
half-cleaned output is produced.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().StringVarP(&cleanInput, "input", "i", "", "dump file to clean (required)")
	cleanCmd.Flags().StringVarP(&cleanOutput, "output", "o", "", "cleaned output file (required)")
	cleanCmd.Flags().StringVar(&cleanSchema, "source-schema", "public", "namespace prefix to strip")
	cleanCmd.MarkFlagRequired("input")
	cleanCmd.MarkFlagRequired("output")
}

func runClean(cmd *cobra.Command, args []string) error {
	sanitizer := backup.NewSanitizer(cleanSchema, true)

	if err := sanitizer.SanitizeFile(cleanInput, cleanOutput); err != nil {
		return fmt.Errorf("clean failed: %w", err)
	}

	color.Green("✓ cleaned %s into %s", cleanInput, cleanOutput)
	return nil
}
