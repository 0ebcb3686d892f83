package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagDB    string
	flagDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Source-aware indexing, retrieval, and citation verification",
	Long: `scribe parses a codebase into chunks, symbols, and a reference graph,
serves budget-bounded context retrieval over the index, and verifies
that report citations point at real lines that say what they claim.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default <project>/.scribe/index.db)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose console logging")
}

// resolveDBPath picks the database location: the --db flag, or
// <root>/.scribe/index.db.
func resolveDBPath(root string) string {
	if flagDB != "" {
		return flagDB
	}
	return filepath.Join(root, ".scribe", "index.db")
}
