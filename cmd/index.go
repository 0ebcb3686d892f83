package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scribe/internal/ingest"
	"scribe/internal/logging"
	"scribe/internal/parser"
	"scribe/internal/parser/languages"
	"scribe/internal/store"
)

var flagWorkers int

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a codebase into the structured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		dbPath := resolveDBPath(root)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}

		logger, err := logging.New(flagDebug)
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		ig := ingest.New(st, parser.New(newRegistry()), flagWorkers, logger)

		fmt.Printf("Indexing %s...\n", root)
		start := time.Now()
		stats, err := ig.Run(cmd.Context(), root)
		elapsed := time.Since(start)

		if err == nil {
			if merr := st.SetMeta("last_indexed_root", root); merr != nil {
				logger.Warn("record last indexed root", zap.Error(merr))
			}
		}

		if stats != nil {
			fmt.Printf("\nDone in %s\n", elapsed.Round(time.Millisecond))
			fmt.Printf("  Files:   %d total, %d indexed, %d skipped, %d failed\n",
				stats.FilesTotal, stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed)
			fmt.Printf("  Chunks:  %d\n", stats.ChunksTotal)
			fmt.Printf("  Symbols: %d\n", stats.SymbolsTotal)
		}
		return err
	},
}

// newRegistry registers every supported grammar.
func newRegistry() *parser.Registry {
	reg := parser.NewRegistry()
	languages.RegisterGo(reg)
	languages.RegisterPython(reg)
	languages.RegisterJavaScript(reg)
	languages.RegisterTypeScript(reg)
	return reg
}

func init() {
	indexCmd.Flags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "parallel parse workers")
	rootCmd.AddCommand(indexCmd)
}
