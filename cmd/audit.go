package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"scribe/internal/citation"
	"scribe/internal/judge"
	"scribe/internal/logging"
	"scribe/internal/store"
)

var flagJudge string

var auditCmd = &cobra.Command{
	Use:   "audit <report.md>",
	Short: "Verify every citation in a report against the index",
	Long: `audit extracts [path:start-end] citations from a markdown report,
validates each one against the indexed codebase, classifies the claim it
supports, and checks the claim against the cited lines. The audited
report is saved as a new version.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reportPath := args[0]
		text, err := os.ReadFile(reportPath)
		if err != nil {
			return fmt.Errorf("read report: %w", err)
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		dbPath := resolveDBPath(wd)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("index not found at %s\nRun 'scribe index <path>' first", dbPath)
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

		j, err := buildJudge(cmd)
		if err != nil {
			return err
		}

		verifier := citation.NewVerifier(st, j, logger)
		results, err := verifier.VerifyReport(cmd.Context(), string(text))
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}

		valid, invalid := 0, 0
		for _, r := range results {
			if r.Valid {
				valid++
			} else {
				invalid++
			}
		}
		if _, err := st.SaveReportVersion(store.ReportVersion{
			RunID:            uuid.NewString(),
			Iteration:        1,
			Content:          string(text),
			ValidCitations:   valid,
			InvalidCitations: invalid,
		}); err != nil {
			return fmt.Errorf("save version: %w", err)
		}

		printAudit(filepath.Base(reportPath), results)
		if invalid > 0 {
			os.Exit(1)
		}
		return nil
	},
}

// buildJudge picks the abstractive-claim judge. "none" skips judging
// entirely; those claims stay unverified.
func buildJudge(cmd *cobra.Command) (judge.Judge, error) {
	switch flagJudge {
	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set. Get a key at https://aistudio.google.com/apikey")
		}
		client, err := genai.NewClient(cmd.Context(), &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return judge.NewGemini(client), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown judge %q (want gemini or none)", flagJudge)
	}
}

func printAudit(name string, results []citation.Verification) {
	fmt.Printf("Audit of %s: %d citations\n\n", name, len(results))
	for _, r := range results {
		status := "VALID"
		detail := string(r.Verdict)
		if !r.Valid {
			status = "INVALID"
			detail = r.Detail
		}
		fmt.Printf("  %-8s %-28s %s\n", status, r.Citation.String(), detail)
		if r.Claim != "" && flagDebug {
			fmt.Printf("           claim: %s\n", r.Claim)
		}
	}

	valid, supported := 0, 0
	for _, r := range results {
		if r.Valid {
			valid++
			if r.Verdict == citation.VerdictSupports {
				supported++
			}
		}
	}
	fmt.Printf("\n  %d/%d structurally valid, %d fully supported\n", valid, len(results), supported)
}

func init() {
	auditCmd.Flags().StringVar(&flagJudge, "judge", "none", "abstractive-claim judge: gemini or none")
	rootCmd.AddCommand(auditCmd)
}
