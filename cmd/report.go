package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"scribe/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect stored report versions",
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List report versions, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		versions, err := st.ListReportVersions()
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No report versions stored.")
			return nil
		}
		fmt.Printf("%-5s %-38s %-5s %-7s %-9s %s\n", "ID", "RUN", "ITER", "VALID", "INVALID", "CREATED")
		for _, v := range versions {
			fmt.Printf("%-5d %-38s %-5d %-7d %-9d %s\n",
				v.ID, v.RunID, v.Iteration, v.ValidCitations, v.InvalidCitations, v.CreatedAt)
		}
		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Render a report version (latest when no id given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var version *store.ReportVersion
		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad version id %q", args[0])
			}
			version, err = st.GetReportVersion(id)
			if err != nil {
				return err
			}
		} else {
			version, err = st.LatestReportVersion()
			if err != nil {
				return err
			}
		}
		if version == nil {
			return fmt.Errorf("report version not found")
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			// Fall back to raw markdown when the terminal can't render.
			fmt.Println(version.Content)
			return nil
		}
		out, err := r.Render(version.Content)
		if err != nil {
			fmt.Println(version.Content)
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

// openStore opens the index database in the working directory.
func openStore() (store.Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(wd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("index not found at %s\nRun 'scribe index <path>' first", dbPath)
	}
	return store.Open(dbPath)
}

func init() {
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	rootCmd.AddCommand(reportCmd)
}
