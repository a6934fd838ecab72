package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/wintracker/internal/api"
	"github.com/bryanchriswhite/wintracker/internal/tracker"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible top-level windows",
	Long: `Seed the window table from the configured backend, print it once and
exit.`,
	Example: `  # List windows in table format (default)
  wintracker list

  # List windows in JSON format
  wintracker list --format json

  # Use the built-in demo backend
  wintracker list --backend fake`,
	RunE: runList,
}

var listFormat string

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table, text or json)")
}

func runList(cmd *cobra.Command, args []string) error {
	if err := checkFormat(listFormat); err != nil {
		return err
	}

	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	t, stop, err := startTracker(cfg)
	if err != nil {
		return err
	}
	defer stop()

	return printSnapshot(cmd.OutOrStdout(), t.Snapshot(), listFormat)
}

func checkFormat(format string) error {
	switch format {
	case "table", "text", "json":
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table', 'text' or 'json')", format)
	}
}

func printSnapshot(out io.Writer, snap tracker.Snapshot, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(api.NewWindowList(snap))
	case "text":
		_, err := fmt.Fprint(out, snap.String())
		return err
	default:
		return printTable(out, snap)
	}
}

func printTable(out io.Writer, snap tracker.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "HANDLE\tPOSITION\tSIZE\tTITLE")
	fmt.Fprintln(w, "------\t--------\t----\t-----")

	for _, e := range snap.Entries() {
		pos, size, title := "unknown", "-", "<none>"
		if e.HasRect {
			pos = e.Rect.String()
			size = fmt.Sprintf("%dx%d", e.Rect.Width(), e.Rect.Height())
		}
		if e.HasTitle {
			title = e.Title
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Handle, pos, size, title)
	}

	return w.Flush()
}
