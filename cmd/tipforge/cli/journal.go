package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/intelstack/tipforge/internal/journal"
)

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent journal events",
	Long: `Print the most recent phase events recorded in the journal, newest
first. Each event carries the run id that produced it, so events from an
interrupted run can be told apart from the run that resumed it.`,
	Args: cobra.NoArgs,
	RunE: showJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "maximum number of events to show")
}

func showJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer jrnl.Close()

	events, err := jrnl.Events(journalLimit)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No journal events recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRUN\tPHASE\tSTATE\tDETAIL")
	for _, ev := range events {
		detail := ev.Entry.Diagnostic
		if detail == "" && len(ev.Entry.Warnings) > 0 {
			detail = fmt.Sprintf("%d warning(s)", len(ev.Entry.Warnings))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ev.Entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			shortID(ev.RunID), ev.PhaseID, ev.Entry.Status, detail)
	}
	return w.Flush()
}
