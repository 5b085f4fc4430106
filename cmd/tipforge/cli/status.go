package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/intelstack/tipforge/internal/bridge"
	"github.com/intelstack/tipforge/internal/journal"
	"github.com/intelstack/tipforge/internal/phase"
	"github.com/intelstack/tipforge/internal/phases"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show target reachability and journaled phase state",
	Long: `Display the journaled state of every installation phase for the
configured target, plus whether the target container is currently
reachable. No remote state is mutated.`,
	Args: cobra.NoArgs,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Target    string        `json:"target"`
	Reachable bool          `json:"reachable"`
	Phases    []phaseStatus `json:"phases"`
}

type phaseStatus struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Recorded    time.Time `json:"recorded,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Diagnostic  string    `json:"diagnostic,omitempty"`
}

// collectPhaseStatus maps journal entries onto the ordered phase list. A
// phase without an entry reports the same not-run status the run report uses.
func collectPhaseStatus(jrnl *journal.Journal, ordered []*phase.Phase) ([]phaseStatus, error) {
	statuses := make([]phaseStatus, 0, len(ordered))
	for _, p := range ordered {
		ps := phaseStatus{ID: p.ID, Status: string(phase.StatusNotRun)}
		entry, err := jrnl.Get(p.ID)
		switch {
		case err == nil:
			ps.Status = string(entry.Status)
			ps.Recorded = entry.Timestamp
			ps.Fingerprint = entry.Fingerprint
			ps.Diagnostic = entry.Diagnostic
		case !errors.Is(err, journal.ErrNotFound):
			return nil, err
		}
		statuses = append(statuses, ps)
	}
	return statuses, nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := statusOutput{Target: cfg.Target}

	if br, err := bridge.NewDockerBridge(cfg.Target); err == nil {
		out.Reachable = br.IsLive(cmd.Context())
		br.Close()
	}

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer jrnl.Close()

	ordered, err := phase.Order(phases.Standard())
	if err != nil {
		return err
	}

	out.Phases, err = collectPhaseStatus(jrnl, ordered)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	reach := color.New(color.FgRed).Sprint("unreachable")
	if out.Reachable {
		reach = color.New(color.FgGreen).Sprint("reachable")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Target: %s (%s)\n\n", out.Target, reach)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tSTATE\tRECORDED\tFINGERPRINT")
	for _, ps := range out.Phases {
		recorded := "-"
		if !ps.Recorded.IsZero() {
			recorded = ps.Recorded.Local().Format("2006-01-02 15:04:05")
		}
		fp := "-"
		if ps.Fingerprint != "" {
			fp = shortID(ps.Fingerprint)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ps.ID, ps.Status, recorded, fp)
	}
	return w.Flush()
}
