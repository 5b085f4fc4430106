package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/intelstack/tipforge/internal/phase"
	"github.com/intelstack/tipforge/internal/phases"
)

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "List the installation phases in execution order",
	Args:  cobra.NoArgs,
	RunE:  listPhases,
}

func init() {
	rootCmd.AddCommand(phasesCmd)
}

type phaseInfo struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Requires    []string `json:"requires,omitempty"`
	Invalidates []string `json:"invalidates,omitempty"`
}

func listPhases(cmd *cobra.Command, args []string) error {
	ordered, err := phase.Order(phases.Standard())
	if err != nil {
		return err
	}

	if jsonOut {
		infos := make([]phaseInfo, 0, len(ordered))
		for _, p := range ordered {
			infos = append(infos, phaseInfo{ID: p.ID, Label: p.Label, Requires: p.Requires, Invalidates: p.Invalidates})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREQUIRES\tINVALIDATES\tDESCRIPTION")
	for _, p := range ordered {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, dashIfEmpty(p.Requires), dashIfEmpty(p.Invalidates), p.Label)
	}
	return w.Flush()
}

func dashIfEmpty(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
