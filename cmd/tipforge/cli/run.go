package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/intelstack/tipforge/internal/bridge"
	"github.com/intelstack/tipforge/internal/journal"
	"github.com/intelstack/tipforge/internal/log"
	"github.com/intelstack/tipforge/internal/phase"
	"github.com/intelstack/tipforge/internal/phases"
)

var (
	fromFlag string
	onlyFlag string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the installation phases against the target container",
	Long: `Run walks the phase graph in dependency order against the container
named in the configuration. Phases whose effect is already present are
skipped; phases whose prerequisites failed are blocked. Every terminal
state is journaled so a later run resumes from where this one stopped.

Examples:
  # Full run with the default config file
  tipforge run

  # Resume at the widget deployment phase
  tipforge run --from deploy-widgets

  # Run a single phase
  tipforge run --only apply-tag-fix`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&fromFlag, "from", "", "resume execution at the named phase")
	runCmd.Flags().StringVar(&onlyFlag, "only", "", "run a single phase by id")
	runCmd.MarkFlagsMutuallyExclusive("from", "only")
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer log.Close()

	br, err := bridge.NewDockerBridge(cfg.Target)
	if err != nil {
		return fmt.Errorf("connecting to container runtime: %w", err)
	}
	defer br.Close()

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer jrnl.Close()

	runID := uuid.NewString()
	log.SetRunID(runID)
	log.Info("starting run", "target", cfg.Target, "run_id", runID)

	runner := &phase.Runner{
		Journal: jrnl,
		Env:     &phase.Env{Bridge: br, Journal: jrnl, Config: cfg},
		RunID:   runID,
	}

	report, err := runner.Run(ctx, phases.Standard(), phase.Options{From: fromFlag, Only: onlyFlag})
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(cmd, report)
	}

	if report.Failed() {
		return errors.New("one or more phases failed")
	}
	return nil
}

func printReport(cmd *cobra.Command, report phase.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s against %s (%s)\n\n", shortID(report.RunID), report.Target,
		report.Finished.Sub(report.Started).Round(time.Millisecond))

	for _, res := range report.Results {
		fmt.Fprintf(out, "  %s %-22s %s\n", statusMark(res.Status), res.ID, statusLine(res))
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "      %s %s\n", color.New(color.FgYellow).Sprint("warning:"), w)
		}
	}
}

func statusMark(s phase.Status) string {
	switch s {
	case phase.StatusCompleted:
		return color.New(color.FgGreen).Sprint("✓")
	case phase.StatusFailed:
		return color.New(color.FgRed).Sprint("✗")
	case phase.StatusSkippedIdempotent:
		return color.New(color.FgCyan).Sprint("=")
	case phase.StatusSkippedBlocked:
		return color.New(color.FgYellow).Sprint("!")
	default:
		return "-"
	}
}

func statusLine(res phase.Result) string {
	switch res.Status {
	case phase.StatusCompleted:
		return fmt.Sprintf("completed (%s)", res.Duration.Round(time.Millisecond))
	case phase.StatusFailed:
		return color.New(color.FgRed).Sprintf("failed: %s", res.Diagnostic)
	case phase.StatusSkippedIdempotent:
		return "skipped, already satisfied"
	case phase.StatusSkippedBlocked:
		return color.New(color.FgYellow).Sprint(res.Diagnostic)
	default:
		return res.Diagnostic
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
