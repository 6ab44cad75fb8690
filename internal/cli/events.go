package cli

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/dissent/internal/artifact"
	"github.com/Harshitk-cp/dissent/internal/config"
	"github.com/Harshitk-cp/dissent/internal/domain"
)

var (
	eventsLimit int

	replayFlags struct {
		recalculate bool
		output      string
	}

	validateAll bool
	batchRecalc bool
	exportDest  string
)

// errChecksFailed makes the process exit non-zero after a report has been
// printed.
var errChecksFailed = errors.New("one or more checks failed")

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List stored events, newest first",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

var replayCmd = &cobra.Command{
	Use:   "replay <event-id>",
	Short: "Recompute convergence from stored artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var validateCmd = &cobra.Command{
	Use:   "validate [event-id]",
	Short: "Check that an event's artifacts are complete and well formed",
	Args: func(cmd *cobra.Command, args []string) error {
		if validateAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runValidate,
}

var batchCmd = &cobra.Command{
	Use:   "batch [event-id...]",
	Short: "Replay several events, or all of them when none are given",
	RunE:  runBatch,
}

var exportCmd = &cobra.Command{
	Use:   "export <event-id>",
	Short: "Write a self-verifying reproducibility bundle",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <bundle-dir>",
	Short: "Check an exported bundle against its manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "maximum number of events to list (0 for all)")

	replayCmd.Flags().BoolVar(&replayFlags.recalculate, "recalculate", true, "recompute metrics even when stored ones exist")
	replayCmd.Flags().StringVarP(&replayFlags.output, "output", "o", "", "also write the replay result to this JSON file")

	validateCmd.Flags().BoolVar(&validateAll, "all", false, "validate every stored event")

	batchCmd.Flags().BoolVar(&batchRecalc, "recalculate", true, "recompute metrics even when stored ones exist")

	exportCmd.Flags().StringVar(&exportDest, "dest", "", "destination root (default EXPORT_DIR)")
	_ = exportCmd.MarkFlagDirname("dest")
}

func runEvents(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	svc, err := newReplayService(logger)
	if err != nil {
		return err
	}
	ids, err := svc.FindEvents()
	if err != nil {
		return err
	}
	total := len(ids)
	if eventsLimit > 0 && eventsLimit < len(ids) {
		ids = ids[:eventsLimit]
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, map[string]any{"events": ids, "total": total})
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Event", "Agents", "Decision", "Confidence"})
	for _, id := range ids {
		set, err := svc.LoadArtifacts(id)
		if err != nil {
			t.AppendRow(table.Row{id, "-", colors.Error("not loadable"), "-"})
			continue
		}
		if set.Metrics == nil {
			t.AppendRow(table.Row{id, len(set.Claims), "-", "-"})
			continue
		}
		t.AppendRow(table.Row{id, len(set.Claims), labelColor(set.Metrics.Decision.Label), fmt.Sprintf("%.3f", set.Metrics.Decision.Confidence)})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d of %d", len(ids), total)})
	t.Render()
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	svc, err := newReplayService(logger)
	if err != nil {
		return err
	}
	result, err := svc.Replay(args[0], replayFlags.recalculate)
	if err != nil {
		return err
	}
	if replayFlags.output != "" {
		if err := artifact.WriteJSONAtomic(replayFlags.output, result); err != nil {
			return fmt.Errorf("write replay output: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, result)
	}
	fmt.Fprintf(out, "%s %s (%s)\n", colors.Heading("Event:"), result.EventID, result.Status)
	fmt.Fprintf(out, "Inputs:   %d evidence, %d claims\n", result.EvidenceCount, result.ClaimsCount)
	printMetrics(out, result.Metrics)
	if result.ReplayFile != "" {
		fmt.Fprintf(out, "Written:  %s\n", result.ReplayFile)
	}
	if result.DeterministicCheck != "" {
		fmt.Fprintf(out, "Deterministic check: %s\n", deterministicColor(result.DeterministicCheck))
	}
	if result.Comparison != nil {
		printComparison(out, result.Comparison)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	svc, err := newReplayService(logger)
	if err != nil {
		return err
	}

	var reports []*domain.ValidationReport
	if validateAll {
		reports, err = svc.BatchValidate()
	} else {
		var r *domain.ValidationReport
		r, err = svc.ValidateContracts(args[0])
		reports = []*domain.ValidationReport{r}
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		if validateAll {
			err = printJSON(out, reports)
		} else {
			err = printJSON(out, reports[0])
		}
		if err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			printValidation(out, r)
		}
	}
	for _, r := range reports {
		if !r.Valid {
			return errChecksFailed
		}
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	svc, err := newReplayService(logger)
	if err != nil {
		return err
	}
	var ids []string
	if len(args) > 0 {
		ids = args
	}
	result, err := svc.BatchReplay(ids, batchRecalc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, result)
	}
	t := newTable(out)
	t.AppendHeader(table.Row{"Event", "Status", "Decision", "Confidence", "Deterministic"})
	for _, e := range result.Events {
		if e.Error != "" {
			t.AppendRow(table.Row{e.EventID, colors.Error(e.Status), "-", "-", e.Error})
			continue
		}
		t.AppendRow(table.Row{e.EventID, colors.Success(e.Status), labelColor(e.Decision), fmt.Sprintf("%.3f", e.Confidence), deterministicColor(e.DeterministicCheck)})
	}
	t.AppendFooter(table.Row{"total", result.TotalEvents, "ok", result.SuccessfulReplays, fmt.Sprintf("failed %d", result.FailedReplays)})
	t.Render()
	if result.FailedReplays > 0 {
		return errChecksFailed
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	svc, err := newReplayService(logger)
	if err != nil {
		return err
	}
	dest := exportDest
	if dest == "" {
		dest = config.ExportDir()
	}
	manifest, err := svc.Export(args[0], dest)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, map[string]string{"manifest_path": manifest})
	}
	fmt.Fprintf(out, "%s exported %s\n", mark(true), manifest)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	svc, err := newReplayService(logger)
	if err != nil {
		return err
	}
	v, err := svc.VerifyExport(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		if err := printJSON(out, v); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s %s %s\n", colors.Heading("Bundle:"), v.Dir, v.EventID)
		fmt.Fprintf(out, "  %s directory hash %s\n", mark(v.DirectoryHashOK), v.ActualHash)
		fmt.Fprintf(out, "  %s engine hash\n", mark(v.EngineHashMatches))
		for _, a := range v.MissingArtifacts {
			fmt.Fprintf(out, "  %s missing: %s\n", colors.Error(icons.Fail), a)
		}
	}
	if !v.DirectoryHashOK || len(v.MissingArtifacts) > 0 {
		return errChecksFailed
	}
	return nil
}
