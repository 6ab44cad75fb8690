package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

var analyzeFlags struct {
	file    string
	text    string
	eventID string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the analyst panel over an incident report",
	Example: `  dissent analyze --file incident.txt
  cat incident.txt | dissent analyze --file -
  dissent analyze --text "Outbound traffic from WS-042 to 185.220.101.4"`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.file, "file", "f", "", "read the incident from a file (- for stdin)")
	f.StringVarP(&analyzeFlags.text, "text", "t", "", "incident text")
	f.StringVar(&analyzeFlags.eventID, "event-id", "", "use this event id instead of a fresh one")
	analyzeCmd.MarkFlagsMutuallyExclusive("file", "text")
	analyzeCmd.MarkFlagsOneRequired("file", "text")
}

func readIncident(in io.Reader) (string, error) {
	if analyzeFlags.text != "" {
		return analyzeFlags.text, nil
	}
	if analyzeFlags.file == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(analyzeFlags.file)
	if err != nil {
		return "", fmt.Errorf("read incident: %w", err)
	}
	return string(data), nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	text, err := readIncident(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyIncident
	}

	var eventID *uuid.UUID
	if analyzeFlags.eventID != "" {
		id, err := uuid.Parse(analyzeFlags.eventID)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrInvalidEventID, analyzeFlags.eventID)
		}
		eventID = &id
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	svc, err := newAnalysisService(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := svc.Analyze(ctx, text, eventID)
	if errors.Is(err, context.Canceled) {
		return errors.New("analysis interrupted, nothing was written")
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, result)
	}
	printAnalysis(out, result)
	return nil
}

func printAnalysis(out io.Writer, r *domain.AnalysisResult) {
	fmt.Fprintf(out, "%s %s\n", colors.Heading("Event:"), r.EventID)
	fmt.Fprintf(out, "%s %s (confidence %.3f)\n", colors.Heading("Decision:"), labelColor(r.Decision.Label), r.Decision.Confidence)
	if len(r.Decision.ReasonCodes) > 0 {
		fmt.Fprintf(out, "Reasons:  %v\n", r.Decision.ReasonCodes)
	}
	fmt.Fprintf(out, "Status:   %s\n", r.EpistemicStatus)
	if r.Calibrated {
		fmt.Fprintf(out, "%s confidence calibrated; stored artifacts hold the raw value\n", colors.Info("note:"))
	}

	agents := newTable(out)
	agents.AppendHeader(table.Row{"Agent", "Label", "Confidence", "Claims", "Gaps", "Weight", ""})
	for _, name := range sortedKeys(r.Summary.Agents) {
		a := r.Summary.Agents[name]
		degraded := ""
		if a.Degraded {
			degraded = colors.Warning(icons.Warn + " degraded")
		}
		agents.AppendRow(table.Row{name, labelColor(a.Label), fmt.Sprintf("%.2f", a.Confidence), a.NumClaims, a.NumGaps, fmt.Sprintf("%.2f", a.Weight), degraded})
	}
	agents.AppendFooter(table.Row{"evidence items", r.Summary.TotalEvidenceItems})
	agents.Render()

	fmt.Fprintf(out, "Entropy:  %.4f\n", r.Summary.DisagreementEntropy)
	fmt.Fprintf(out, "Residual: %.4f\n", r.Summary.ResidualDisagreement)
	for _, f := range r.AgentFailures {
		fmt.Fprintf(out, "  %s %s failed at %s: %s\n", colors.Warning(icons.Warn), f.Agent, f.Stage, f.Error)
	}
	fmt.Fprintf(out, "Artifacts: %s\n", r.ArtifactsLocation)
}
