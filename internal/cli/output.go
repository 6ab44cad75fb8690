package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

var icons = struct {
	Pass string
	Fail string
	Warn string
}{
	Pass: "✓",
	Fail: "✗",
	Warn: "⚠",
}

var colors = struct {
	Success func(a ...any) string
	Error   func(a ...any) string
	Warning func(a ...any) string
	Info    func(a ...any) string
	Heading func(a ...any) string
}{
	Success: color.New(color.FgGreen).SprintFunc(),
	Error:   color.New(color.FgRed).SprintFunc(),
	Warning: color.New(color.FgYellow).SprintFunc(),
	Info:    color.New(color.FgCyan).SprintFunc(),
	Heading: color.New(color.FgWhite, color.Bold).SprintFunc(),
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func mark(ok bool) string {
	if ok {
		return colors.Success(icons.Pass)
	}
	return colors.Error(icons.Fail)
}

func labelColor(l domain.FinalLabel) string {
	switch l {
	case domain.LabelMalicious:
		return colors.Error(string(l))
	case domain.LabelBenign:
		return colors.Success(string(l))
	default:
		return colors.Warning(string(l))
	}
}

func deterministicColor(check string) string {
	switch check {
	case domain.DeterministicPass:
		return colors.Success(check)
	case domain.DeterministicFail:
		return colors.Error(check)
	default:
		return check
	}
}

func printMetrics(out io.Writer, m *domain.ConvergenceMetrics) {
	fmt.Fprintf(out, "%s %s (confidence %.3f)\n", colors.Heading("Decision:"), labelColor(m.Decision.Label), m.Decision.Confidence)
	if len(m.Decision.ReasonCodes) > 0 {
		fmt.Fprintf(out, "Reasons:  %v\n", m.Decision.ReasonCodes)
	}
	fmt.Fprintf(out, "Entropy:  %.4f\n", m.DisagreementEntropy)
	fmt.Fprintf(out, "Residual: %.4f\n", m.ResidualDisagreement)
	fmt.Fprintf(out, "Mean confidence: %.3f (variance %.4f)\n",
		m.ConfidenceAlignment.MeanConfidence, m.ConfidenceAlignment.VarianceConfidence)

	labels := newTable(out)
	labels.AppendHeader(table.Row{"Agent", "Label"})
	for _, agent := range sortedKeys(m.AgentLabels) {
		labels.AppendRow(table.Row{agent, labelColor(m.AgentLabels[agent])})
	}
	labels.Render()

	if len(m.EvidenceOverlap) > 0 {
		overlap := newTable(out)
		overlap.AppendHeader(table.Row{"Pair", "Jaccard"})
		overlap.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		for _, pair := range sortedKeys(m.EvidenceOverlap) {
			overlap.AppendRow(table.Row{pair, fmt.Sprintf("%.4f", m.EvidenceOverlap[pair])})
		}
		if m.TripleIntersectionCount != nil {
			overlap.AppendFooter(table.Row{"shared by all", *m.TripleIntersectionCount})
		}
		overlap.Render()
	}
}

func printComparison(out io.Writer, c *domain.Comparison) {
	if c.Identical {
		fmt.Fprintf(out, "%s recomputed metrics match the original\n", mark(true))
		return
	}
	fmt.Fprintf(out, "%s recomputed metrics differ from the original\n", mark(false))
	t := newTable(out)
	t.AppendHeader(table.Row{"Field", "Original", "Recomputed", "Difference"})
	for _, field := range sortedKeys(c.Differences) {
		d := c.Differences[field]
		diff := "-"
		if d.Difference != nil {
			diff = fmt.Sprintf("%.6f", *d.Difference)
		}
		t.AppendRow(table.Row{field, fmt.Sprint(d.Original), fmt.Sprint(d.Recomputed), diff})
	}
	t.Render()
}

func printValidation(out io.Writer, r *domain.ValidationReport) {
	fmt.Fprintf(out, "%s %s %s\n", mark(r.Valid), colors.Heading("Event"), r.EventID)
	t := newTable(out)
	t.AppendHeader(table.Row{"Check", "Result"})
	for _, name := range sortedKeys(r.Checks) {
		t.AppendRow(table.Row{name, mark(r.Checks[name])})
	}
	t.Render()
	for _, a := range r.MissingArtifacts {
		fmt.Fprintf(out, "  %s missing: %s\n", colors.Error(icons.Fail), a)
	}
	for _, v := range r.Violations {
		fmt.Fprintf(out, "  %s %s\n", colors.Error(icons.Fail), v)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  %s %s\n", colors.Warning(icons.Warn), w)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
