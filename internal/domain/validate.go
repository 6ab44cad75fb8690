package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

type violations []error

func (v *violations) add(format string, args ...any) {
	*v = append(*v, fmt.Errorf(format, args...))
}

func (v violations) err() error {
	return errors.Join(v...)
}

// Validate checks the structural constraints of an extraction and returns
// every violation found.
func (e *EvidenceExtraction) Validate() error {
	var v violations
	if e.EventID == uuid.Nil {
		v.add("event_id: required")
	}
	if !ValidAgentID(e.AgentID) {
		v.add("agent_id: invalid value %q", e.AgentID)
	}
	for i, item := range e.Evidence {
		p := fmt.Sprintf("evidence[%d]", i)
		if !item.Type.IsValid() {
			v.add("%s.type: invalid value %q", p, item.Type)
		}
		if item.Value == "" {
			v.add("%s.value: must not be empty", p)
		}
		if item.Normalized.Key == "" {
			v.add("%s.normalized.key: must not be empty", p)
		}
		if item.Normalized.Value == "" {
			v.add("%s.normalized.value: must not be empty", p)
		}
		if len(item.SourceSpans) == 0 {
			v.add("%s.source_spans: at least one span required", p)
		}
		for j, span := range item.SourceSpans {
			sp := fmt.Sprintf("%s.source_spans[%d]", p, j)
			if span.StartChar < 0 {
				v.add("%s.start_char: must be >= 0", sp)
			}
			if span.EndChar <= 0 {
				v.add("%s.end_char: must be > 0", sp)
			}
			if span.EndChar < span.StartChar {
				v.add("%s: end_char before start_char", sp)
			}
			if span.Quote == "" {
				v.add("%s.quote: must not be empty", sp)
			}
		}
		if !inUnitRange(item.ExtractionConfidence) {
			v.add("%s.extraction_confidence: %v outside [0,1]", p, item.ExtractionConfidence)
		}
	}
	return v.err()
}

// SpanQuoteMismatches lists spans whose quote does not occur in the incident
// text. This is advisory: agents may quote loosely.
func (e *EvidenceExtraction) SpanQuoteMismatches(incidentText string) []string {
	var out []string
	for i, item := range e.Evidence {
		for j, span := range item.SourceSpans {
			if span.Quote != "" && !strings.Contains(incidentText, span.Quote) {
				out = append(out, fmt.Sprintf("%s evidence[%d].source_spans[%d]: quote not found in incident text", e.AgentID, i, j))
			}
		}
	}
	return out
}

func (c *AgentClaims) Validate() error {
	var v violations
	if c.EventID == uuid.Nil {
		v.add("event_id: required")
	}
	if !ValidAgentID(c.AgentID) {
		v.add("agent_id: invalid value %q", c.AgentID)
	}
	if !c.Stance.IsValid() {
		v.add("stance: invalid value %q", c.Stance)
	}
	if !inUnitRange(c.AgentConfidence) {
		v.add("agent_confidence: %v outside [0,1]", c.AgentConfidence)
	}
	for i, claim := range c.Claims {
		p := fmt.Sprintf("claims[%d]", i)
		if claim.Summary == "" {
			v.add("%s.summary: must not be empty", p)
		}
		if !claim.Direction.IsValid() {
			v.add("%s.direction: invalid value %q", p, claim.Direction)
		}
		if !inUnitRange(claim.ClaimConfidence) {
			v.add("%s.claim_confidence: %v outside [0,1]", p, claim.ClaimConfidence)
		}
	}
	for i, gap := range c.Gaps {
		if gap.Gap == "" {
			v.add("gaps[%d].gap: must not be empty", i)
		}
		if gap.WhyItMatters == "" {
			v.add("gaps[%d].why_it_matters: must not be empty", i)
		}
	}
	return v.err()
}

func (m *ConvergenceMetrics) Validate() error {
	var v violations
	if m.EventID == uuid.Nil {
		v.add("event_id: required")
	}
	if len(m.AgentLabels) == 0 {
		v.add("agent_labels: must not be empty")
	}
	for agent, label := range m.AgentLabels {
		if !label.IsValid() {
			v.add("agent_labels.%s: invalid value %q", agent, label)
		}
	}
	for pair, score := range m.EvidenceOverlap {
		if !inUnitRange(score) {
			v.add("evidence_overlap.%s: %v outside [0,1]", pair, score)
		}
	}
	if !inUnitRange(m.DisagreementEntropy) {
		v.add("disagreement_entropy: %v outside [0,1]", m.DisagreementEntropy)
	}
	if !inUnitRange(m.ResidualDisagreement) {
		v.add("residual_disagreement: %v outside [0,1]", m.ResidualDisagreement)
	}
	if !inUnitRange(m.ConfidenceAlignment.MeanConfidence) {
		v.add("confidence_alignment.mean_confidence: %v outside [0,1]", m.ConfidenceAlignment.MeanConfidence)
	}
	if m.ConfidenceAlignment.VarianceConfidence < 0 {
		v.add("confidence_alignment.variance_confidence: must be >= 0")
	}
	if !m.Decision.Label.IsValid() {
		v.add("decision.label: invalid value %q", m.Decision.Label)
	}
	if !inUnitRange(m.Decision.Confidence) {
		v.add("decision.confidence: %v outside [0,1]", m.Decision.Confidence)
	}
	return v.err()
}

func requireKeys(v *violations, prefix string, obj map[string]json.RawMessage, keys ...string) {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok || string(raw) == "null" {
			v.add("%s%s: required field missing", prefix, k)
		}
	}
}

// ValidateEvidenceJSON parses a stored evidence artifact and checks required
// fields and structural constraints. On success the parsed value is returned.
func ValidateEvidenceJSON(data []byte) (*EvidenceExtraction, error) {
	var raw struct {
		Evidence []map[string]json.RawMessage `json:"evidence"`
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse evidence: %w", err)
	}
	var v violations
	requireKeys(&v, "", top, "event_id", "agent_id", "evidence")
	if err := json.Unmarshal(data, &raw); err == nil {
		for i, item := range raw.Evidence {
			requireKeys(&v, fmt.Sprintf("evidence[%d].", i), item, "type", "value", "normalized", "source_spans", "extraction_confidence")
		}
	}

	var e EvidenceExtraction
	if err := json.Unmarshal(data, &e); err != nil {
		v = append(v, fmt.Errorf("decode evidence: %w", err))
		return nil, v.err()
	}
	if err := e.Validate(); err != nil {
		v = append(v, err)
	}
	if len(v) > 0 {
		return nil, v.err()
	}
	return &e, nil
}

func ValidateClaimsJSON(data []byte) (*AgentClaims, error) {
	var raw struct {
		Claims []map[string]json.RawMessage `json:"claims"`
		Gaps   []map[string]json.RawMessage `json:"gaps"`
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	var v violations
	requireKeys(&v, "", top, "event_id", "agent_id", "stance", "claims", "agent_confidence")
	if err := json.Unmarshal(data, &raw); err == nil {
		for i, claim := range raw.Claims {
			requireKeys(&v, fmt.Sprintf("claims[%d].", i), claim, "summary", "direction", "claim_confidence")
		}
		for i, gap := range raw.Gaps {
			requireKeys(&v, fmt.Sprintf("gaps[%d].", i), gap, "gap", "why_it_matters")
		}
	}

	var c AgentClaims
	if err := json.Unmarshal(data, &c); err != nil {
		v = append(v, fmt.Errorf("decode claims: %w", err))
		return nil, v.err()
	}
	if err := c.Validate(); err != nil {
		v = append(v, err)
	}
	if len(v) > 0 {
		return nil, v.err()
	}
	return &c, nil
}

func ValidateMetricsJSON(data []byte) (*ConvergenceMetrics, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse convergence metrics: %w", err)
	}
	var v violations
	requireKeys(&v, "", top, "event_id", "agent_labels", "disagreement_entropy", "residual_disagreement", "decision")

	var m ConvergenceMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		v = append(v, fmt.Errorf("decode convergence metrics: %w", err))
		return nil, v.err()
	}
	if err := m.Validate(); err != nil {
		v = append(v, err)
	}
	if len(v) > 0 {
		return nil, v.err()
	}
	return &m, nil
}

// Violations flattens a joined validation error into one message per
// violation.
func Violations(err error) []string {
	if err == nil {
		return nil
	}
	var out []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, Violations(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
