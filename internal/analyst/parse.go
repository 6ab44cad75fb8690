package analyst

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

const defaultConfidence = 0.5

type rawEvidence struct {
	Evidence []struct {
		EvidenceID           string              `json:"evidence_id"`
		Type                 string              `json:"type"`
		Value                string              `json:"value"`
		SourceSpans          []domain.SourceSpan `json:"source_spans"`
		ExtractionConfidence *float64            `json:"extraction_confidence"`
		Notes                *string             `json:"notes"`
	} `json:"evidence"`
}

// parseEvidence turns a model response into a well-formed extraction. Items
// without a usable span are dropped, spans are re-anchored when the quote is
// found elsewhere in the text, and values are normalized for comparison.
func parseEvidence(resp string, eventID uuid.UUID, agentID, incidentText string) (*domain.EvidenceExtraction, error) {
	body, err := extractJSON(resp)
	if err != nil {
		return nil, err
	}
	var raw rawEvidence
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal evidence: %w", err)
	}

	out := domain.NewEmptyExtraction(eventID, agentID)
	seen := make(map[uuid.UUID]bool)
	for _, r := range raw.Evidence {
		value := strings.TrimSpace(r.Value)
		if value == "" {
			continue
		}
		spans := anchorSpans(r.SourceSpans, incidentText)
		if len(spans) == 0 {
			continue
		}

		typ := domain.EvidenceType(strings.ToLower(strings.TrimSpace(r.Type)))
		if !typ.IsValid() {
			typ = domain.EvidenceOther
		}
		id, err := uuid.Parse(r.EvidenceID)
		if err != nil || id == uuid.Nil || seen[id] {
			id = uuid.New()
		}
		seen[id] = true

		out.Evidence = append(out.Evidence, domain.EvidenceItem{
			EvidenceID:           id,
			Type:                 typ,
			Value:                value,
			Normalized:           domain.Normalized{Key: string(typ), Value: strings.ToLower(value)},
			SourceSpans:          spans,
			ExtractionConfidence: confidence(r.ExtractionConfidence),
			Notes:                r.Notes,
		})
	}
	return out, nil
}

func anchorSpans(spans []domain.SourceSpan, text string) []domain.SourceSpan {
	out := make([]domain.SourceSpan, 0, len(spans))
	for _, sp := range spans {
		if sp.Quote == "" {
			continue
		}
		if sp.StartChar >= 0 && sp.EndChar <= len(text) && sp.StartChar < sp.EndChar && text[sp.StartChar:sp.EndChar] == sp.Quote {
			out = append(out, sp)
			continue
		}
		if i := strings.Index(text, sp.Quote); i >= 0 {
			out = append(out, domain.SourceSpan{StartChar: i, EndChar: i + len(sp.Quote), Quote: sp.Quote})
			continue
		}
		// Keep a structurally valid span whose quote is not in the text;
		// contract validation reports it as a warning.
		if sp.StartChar >= 0 && sp.EndChar > sp.StartChar {
			out = append(out, sp)
		}
	}
	return out
}

type rawClaims struct {
	Stance string `json:"stance"`
	Claims []struct {
		Summary               string   `json:"summary"`
		Direction             string   `json:"direction"`
		SupportingEvidenceIDs []string `json:"supporting_evidence_ids"`
		CounterEvidenceIDs    []string `json:"counter_evidence_ids"`
		ClaimConfidence       *float64 `json:"claim_confidence"`
		Assumptions           []string `json:"assumptions"`
	} `json:"claims"`
	AgentConfidence *float64     `json:"agent_confidence"`
	Gaps            []domain.Gap `json:"gaps"`
}

// parseClaims turns a model response into well-formed claims. Evidence ids
// not present in the agent's own extraction are dropped.
func parseClaims(resp string, eventID uuid.UUID, role domain.Role, evidence *domain.EvidenceExtraction) (*domain.AgentClaims, error) {
	body, err := extractJSON(resp)
	if err != nil {
		return nil, err
	}
	var raw rawClaims
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	stance := domain.Stance(strings.ToUpper(strings.TrimSpace(raw.Stance)))
	if !stance.IsValid() {
		stance = role.DefaultStance
	}
	out := domain.NewEmptyClaims(eventID, role.Name, stance)
	out.AgentConfidence = confidence(raw.AgentConfidence)

	known := evidence.EvidenceIDs()
	for _, r := range raw.Claims {
		summary := strings.TrimSpace(r.Summary)
		if summary == "" {
			continue
		}
		dir := domain.ClaimDirection(strings.ToLower(strings.TrimSpace(r.Direction)))
		if !dir.IsValid() {
			dir = domain.NeutralOrUnclear
		}
		assumptions := r.Assumptions
		if assumptions == nil {
			assumptions = []string{}
		}
		out.Claims = append(out.Claims, domain.Claim{
			ClaimID:               uuid.New(),
			Summary:               summary,
			Direction:             dir,
			SupportingEvidenceIDs: knownIDs(r.SupportingEvidenceIDs, known),
			CounterEvidenceIDs:    knownIDs(r.CounterEvidenceIDs, known),
			ClaimConfidence:       confidence(r.ClaimConfidence),
			Assumptions:           assumptions,
		})
	}

	for _, g := range raw.Gaps {
		gap := strings.TrimSpace(g.Gap)
		if gap == "" {
			continue
		}
		why := strings.TrimSpace(g.WhyItMatters)
		if why == "" {
			why = "unspecified"
		}
		out.Gaps = append(out.Gaps, domain.Gap{Gap: gap, WhyItMatters: why})
	}
	return out, nil
}

func knownIDs(raw []string, known map[uuid.UUID]bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err == nil && known[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

func confidence(v *float64) float64 {
	if v == nil {
		return defaultConfidence
	}
	switch {
	case *v < 0:
		return 0
	case *v > 1:
		return 1
	}
	return *v
}
