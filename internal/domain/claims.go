package domain

import (
	"github.com/google/uuid"
)

type ClaimDirection string

const (
	SupportsBenign    ClaimDirection = "supports_benign"
	SupportsMalicious ClaimDirection = "supports_malicious"
	NeutralOrUnclear  ClaimDirection = "neutral_or_unclear"
)

func (d ClaimDirection) IsValid() bool {
	switch d {
	case SupportsBenign, SupportsMalicious, NeutralOrUnclear:
		return true
	}
	return false
}

// Stance is the interpretive bias an agent starts from. Its claims may
// contradict it.
type Stance string

const (
	StanceBenign    Stance = "BENIGN_HYPOTHESIS"
	StanceMalicious Stance = "MALICIOUS_HYPOTHESIS"
	StanceSkeptical Stance = "SKEPTICAL_HYPOTHESIS"
)

func (s Stance) IsValid() bool {
	switch s {
	case StanceBenign, StanceMalicious, StanceSkeptical:
		return true
	}
	return false
}

type Claim struct {
	ClaimID               uuid.UUID      `json:"claim_id"`
	Summary               string         `json:"summary"`
	Direction             ClaimDirection `json:"direction"`
	SupportingEvidenceIDs []uuid.UUID    `json:"supporting_evidence_ids"`
	CounterEvidenceIDs    []uuid.UUID    `json:"counter_evidence_ids"`
	ClaimConfidence       float64        `json:"claim_confidence"`
	Assumptions           []string       `json:"assumptions"`
}

type Gap struct {
	Gap          string `json:"gap"`
	WhyItMatters string `json:"why_it_matters"`
}

type AgentClaims struct {
	EventID         uuid.UUID `json:"event_id"`
	AgentID         string    `json:"agent_id"`
	Stance          Stance    `json:"stance"`
	Claims          []Claim   `json:"claims"`
	AgentConfidence float64   `json:"agent_confidence"`
	Gaps            []Gap     `json:"gaps"`
}

// NewEmptyClaims returns the claims substituted for an agent whose claims
// call failed: no claims, zero confidence, the role's default stance.
func NewEmptyClaims(eventID uuid.UUID, agentID string, stance Stance) *AgentClaims {
	return &AgentClaims{
		EventID:         eventID,
		AgentID:         agentID,
		Stance:          stance,
		Claims:          []Claim{},
		AgentConfidence: 0,
		Gaps:            []Gap{},
	}
}

// LabelScore is the confidence-weighted mean of claim directions in [-1, 1].
// Malicious claims count +confidence, benign claims -confidence, neutral
// claims add nothing to the sum but still weigh in the denominator.
func (c *AgentClaims) LabelScore() float64 {
	if len(c.Claims) == 0 {
		return 0
	}

	var weighted, total float64
	for _, claim := range c.Claims {
		w := claim.ClaimConfidence
		switch claim.Direction {
		case SupportsMalicious:
			weighted += w
		case SupportsBenign:
			weighted -= w
		}
		total += w
	}

	if total <= 0 {
		return 0
	}
	return weighted / total
}
