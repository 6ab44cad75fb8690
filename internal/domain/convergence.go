package domain

import (
	"github.com/google/uuid"
)

type FinalLabel string

const (
	LabelBenign    FinalLabel = "BENIGN"
	LabelMalicious FinalLabel = "MALICIOUS"
	LabelUncertain FinalLabel = "UNCERTAIN"
)

func (l FinalLabel) IsValid() bool {
	switch l {
	case LabelBenign, LabelMalicious, LabelUncertain:
		return true
	}
	return false
}

// Reason codes attached to a decision.
const (
	ReasonConsensusBenign      = "CONSENSUS_BENIGN"
	ReasonConsensusMalicious   = "CONSENSUS_MALICIOUS"
	ReasonNoMajority           = "NO_MAJORITY_LABEL"
	ReasonHighResidual         = "HIGH_RESIDUAL_DISAGREEMENT"
	ReasonLowOverlap           = "LOW_EVIDENCE_OVERLAP"
	ReasonAmbiguousEvidence    = "AMBIGUOUS_EVIDENCE"
	ReasonConfidenceCalibrated = "CONFIDENCE_CALIBRATED"
)

// Thresholds are the constants of the convergence formulas. They are part of
// the reproducibility contract and are persisted with every metrics object.
type Thresholds struct {
	ConsensusThreshold float64 `json:"consensus_threshold"`
	JaccardThreshold   float64 `json:"jaccard_threshold"`
	ResidualThreshold  float64 `json:"residual_disagreement_threshold"`
	EntropyWeight      float64 `json:"entropy_weight"`
	OverlapWeight      float64 `json:"overlap_weight"`
	ConflictWeight     float64 `json:"conflict_weight"`
	// MinMajority is the number of agents that must share a BENIGN or
	// MALICIOUS label. Zero or less means more than half of the participants.
	MinMajority int `json:"min_majority"`
}

type Decision struct {
	Label       FinalLabel `json:"label"`
	Confidence  float64    `json:"confidence"`
	ReasonCodes []string   `json:"reason_codes"`
}

type ConfidenceAlignment struct {
	MeanConfidence     float64 `json:"mean_confidence"`
	VarianceConfidence float64 `json:"variance_confidence"`
}

// ConvergenceMetrics is the engine output for one event.
type ConvergenceMetrics struct {
	EventID                 uuid.UUID             `json:"event_id"`
	AgentLabels             map[string]FinalLabel `json:"agent_labels"`
	EvidenceOverlap         map[string]float64    `json:"evidence_overlap"`
	TripleIntersectionCount *int                  `json:"triple_intersection_count,omitempty"`
	DisagreementEntropy     float64               `json:"disagreement_entropy"`
	ConfidenceAlignment     ConfidenceAlignment   `json:"confidence_alignment"`
	ResidualDisagreement    float64               `json:"residual_disagreement"`
	Decision                Decision              `json:"decision"`
	Thresholds              *Thresholds           `json:"thresholds,omitempty"`
}

// MeanOverlap is the mean of the pairwise overlap scores.
func (m *ConvergenceMetrics) MeanOverlap() float64 {
	if len(m.EvidenceOverlap) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.EvidenceOverlap {
		sum += v
	}
	return sum / float64(len(m.EvidenceOverlap))
}

// Clone returns a deep copy.
func (m *ConvergenceMetrics) Clone() *ConvergenceMetrics {
	out := *m
	out.AgentLabels = make(map[string]FinalLabel, len(m.AgentLabels))
	for k, v := range m.AgentLabels {
		out.AgentLabels[k] = v
	}
	out.EvidenceOverlap = make(map[string]float64, len(m.EvidenceOverlap))
	for k, v := range m.EvidenceOverlap {
		out.EvidenceOverlap[k] = v
	}
	if m.TripleIntersectionCount != nil {
		n := *m.TripleIntersectionCount
		out.TripleIntersectionCount = &n
	}
	if m.Thresholds != nil {
		t := *m.Thresholds
		out.Thresholds = &t
	}
	out.Decision.ReasonCodes = append([]string(nil), m.Decision.ReasonCodes...)
	return &out
}
