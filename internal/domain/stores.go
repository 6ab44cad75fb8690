package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Analyst is the capability every configured role exposes. Implementations
// are remote and non-deterministic; callers treat any error as a failed call.
type Analyst interface {
	Role() Role
	ExtractEvidence(ctx context.Context, eventID uuid.UUID, incidentText string) (*EvidenceExtraction, error)
	GenerateClaims(ctx context.Context, eventID uuid.UUID, incidentText string, evidence *EvidenceExtraction) (*AgentClaims, error)
}

// CompletionRequest is a single system+user prompt exchange.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// AnalysisRecorder receives completed analyses for relational bookkeeping.
// It never participates in the decision.
type AnalysisRecorder interface {
	Record(ctx context.Context, result *AnalysisResult, metrics *ConvergenceMetrics) error
	Stats(ctx context.Context, since time.Time) (*AnalysisStats, error)
}

type AnalysisStats struct {
	Since                    time.Time          `json:"since"`
	TotalEvents              int                `json:"total_events"`
	Decisions                map[FinalLabel]int `json:"decisions"`
	MeanResidualDisagreement float64            `json:"mean_residual_disagreement"`
	MeanDecisionConfidence   float64            `json:"mean_decision_confidence"`
	DegradedAgentRuns        int                `json:"degraded_agent_runs"`
}
