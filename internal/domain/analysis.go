package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline stages at which an agent call can fail.
const (
	StageEvidence = "evidence"
	StageClaims   = "claims"
)

// AgentFailure records an agent call that was degraded to an empty result.
type AgentFailure struct {
	Agent string `json:"agent"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type AgentSummary struct {
	Label      FinalLabel `json:"label"`
	Confidence float64    `json:"confidence"`
	NumClaims  int        `json:"num_claims"`
	NumGaps    int        `json:"num_gaps"`
	LabelScore float64    `json:"label_score"`
	Weight     float64    `json:"weight"`
	Degraded   bool       `json:"degraded"`
}

type AnalysisSummary struct {
	TotalEvidenceItems      int                     `json:"total_evidence_items"`
	Agents                  map[string]AgentSummary `json:"agents"`
	EvidenceOverlap         map[string]float64      `json:"evidence_overlap"`
	TripleIntersectionCount *int                    `json:"triple_intersection_count,omitempty"`
	DisagreementEntropy     float64                 `json:"disagreement_entropy"`
	ResidualDisagreement    float64                 `json:"residual_disagreement"`
	ConfidenceAlignment     ConfidenceAlignment     `json:"confidence_alignment"`
}

// AnalysisResult is the output record of one analysis run.
type AnalysisResult struct {
	EventID           uuid.UUID       `json:"event_id"`
	Timestamp         time.Time       `json:"timestamp"`
	IncidentPreview   string          `json:"incident_preview"`
	Summary           AnalysisSummary `json:"summary"`
	Decision          Decision        `json:"decision"`
	EpistemicStatus   string          `json:"epistemic_status"`
	ArtifactsLocation string          `json:"artifacts_location"`
	AgentFailures     []AgentFailure  `json:"agent_failures,omitempty"`
	Calibrated        bool            `json:"calibrated"`
}

// Replay statuses.
const (
	ReplayLoadedFromStorage = "loaded_from_storage"
	ReplayRecomputed        = "recomputed"
)

type FieldDiff struct {
	Original   any `json:"original"`
	Recomputed any `json:"recomputed"`
	// Difference is the absolute difference for numeric fields, nil otherwise.
	Difference *float64 `json:"difference,omitempty"`
}

type Comparison struct {
	Identical      bool                 `json:"identical"`
	Differences    map[string]FieldDiff `json:"differences"`
	DecisionMatch  bool                 `json:"decision_match"`
	ConfidenceDiff float64              `json:"confidence_diff"`
}

type ReplayResult struct {
	EventID            string              `json:"event_id"`
	Status             string              `json:"status"`
	Metrics            *ConvergenceMetrics `json:"convergence_metrics"`
	EvidenceCount      int                 `json:"evidence_extractions_count"`
	ClaimsCount        int                 `json:"agent_claims_count"`
	IncidentPreview    string              `json:"incident_text_preview,omitempty"`
	ReplayFile         string              `json:"replay_file,omitempty"`
	Comparison         *Comparison         `json:"comparison_with_original,omitempty"`
	DeterministicCheck string              `json:"deterministic_check,omitempty"`
}

// Deterministic check outcomes reported by a recomputing replay.
const (
	DeterministicPass       = "identical"
	DeterministicFail       = "differs"
	DeterministicNoOriginal = "no_original"
)

type ValidationReport struct {
	EventID          string          `json:"event_id"`
	Valid            bool            `json:"valid"`
	Checks           map[string]bool `json:"checks"`
	MissingArtifacts []string        `json:"missing_artifacts"`
	InvalidArtifacts []string        `json:"invalid_artifacts"`
	Violations       []string        `json:"violations"`
	Warnings         []string        `json:"warnings,omitempty"`
	HasConvergence   bool            `json:"has_convergence"`
}

type BatchEntry struct {
	EventID            string     `json:"event_id"`
	Status             string     `json:"status"`
	Decision           FinalLabel `json:"decision,omitempty"`
	Confidence         float64    `json:"confidence,omitempty"`
	DeterministicCheck string     `json:"deterministic_check,omitempty"`
	Error              string     `json:"error,omitempty"`
}

type BatchResult struct {
	TotalEvents       int          `json:"total_events"`
	SuccessfulReplays int          `json:"successful_replays"`
	FailedReplays     int          `json:"failed_replays"`
	Events            []BatchEntry `json:"events"`
}

// ExportManifest describes a self-verifying reproducibility bundle.
type ExportManifest struct {
	EventID         string    `json:"event_id"`
	ExportTimestamp time.Time `json:"export_timestamp"`
	Version         string    `json:"version"`
	EngineHash      string    `json:"engine_hash"`
	Artifacts       []string  `json:"artifacts"`
	DirectoryHash   string    `json:"directory_hash"`
}

type ExportVerification struct {
	Dir               string   `json:"dir"`
	EventID           string   `json:"event_id"`
	DirectoryHashOK   bool     `json:"directory_hash_ok"`
	ExpectedHash      string   `json:"expected_hash"`
	ActualHash        string   `json:"actual_hash"`
	EngineHashMatches bool     `json:"engine_hash_matches"`
	MissingArtifacts  []string `json:"missing_artifacts,omitempty"`
}
