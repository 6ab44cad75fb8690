package domain

import (
	"github.com/google/uuid"
)

// ArtifactVersion is the format version stamped on every evidence extraction.
const ArtifactVersion = "1.0.0"

type EvidenceType string

const (
	EvidenceIP          EvidenceType = "ip"
	EvidenceDomain      EvidenceType = "domain"
	EvidenceURL         EvidenceType = "url"
	EvidenceFileHash    EvidenceType = "file_hash"
	EvidenceFilePath    EvidenceType = "file_path"
	EvidenceProcess     EvidenceType = "process"
	EvidenceCommandLine EvidenceType = "command_line"
	EvidenceRegistry    EvidenceType = "registry"
	EvidenceUser        EvidenceType = "user"
	EvidenceHost        EvidenceType = "host"
	EvidenceTimestamp   EvidenceType = "timestamp"
	EvidenceNetworkFlow EvidenceType = "network_flow"
	EvidenceEmail       EvidenceType = "email"
	EvidenceBehavior    EvidenceType = "behavior"
	EvidenceAlert       EvidenceType = "alert"
	EvidencePolicy      EvidenceType = "policy"
	EvidenceOther       EvidenceType = "other"
)

var validEvidenceTypes = map[EvidenceType]bool{
	EvidenceIP: true, EvidenceDomain: true, EvidenceURL: true, EvidenceFileHash: true,
	EvidenceFilePath: true, EvidenceProcess: true, EvidenceCommandLine: true, EvidenceRegistry: true,
	EvidenceUser: true, EvidenceHost: true, EvidenceTimestamp: true, EvidenceNetworkFlow: true,
	EvidenceEmail: true, EvidenceBehavior: true, EvidenceAlert: true, EvidencePolicy: true,
	EvidenceOther: true,
}

func (t EvidenceType) IsValid() bool {
	return validEvidenceTypes[t]
}

// SourceSpan anchors an evidence item to an exact slice of the incident text.
type SourceSpan struct {
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Quote     string `json:"quote"`
}

// Normalized is the (key, value) pair used for set-based evidence comparison.
type Normalized struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type EvidenceItem struct {
	EvidenceID           uuid.UUID    `json:"evidence_id"`
	Type                 EvidenceType `json:"type"`
	Value                string       `json:"value"`
	Normalized           Normalized   `json:"normalized"`
	SourceSpans          []SourceSpan `json:"source_spans"`
	ExtractionConfidence float64      `json:"extraction_confidence"`
	Notes                *string      `json:"notes"`
}

// EvidenceExtraction is one agent's evidence for one incident.
type EvidenceExtraction struct {
	EventID         uuid.UUID      `json:"event_id"`
	AgentID         string         `json:"agent_id"`
	ArtifactVersion string         `json:"artifact_version"`
	Evidence        []EvidenceItem `json:"evidence"`
}

// NewEmptyExtraction returns the extraction substituted for an agent whose
// evidence call failed.
func NewEmptyExtraction(eventID uuid.UUID, agentID string) *EvidenceExtraction {
	return &EvidenceExtraction{
		EventID:         eventID,
		AgentID:         agentID,
		ArtifactVersion: ArtifactVersion,
		Evidence:        []EvidenceItem{},
	}
}

// NormalizedSet returns the "key=value" strings of all items that carry both
// a normalized key and value. Item identifiers play no part.
func (e *EvidenceExtraction) NormalizedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(e.Evidence))
	for _, item := range e.Evidence {
		if item.Normalized.Key == "" || item.Normalized.Value == "" {
			continue
		}
		set[item.Normalized.Key+"="+item.Normalized.Value] = struct{}{}
	}
	return set
}

// EvidenceIDs returns the set of evidence identifiers in this extraction.
func (e *EvidenceExtraction) EvidenceIDs() map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool, len(e.Evidence))
	for _, item := range e.Evidence {
		ids[item.EvidenceID] = true
	}
	return ids
}
