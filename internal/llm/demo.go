package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

var (
	demoIPPattern      = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	demoProcessPattern = regexp.MustCompile(`(?i)\b[\w-]+\.exe\b`)
	demoHostPattern    = regexp.MustCompile(`\b[a-z]+-\d+\b`)
	demoIDPattern      = regexp.MustCompile(`"evidence_id":\s*"([0-9a-f-]{36})"`)
	demoSuspicious     = regexp.MustCompile(`(?i)-enc\b|mimikatz|exfil|ransom|beacon|lsass|credential dump`)
)

// NewDemoClient returns a mock that answers analyst prompts offline with
// deterministic evidence and claims derived from the incident text. It lets
// the server and CLI run end to end without a provider key.
func NewDemoClient() *MockClient {
	return &MockClient{Handler: demoRespond}
}

type demoSpan struct {
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Quote     string `json:"quote"`
}

type demoEvidence struct {
	Type                 string     `json:"type"`
	Value                string     `json:"value"`
	SourceSpans          []demoSpan `json:"source_spans"`
	ExtractionConfidence float64    `json:"extraction_confidence"`
}

type demoClaim struct {
	Summary               string   `json:"summary"`
	Direction             string   `json:"direction"`
	SupportingEvidenceIDs []string `json:"supporting_evidence_ids"`
	ClaimConfidence       float64  `json:"claim_confidence"`
}

func demoRespond(req domain.CompletionRequest) (string, error) {
	text := demoIncident(req.User)
	if strings.Contains(req.System, `"source_spans"`) {
		return demoEvidenceJSON(text)
	}
	return demoClaimsJSON(req.System, text, req.User)
}

// demoIncident recovers the incident text from a user prompt.
func demoIncident(user string) string {
	rest, ok := strings.CutPrefix(user, "Incident text:\n")
	if !ok {
		return user
	}
	if i := strings.Index(rest, "\n\n"); i >= 0 {
		return rest[:i]
	}
	return rest
}

func demoEvidenceJSON(text string) (string, error) {
	var items []demoEvidence
	add := func(typ string, re *regexp.Regexp) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			quote := text[loc[0]:loc[1]]
			items = append(items, demoEvidence{
				Type:                 typ,
				Value:                quote,
				SourceSpans:          []demoSpan{{StartChar: loc[0], EndChar: loc[1], Quote: quote}},
				ExtractionConfidence: 0.9,
			})
		}
	}
	add("ip", demoIPPattern)
	add("process", demoProcessPattern)
	add("host", demoHostPattern)

	data, err := json.Marshal(map[string]any{"evidence": items})
	return string(data), err
}

func demoClaimsJSON(system, text, user string) (string, error) {
	var ids []string
	for _, m := range demoIDPattern.FindAllStringSubmatch(user, -1) {
		ids = append(ids, m[1])
	}

	direction, summary := "supports_benign", "activity matches routine administration"
	if demoSuspicious.MatchString(text) {
		direction, summary = "supports_malicious", "activity matches known attacker tradecraft"
	}
	if strings.Contains(system, "skeptical analyst") {
		direction, summary = "neutral_or_unclear", "the record lacks context to decide"
	}

	claims := []demoClaim{{
		Summary:               summary,
		Direction:             direction,
		SupportingEvidenceIDs: ids,
		ClaimConfidence:       0.7,
	}}
	data, err := json.Marshal(map[string]any{
		"claims":           claims,
		"agent_confidence": 0.6,
		"gaps":             []map[string]string{{"gap": "no endpoint telemetry", "why_it_matters": "would confirm process lineage"}},
	})
	return string(data), err
}
