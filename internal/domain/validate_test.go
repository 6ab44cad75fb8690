package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func validExtraction() *EvidenceExtraction {
	e := NewEmptyExtraction(uuid.New(), "benign")
	e.Evidence = append(e.Evidence, item("ip", "10.0.0.5"))
	return e
}

func TestEvidenceValidate(t *testing.T) {
	e := validExtraction()
	if err := e.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	bad := validExtraction()
	bad.AgentID = "Bad_Agent"
	bad.Evidence[0].Type = "nonsense"
	bad.Evidence[0].ExtractionConfidence = 1.5
	bad.Evidence[0].SourceSpans = nil

	got := Violations(bad.Validate())
	if len(got) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(got), got)
	}
}

func TestClaimsValidateCollectsAll(t *testing.T) {
	c := &AgentClaims{
		EventID:         uuid.New(),
		AgentID:         "malicious",
		Stance:          "WHATEVER",
		AgentConfidence: -0.1,
		Claims:          []Claim{{Summary: "", Direction: "up", ClaimConfidence: 2}},
		Gaps:            []Gap{{Gap: "no edr"}},
	}
	got := Violations(c.Validate())
	// stance, agent_confidence, summary, direction, claim_confidence, why_it_matters
	if len(got) != 6 {
		t.Fatalf("expected 6 violations, got %d: %v", len(got), got)
	}
}

func TestMetricsValidate(t *testing.T) {
	m := &ConvergenceMetrics{
		EventID:              uuid.New(),
		AgentLabels:          map[string]FinalLabel{"benign": LabelBenign, "skeptic": "MAYBE"},
		EvidenceOverlap:      map[string]float64{"benign_skeptic": 1.2},
		DisagreementEntropy:  0.5,
		ResidualDisagreement: 0.4,
		Decision:             Decision{Label: LabelUncertain, Confidence: 0.6},
	}
	got := Violations(m.Validate())
	if len(got) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(got), got)
	}
}

func TestValidateEvidenceJSON(t *testing.T) {
	e := validExtraction()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ValidateEvidenceJSON(data)
	if err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if len(parsed.Evidence) != 1 {
		t.Errorf("expected 1 item, got %d", len(parsed.Evidence))
	}

	t.Run("missing keys", func(t *testing.T) {
		raw := `{"agent_id":"benign","evidence":[{"type":"ip","value":"x"}]}`
		_, err := ValidateEvidenceJSON([]byte(raw))
		if err == nil {
			t.Fatal("expected error")
		}
		msg := err.Error()
		for _, want := range []string{"event_id", "evidence[0].normalized", "evidence[0].source_spans", "evidence[0].extraction_confidence"} {
			if !strings.Contains(msg, want) {
				t.Errorf("missing violation %q in %q", want, msg)
			}
		}
	})

	t.Run("empty normalized form", func(t *testing.T) {
		e := validExtraction()
		e.Evidence[0].Normalized = Normalized{Key: "ip"}
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		_, err = ValidateEvidenceJSON(data)
		got := Violations(err)
		if len(got) != 1 || !strings.Contains(got[0], "evidence[0].normalized.value") {
			t.Fatalf("expected one normalized.value violation, got %v", got)
		}

		e.Evidence[0].Normalized = Normalized{}
		if got := Violations(e.Validate()); len(got) != 2 {
			t.Errorf("expected key and value violations, got %v", got)
		}
	})

	t.Run("not json", func(t *testing.T) {
		if _, err := ValidateEvidenceJSON([]byte("{")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestValidateClaimsJSON(t *testing.T) {
	raw := `{"event_id":"` + uuid.NewString() + `","agent_id":"skeptic","stance":"SKEPTICAL_HYPOTHESIS",
		"agent_confidence":0.4,"claims":[{"summary":"odd login","direction":"neutral_or_unclear"}],"gaps":[]}`
	_, err := ValidateClaimsJSON([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "claims[0].claim_confidence") {
		t.Errorf("expected missing claim_confidence, got %v", err)
	}
}

func TestValidateMetricsJSON(t *testing.T) {
	_, err := ValidateMetricsJSON([]byte(`{"event_id":"` + uuid.NewString() + `"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if n := len(Violations(err)); n < 4 {
		t.Errorf("expected every missing key reported, got %d: %v", n, err)
	}
}

func TestSpanQuoteMismatches(t *testing.T) {
	e := validExtraction()
	if got := e.SpanQuoteMismatches("connection from 10.0.0.5 on port 22"); len(got) != 0 {
		t.Errorf("expected no mismatches, got %v", got)
	}
	if got := e.SpanQuoteMismatches("nothing relevant here"); len(got) != 1 {
		t.Errorf("expected 1 mismatch, got %v", got)
	}
}
