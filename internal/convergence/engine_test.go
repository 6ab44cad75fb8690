package convergence

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

func set(entries ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		s[e] = struct{}{}
	}
	return s
}

func extraction(eventID uuid.UUID, agent string, pairs ...[2]string) *domain.EvidenceExtraction {
	e := domain.NewEmptyExtraction(eventID, agent)
	for _, p := range pairs {
		e.Evidence = append(e.Evidence, domain.EvidenceItem{
			EvidenceID:           uuid.New(),
			Type:                 domain.EvidenceType(p[0]),
			Value:                p[1],
			Normalized:           domain.Normalized{Key: p[0], Value: p[1]},
			SourceSpans:          []domain.SourceSpan{{StartChar: 0, EndChar: len(p[1]), Quote: p[1]}},
			ExtractionConfidence: 0.9,
		})
	}
	return e
}

func claimsFor(eventID uuid.UUID, agent string, confidence float64, dirs ...domain.ClaimDirection) *domain.AgentClaims {
	c := domain.NewEmptyClaims(eventID, agent, domain.StanceSkeptical)
	c.AgentConfidence = confidence
	for _, d := range dirs {
		c.Claims = append(c.Claims, domain.Claim{
			ClaimID:         uuid.New(),
			Summary:         string(d),
			Direction:       d,
			ClaimConfidence: 0.8,
		})
	}
	return c
}

func TestJaccard(t *testing.T) {
	a := set("ip=1.1.1.1", "domain=example.com")
	b := set("ip=1.1.1.1", "domain=evil.com")

	assert.InDelta(t, 1.0/3.0, Jaccard(a, b), 1e-9)
	assert.Equal(t, Jaccard(a, b), Jaccard(b, a))
	assert.Equal(t, 1.0, Jaccard(a, a))
	assert.Equal(t, 1.0, Jaccard(set(), set()))
	assert.Equal(t, 0.0, Jaccard(a, set()))
	assert.Equal(t, 0.0, Jaccard(set(), b))
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, "benign_skeptic", PairKey("skeptic", "benign"))
	assert.Equal(t, "benign_skeptic", PairKey("benign", "skeptic"))
}

func TestDisagreementEntropy(t *testing.T) {
	agents := []string{"a", "b", "c"}

	agree := map[string]domain.FinalLabel{"a": domain.LabelBenign, "b": domain.LabelBenign, "c": domain.LabelBenign}
	assert.Equal(t, 0.0, disagreementEntropy(agents, agree))

	distinct := map[string]domain.FinalLabel{"a": domain.LabelBenign, "b": domain.LabelMalicious, "c": domain.LabelUncertain}
	h := disagreementEntropy(agents, distinct)
	assert.Greater(t, h, 0.9)
	assert.LessOrEqual(t, h, 1.0+1e-12)

	assert.Equal(t, 0.0, disagreementEntropy([]string{"a"}, map[string]domain.FinalLabel{"a": domain.LabelMalicious}))
}

func TestResidualDisagreement(t *testing.T) {
	e := New(DefaultThresholds())
	got := e.residualDisagreement(0.8, 0.3, true, 0.7)
	assert.InDelta(t, 0.755, got, 0.001)

	assert.Equal(t, 0.0, e.residualDisagreement(0, 1, false, 0.9))
	assert.Equal(t, 1.0, e.residualDisagreement(1, 0, true, 1))
}

func TestDecide(t *testing.T) {
	e := New(DefaultThresholds())

	tests := []struct {
		name        string
		labels      map[string]domain.FinalLabel
		overlap     float64
		residual    float64
		wantLabel   domain.FinalLabel
		wantReasons []string
	}{
		{
			name:        "benign majority",
			labels:      map[string]domain.FinalLabel{"a": domain.LabelBenign, "b": domain.LabelBenign, "c": domain.LabelUncertain},
			overlap:     0.5,
			residual:    0.3,
			wantLabel:   domain.LabelBenign,
			wantReasons: []string{domain.ReasonConsensusBenign},
		},
		{
			name:        "malicious majority",
			labels:      map[string]domain.FinalLabel{"a": domain.LabelMalicious, "b": domain.LabelMalicious, "c": domain.LabelMalicious},
			overlap:     0.2,
			residual:    0.35,
			wantLabel:   domain.LabelMalicious,
			wantReasons: []string{domain.ReasonConsensusMalicious},
		},
		{
			name:        "no majority",
			labels:      map[string]domain.FinalLabel{"a": domain.LabelBenign, "b": domain.LabelMalicious, "c": domain.LabelUncertain},
			overlap:     0.5,
			residual:    0.3,
			wantLabel:   domain.LabelUncertain,
			wantReasons: []string{domain.ReasonNoMajority},
		},
		{
			name:        "every condition violated",
			labels:      map[string]domain.FinalLabel{"a": domain.LabelBenign, "b": domain.LabelMalicious, "c": domain.LabelUncertain},
			overlap:     0.1,
			residual:    0.9,
			wantLabel:   domain.LabelUncertain,
			wantReasons: []string{domain.ReasonNoMajority, domain.ReasonHighResidual, domain.ReasonLowOverlap},
		},
		{
			name:        "majority blocked by residual",
			labels:      map[string]domain.FinalLabel{"a": domain.LabelMalicious, "b": domain.LabelMalicious, "c": domain.LabelBenign},
			overlap:     0.6,
			residual:    0.5,
			wantLabel:   domain.LabelUncertain,
			wantReasons: []string{domain.ReasonHighResidual},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, reasons := e.decide(tt.labels, tt.overlap, tt.residual)
			assert.Equal(t, tt.wantLabel, label)
			if diff := cmp.Diff(tt.wantReasons, reasons); diff != "" {
				t.Errorf("reason codes mismatch:\n%s", diff)
			}
		})
	}
}

func TestDecideMoreThanHalf(t *testing.T) {
	th := DefaultThresholds()
	th.MinMajority = 0
	e := New(th)

	labels := map[string]domain.FinalLabel{
		"a": domain.LabelBenign, "b": domain.LabelBenign,
		"c": domain.LabelMalicious, "d": domain.LabelUncertain, "e": domain.LabelUncertain,
	}
	label, reasons := e.decide(labels, 0.5, 0.2)
	assert.Equal(t, domain.LabelUncertain, label)
	assert.Equal(t, []string{domain.ReasonNoMajority}, reasons)

	labels["d"] = domain.LabelBenign
	label, _ = e.decide(labels, 0.5, 0.2)
	assert.Equal(t, domain.LabelBenign, label)
}

func TestDecideTieIsNoMajority(t *testing.T) {
	e := New(DefaultThresholds())
	labels := map[string]domain.FinalLabel{
		"a": domain.LabelBenign, "b": domain.LabelBenign,
		"c": domain.LabelMalicious, "d": domain.LabelMalicious,
	}
	label, reasons := e.decide(labels, 0.5, 0.2)
	assert.Equal(t, domain.LabelUncertain, label)
	assert.Contains(t, reasons, domain.ReasonNoMajority)
}

func TestComputeConsensus(t *testing.T) {
	id := uuid.New()
	ev := [][2]string{{"ip", "10.0.0.5"}, {"user", "svc-backup"}}
	evidence := map[string]*domain.EvidenceExtraction{
		"benign":    extraction(id, "benign", ev...),
		"malicious": extraction(id, "malicious", ev...),
		"skeptic":   extraction(id, "skeptic", ev...),
	}
	claims := map[string]*domain.AgentClaims{
		"benign":    claimsFor(id, "benign", 0.8, domain.SupportsBenign),
		"malicious": claimsFor(id, "malicious", 0.8, domain.SupportsBenign, domain.NeutralOrUnclear),
		"skeptic":   claimsFor(id, "skeptic", 0.8, domain.SupportsBenign),
	}

	m, err := New(DefaultThresholds()).Compute(evidence, claims)
	require.NoError(t, err)

	assert.Equal(t, id, m.EventID)
	assert.Equal(t, domain.LabelBenign, m.Decision.Label)
	assert.Equal(t, []string{domain.ReasonConsensusBenign}, m.Decision.ReasonCodes)
	assert.Equal(t, 0.0, m.DisagreementEntropy)
	assert.Equal(t, 0.0, m.ResidualDisagreement)
	assert.InDelta(t, 0.8, m.Decision.Confidence, 1e-9)
	assert.InDelta(t, 0.0, m.ConfidenceAlignment.VarianceConfidence, 1e-12)

	require.Len(t, m.EvidenceOverlap, 3)
	for _, key := range []string{"benign_malicious", "benign_skeptic", "malicious_skeptic"} {
		assert.Equal(t, 1.0, m.EvidenceOverlap[key], key)
	}
	require.NotNil(t, m.TripleIntersectionCount)
	assert.Equal(t, 2, *m.TripleIntersectionCount)

	require.NotNil(t, m.Thresholds)
	assert.Equal(t, DefaultThresholds(), *m.Thresholds)
	require.NoError(t, m.Validate())
}

func TestComputeDisagreement(t *testing.T) {
	id := uuid.New()
	evidence := map[string]*domain.EvidenceExtraction{
		"benign":    extraction(id, "benign", [2]string{"ip", "1.1.1.1"}, [2]string{"domain", "example.com"}),
		"malicious": extraction(id, "malicious", [2]string{"ip", "1.1.1.1"}, [2]string{"domain", "evil.com"}),
		"skeptic":   extraction(id, "skeptic"),
	}
	claims := map[string]*domain.AgentClaims{
		"benign":    claimsFor(id, "benign", 0.6, domain.SupportsBenign),
		"malicious": claimsFor(id, "malicious", 0.9, domain.SupportsMalicious),
		"skeptic":   claimsFor(id, "skeptic", 0.3, domain.NeutralOrUnclear),
	}

	m, err := New(DefaultThresholds()).Compute(evidence, claims)
	require.NoError(t, err)

	assert.InDelta(t, 1.0/3.0, m.EvidenceOverlap["benign_malicious"], 1e-9)
	assert.Equal(t, 0.0, m.EvidenceOverlap["benign_skeptic"])
	assert.Equal(t, 0.0, m.EvidenceOverlap["malicious_skeptic"])
	assert.Equal(t, 0, *m.TripleIntersectionCount)

	assert.Equal(t, domain.LabelBenign, m.AgentLabels["benign"])
	assert.Equal(t, domain.LabelMalicious, m.AgentLabels["malicious"])
	assert.Equal(t, domain.LabelUncertain, m.AgentLabels["skeptic"])

	assert.InDelta(t, 1.0, m.DisagreementEntropy, 1e-9)
	assert.InDelta(t, 0.6, m.ConfidenceAlignment.MeanConfidence, 1e-9)
	assert.InDelta(t, 0.06, m.ConfidenceAlignment.VarianceConfidence, 1e-9)

	// 0.55·1 + 0.30·(1 − 1/9) + 0.15·0.6
	wantResidual := 0.55 + 0.30*(8.0/9.0) + 0.15*0.6
	assert.InDelta(t, wantResidual, m.ResidualDisagreement, 1e-9)
	assert.Equal(t, domain.LabelUncertain, m.Decision.Label)
	assert.InDelta(t, 1-wantResidual, m.Decision.Confidence, 1e-9)
	assert.Equal(t,
		[]string{domain.ReasonNoMajority, domain.ReasonHighResidual, domain.ReasonLowOverlap},
		m.Decision.ReasonCodes)
}

func TestComputeFullDegrade(t *testing.T) {
	id := uuid.New()
	evidence := map[string]*domain.EvidenceExtraction{}
	claims := map[string]*domain.AgentClaims{}
	for _, a := range []string{"benign", "malicious", "skeptic"} {
		evidence[a] = domain.NewEmptyExtraction(id, a)
		claims[a] = domain.NewEmptyClaims(id, a, domain.StanceSkeptical)
	}

	m, err := New(DefaultThresholds()).Compute(evidence, claims)
	require.NoError(t, err)
	assert.Equal(t, domain.LabelUncertain, m.Decision.Label)
	assert.Equal(t, []string{domain.ReasonNoMajority}, m.Decision.ReasonCodes)
	for _, l := range m.AgentLabels {
		assert.Equal(t, domain.LabelUncertain, l)
	}
}

func TestComputeInsufficientInput(t *testing.T) {
	id := uuid.New()
	e := New(DefaultThresholds())

	_, err := e.Compute(
		map[string]*domain.EvidenceExtraction{"benign": extraction(id, "benign")},
		map[string]*domain.AgentClaims{"benign": claimsFor(id, "benign", 0.5)},
	)
	var insufficient *domain.InsufficientInputError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, 1, insufficient.Agents)

	// an agent with claims but no evidence does not participate
	m, err := e.Compute(
		map[string]*domain.EvidenceExtraction{"benign": extraction(id, "benign")},
		map[string]*domain.AgentClaims{
			"benign":  claimsFor(id, "benign", 0.5),
			"skeptic": claimsFor(id, "skeptic", 0.5),
		},
	)
	assert.Nil(t, m)
	require.True(t, errors.As(err, &insufficient))

	_, err = e.Compute(nil, nil)
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 0, insufficient.Agents)
}

func TestComputeTwoAgentsHasNoTriple(t *testing.T) {
	id := uuid.New()
	m, err := New(DefaultThresholds()).Compute(
		map[string]*domain.EvidenceExtraction{
			"benign":  extraction(id, "benign", [2]string{"ip", "1.1.1.1"}),
			"skeptic": extraction(id, "skeptic", [2]string{"ip", "1.1.1.1"}),
		},
		map[string]*domain.AgentClaims{
			"benign":  claimsFor(id, "benign", 0.5, domain.SupportsBenign),
			"skeptic": claimsFor(id, "skeptic", 0.5, domain.SupportsBenign),
		},
	)
	require.NoError(t, err)
	assert.Nil(t, m.TripleIntersectionCount)
	assert.Len(t, m.EvidenceOverlap, 1)
}

func TestComputeOrderInvariant(t *testing.T) {
	id := uuid.New()
	agents := []string{"base-rate", "benign", "malicious", "skeptic", "threat-intel"}
	dirs := []domain.ClaimDirection{domain.SupportsMalicious, domain.SupportsBenign, domain.SupportsMalicious, domain.NeutralOrUnclear, domain.SupportsMalicious}

	build := func(order []int) (map[string]*domain.EvidenceExtraction, map[string]*domain.AgentClaims) {
		ev := make(map[string]*domain.EvidenceExtraction)
		cl := make(map[string]*domain.AgentClaims)
		for _, i := range order {
			a := agents[i]
			ev[a] = extraction(id, a, [2]string{"host", "ws-" + string(rune('a'+i%2))}, [2]string{"ip", "10.0.0.1"})
			cl[a] = claimsFor(id, a, 0.1*float64(i+3), dirs[i])
		}
		return ev, cl
	}

	e := New(DefaultThresholds())
	ev1, cl1 := build([]int{0, 1, 2, 3, 4})
	ev2, cl2 := build([]int{4, 2, 0, 3, 1})
	m1, err := e.Compute(ev1, cl1)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		m2, err := e.Compute(ev2, cl2)
		require.NoError(t, err)
		if diff := cmp.Diff(m1, m2); diff != "" {
			t.Fatalf("result depends on input order:\n%s", diff)
		}
	}
}

func TestCalibrate(t *testing.T) {
	m := &domain.ConvergenceMetrics{
		EventID:              uuid.New(),
		AgentLabels:          map[string]domain.FinalLabel{"a": domain.LabelBenign},
		ResidualDisagreement: 0.5,
		Decision: domain.Decision{
			Label:       domain.LabelBenign,
			Confidence:  0.6,
			ReasonCodes: []string{domain.ReasonConsensusBenign},
		},
	}

	out := Calibrate(m, DefaultCalibrationFactor)
	assert.InDelta(t, 0.6*(1-0.3*0.5), out.Decision.Confidence, 1e-9)
	assert.Equal(t, []string{domain.ReasonConsensusBenign, domain.ReasonConfidenceCalibrated}, out.Decision.ReasonCodes)

	assert.Equal(t, 0.6, m.Decision.Confidence, "input must not be mutated")
	assert.Equal(t, []string{domain.ReasonConsensusBenign}, m.Decision.ReasonCodes)
}

func TestEpistemicStatus(t *testing.T) {
	assert.Equal(t, "insufficient evidence or excessive disagreement", EpistemicStatus(domain.LabelUncertain))
	assert.Equal(t, "evidence favors non-malicious explanation", EpistemicStatus(domain.LabelBenign))
	assert.Equal(t, "evidence favors malicious explanation", EpistemicStatus(domain.LabelMalicious))
}

func TestEngineHash(t *testing.T) {
	h := EngineHash()
	assert.Len(t, h, 16)
	assert.Equal(t, h, EngineHash())
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.2))
	assert.Equal(t, 1.0, clamp01(1.7))
	assert.Equal(t, 0.0, clamp01(math.NaN()))
}
