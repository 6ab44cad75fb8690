package convergence

import (
	"math"
	"sort"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

// DefaultThresholds returns the constants the decision formulas were tuned
// with. Changing them changes decisions for stored events.
func DefaultThresholds() domain.Thresholds {
	return domain.Thresholds{
		ConsensusThreshold: 0.2,
		JaccardThreshold:   0.2,
		ResidualThreshold:  0.35,
		EntropyWeight:      0.55,
		OverlapWeight:      0.30,
		ConflictWeight:     0.15,
		MinMajority:        2,
	}
}

// Engine turns per-agent evidence and claims into disagreement metrics and a
// decision. It performs no I/O and is safe for concurrent use.
type Engine struct {
	thresholds domain.Thresholds
}

func New(t domain.Thresholds) *Engine {
	return &Engine{thresholds: t}
}

func (e *Engine) Thresholds() domain.Thresholds {
	return e.thresholds
}

// Compute runs the full convergence computation. Only agents present in both
// maps participate; fewer than two is an *domain.InsufficientInputError.
func (e *Engine) Compute(evidence map[string]*domain.EvidenceExtraction, claims map[string]*domain.AgentClaims) (*domain.ConvergenceMetrics, error) {
	agents := participants(evidence, claims)
	if len(agents) < 2 {
		return nil, &domain.InsufficientInputError{Agents: len(agents)}
	}

	sets := make([]map[string]struct{}, len(agents))
	for i, a := range agents {
		sets[i] = evidence[a].NormalizedSet()
	}
	overlap, triple := evidenceOverlap(agents, sets)
	meanOverlap := meanOf(overlap)

	labels := make(map[string]domain.FinalLabel, len(agents))
	confidences := make([]float64, len(agents))
	for i, a := range agents {
		labels[a] = e.deriveLabel(claims[a])
		confidences[i] = claims[a].AgentConfidence
	}
	mean, variance := meanVariance(confidences)

	entropy := disagreementEntropy(agents, labels)
	conflict := distinctLabels(labels) > 1
	residual := e.residualDisagreement(entropy, meanOverlap, conflict, mean)

	label, reasons := e.decide(labels, meanOverlap, residual)
	thresholds := e.thresholds

	return &domain.ConvergenceMetrics{
		EventID:                 claims[agents[0]].EventID,
		AgentLabels:             labels,
		EvidenceOverlap:         overlap,
		TripleIntersectionCount: triple,
		DisagreementEntropy:     entropy,
		ConfidenceAlignment: domain.ConfidenceAlignment{
			MeanConfidence:     mean,
			VarianceConfidence: variance,
		},
		ResidualDisagreement: residual,
		Decision: domain.Decision{
			Label:       label,
			Confidence:  decisionConfidence(label, mean, residual),
			ReasonCodes: reasons,
		},
		Thresholds: &thresholds,
	}, nil
}

func participants(evidence map[string]*domain.EvidenceExtraction, claims map[string]*domain.AgentClaims) []string {
	agents := make([]string, 0, len(claims))
	for a, c := range claims {
		if c == nil {
			continue
		}
		if ev, ok := evidence[a]; ok && ev != nil {
			agents = append(agents, a)
		}
	}
	sort.Strings(agents)
	return agents
}

// PairKey names the overlap entry for two agents, ordered ascending.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// Jaccard is |a∩b| / |a∪b|. Two empty sets are identical; one empty set
// shares nothing.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func evidenceOverlap(agents []string, sets []map[string]struct{}) (map[string]float64, *int) {
	overlap := make(map[string]float64, len(agents)*(len(agents)-1)/2)
	for i := 0; i < len(agents); i++ {
		for j := i + 1; j < len(agents); j++ {
			overlap[PairKey(agents[i], agents[j])] = Jaccard(sets[i], sets[j])
		}
	}

	if len(agents) != 3 {
		return overlap, nil
	}
	n := 0
	for k := range sets[0] {
		_, in1 := sets[1][k]
		_, in2 := sets[2][k]
		if in1 && in2 {
			n++
		}
	}
	return overlap, &n
}

func (e *Engine) deriveLabel(c *domain.AgentClaims) domain.FinalLabel {
	score := c.LabelScore()
	switch {
	case score >= e.thresholds.ConsensusThreshold:
		return domain.LabelMalicious
	case score <= -e.thresholds.ConsensusThreshold:
		return domain.LabelBenign
	default:
		return domain.LabelUncertain
	}
}

// meanOf sums in key order so the result does not depend on map iteration.
func meanOf(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += m[k]
	}
	return sum / float64(len(m))
}

// meanVariance returns the mean and population variance.
func meanVariance(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) == 1 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, sq / float64(len(xs))
}

var labelOrder = []domain.FinalLabel{domain.LabelBenign, domain.LabelMalicious, domain.LabelUncertain}

// disagreementEntropy is the Shannon entropy of the label distribution
// normalised by log2 of the number of categories.
func disagreementEntropy(agents []string, labels map[string]domain.FinalLabel) float64 {
	total := len(agents)
	if total <= 1 {
		return 0
	}
	counts := labelCounts(labels)
	var h float64
	for _, l := range labelOrder {
		if counts[l] == 0 {
			continue
		}
		p := float64(counts[l]) / float64(total)
		h -= p * math.Log2(p)
	}
	return h / math.Log2(float64(len(labelOrder)))
}

func labelCounts(labels map[string]domain.FinalLabel) map[domain.FinalLabel]int {
	counts := make(map[domain.FinalLabel]int, len(labelOrder))
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

func distinctLabels(labels map[string]domain.FinalLabel) int {
	return len(labelCounts(labels))
}

func (e *Engine) residualDisagreement(entropy, meanOverlap float64, conflict bool, meanConfidence float64) float64 {
	var conflictTerm float64
	if conflict {
		conflictTerm = 1
	}
	t := e.thresholds
	r := t.EntropyWeight*entropy +
		t.OverlapWeight*(1-meanOverlap) +
		t.ConflictWeight*(conflictTerm*meanConfidence)
	return clamp01(r)
}

func (e *Engine) majorityNeeded(participants int) int {
	if e.thresholds.MinMajority > 0 {
		return e.thresholds.MinMajority
	}
	return participants/2 + 1
}

// decide applies the majority and threshold rules. A tie between BENIGN and
// MALICIOUS, possible only with four or more agents, is not a majority.
func (e *Engine) decide(labels map[string]domain.FinalLabel, meanOverlap, residual float64) (domain.FinalLabel, []string) {
	counts := labelCounts(labels)
	benign, malicious := counts[domain.LabelBenign], counts[domain.LabelMalicious]
	need := e.majorityNeeded(len(labels))

	var majority domain.FinalLabel
	switch {
	case benign >= need && benign > malicious:
		majority = domain.LabelBenign
	case malicious >= need && malicious > benign:
		majority = domain.LabelMalicious
	}

	var reasons []string
	if majority == "" {
		reasons = append(reasons, domain.ReasonNoMajority)
	}
	if residual > e.thresholds.ResidualThreshold {
		reasons = append(reasons, domain.ReasonHighResidual)
	}
	if meanOverlap < e.thresholds.JaccardThreshold {
		reasons = append(reasons, domain.ReasonLowOverlap)
	}

	if majority != "" && residual <= e.thresholds.ResidualThreshold && meanOverlap >= e.thresholds.JaccardThreshold {
		if majority == domain.LabelBenign {
			return domain.LabelBenign, []string{domain.ReasonConsensusBenign}
		}
		return domain.LabelMalicious, []string{domain.ReasonConsensusMalicious}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, domain.ReasonAmbiguousEvidence)
	}
	return domain.LabelUncertain, reasons
}

func decisionConfidence(label domain.FinalLabel, meanConfidence, residual float64) float64 {
	if label == domain.LabelUncertain {
		return clamp01(1 - residual)
	}
	return clamp01(meanConfidence * (1 - residual))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
