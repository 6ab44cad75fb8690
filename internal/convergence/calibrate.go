package convergence

import "github.com/Harshitk-cp/dissent/internal/domain"

// DefaultCalibrationFactor scales how strongly residual disagreement
// discounts decision confidence during calibration.
const DefaultCalibrationFactor = 0.3

// Calibrate returns a copy of m whose decision confidence is discounted by
// factor × residual disagreement. The input is left untouched so stored
// metrics always hold raw engine output.
func Calibrate(m *domain.ConvergenceMetrics, factor float64) *domain.ConvergenceMetrics {
	out := m.Clone()
	out.Decision.Confidence = clamp01(m.Decision.Confidence * (1 - factor*m.ResidualDisagreement))
	out.Decision.ReasonCodes = append(out.Decision.ReasonCodes, domain.ReasonConfidenceCalibrated)
	return out
}

// EpistemicStatus is the human-readable reading of a final label.
func EpistemicStatus(l domain.FinalLabel) string {
	switch l {
	case domain.LabelBenign:
		return "evidence favors non-malicious explanation"
	case domain.LabelMalicious:
		return "evidence favors malicious explanation"
	default:
		return "insufficient evidence or excessive disagreement"
	}
}
