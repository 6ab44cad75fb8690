package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harshitk-cp/dissent/internal/artifact"
	"github.com/Harshitk-cp/dissent/internal/convergence"
	"github.com/Harshitk-cp/dissent/internal/domain"
	"github.com/Harshitk-cp/dissent/internal/metrics"
)

const previewChars = 500

var (
	errNoEvidence = errors.New("analyst returned no evidence")
	errNoClaims   = errors.New("analyst returned no claims")
)

type AnalysisOptions struct {
	Calibrate         bool
	CalibrationFactor float64
}

// AnalysisService runs the two-phase analyst fan-out, computes convergence
// and persists every artifact of the run.
type AnalysisService struct {
	panel    []domain.Analyst
	engine   *convergence.Engine
	store    *artifact.Store
	recorder domain.AnalysisRecorder
	metrics  *metrics.Collector
	logger   *zap.Logger
	opts     AnalysisOptions
	now      func() time.Time
}

func NewAnalysisService(panel []domain.Analyst, engine *convergence.Engine, store *artifact.Store, recorder domain.AnalysisRecorder, mc *metrics.Collector, logger *zap.Logger, opts AnalysisOptions) *AnalysisService {
	if opts.CalibrationFactor == 0 {
		opts.CalibrationFactor = convergence.DefaultCalibrationFactor
	}
	return &AnalysisService{
		panel:    append([]domain.Analyst(nil), panel...),
		engine:   engine,
		store:    store,
		recorder: recorder,
		metrics:  mc,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Agents returns the role names of the panel in configuration order.
func (s *AnalysisService) Agents() []string {
	names := make([]string, len(s.panel))
	for i, a := range s.panel {
		names[i] = a.Role().Name
	}
	return names
}

// Analyze runs one incident through the panel. When eventID is nil a fresh
// id is assigned. A cancelled ctx aborts the run before anything is written.
func (s *AnalysisService) Analyze(ctx context.Context, incidentText string, eventID *uuid.UUID) (*domain.AnalysisResult, error) {
	if strings.TrimSpace(incidentText) == "" {
		return nil, domain.ErrEmptyIncident
	}
	id := uuid.New()
	if eventID != nil {
		if *eventID == uuid.Nil {
			return nil, domain.ErrInvalidEventID
		}
		id = *eventID
	}
	if len(s.panel) < 2 {
		return nil, &domain.InsufficientInputError{Agents: len(s.panel)}
	}

	start := s.now()
	logger := s.logger.With(zap.String("event_id", id.String()))
	logger.Info("analysis started", zap.Int("agents", len(s.panel)), zap.Int("incident_chars", len(incidentText)))

	var (
		failMu   sync.Mutex
		failures []domain.AgentFailure
	)
	fail := func(agent, stage string, err error) {
		failMu.Lock()
		failures = append(failures, domain.AgentFailure{Agent: agent, Stage: stage, Error: err.Error()})
		failMu.Unlock()
		s.metrics.AgentFailure(agent, stage)
		logger.Warn("agent call degraded to empty result",
			zap.String("agent_id", agent),
			zap.String("stage", stage),
			zap.Error(err))
	}

	evidence := s.extractAll(ctx, id, incidentText, fail)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	claims := s.claimAll(ctx, id, incidentText, evidence, fail)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := s.engine.Compute(evidence, claims)
	if err != nil {
		return nil, fmt.Errorf("compute convergence: %w", err)
	}

	if _, err := s.store.WriteRun(&artifact.Run{
		EventID:      id,
		IncidentText: incidentText,
		Evidence:     evidence,
		Claims:       claims,
		Metrics:      m,
	}); err != nil {
		return nil, fmt.Errorf("persist artifacts: %w", err)
	}

	result := s.summarize(id, incidentText, evidence, claims, m, failures)
	if s.opts.Calibrate {
		calibrated := convergence.Calibrate(m, s.opts.CalibrationFactor)
		result.Decision = calibrated.Decision
		result.Calibrated = true
	}

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, result, m); err != nil {
			logger.Error("failed to record analysis", zap.Error(err))
		}
	}

	s.metrics.ObserveAnalysis(string(result.Decision.Label), result.Decision.Confidence, m.ResidualDisagreement, s.now().Sub(start))
	logger.Info("analysis decided",
		zap.String("decision", string(result.Decision.Label)),
		zap.Float64("confidence", result.Decision.Confidence),
		zap.Float64("residual_disagreement", m.ResidualDisagreement),
		zap.Strings("reason_codes", result.Decision.ReasonCodes),
		zap.Int("agent_failures", len(failures)))
	if result.Decision.Label == domain.LabelUncertain {
		logger.Warn("epistemic_uncertainty",
			zap.Strings("reason_codes", result.Decision.ReasonCodes),
			zap.Float64("residual_disagreement", m.ResidualDisagreement))
	}
	return result, nil
}

func (s *AnalysisService) extractAll(ctx context.Context, id uuid.UUID, text string, fail func(string, string, error)) map[string]*domain.EvidenceExtraction {
	results := make([]*domain.EvidenceExtraction, len(s.panel))
	var g errgroup.Group
	for i, a := range s.panel {
		g.Go(func() error {
			name := a.Role().Name
			e, err := a.ExtractEvidence(ctx, id, text)
			if err == nil && e == nil {
				err = errNoEvidence
			}
			if err != nil {
				fail(name, domain.StageEvidence, err)
				e = domain.NewEmptyExtraction(id, name)
			}
			e.EventID, e.AgentID = id, name
			results[i] = e
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*domain.EvidenceExtraction, len(results))
	for _, e := range results {
		out[e.AgentID] = e
	}
	return out
}

func (s *AnalysisService) claimAll(ctx context.Context, id uuid.UUID, text string, evidence map[string]*domain.EvidenceExtraction, fail func(string, string, error)) map[string]*domain.AgentClaims {
	results := make([]*domain.AgentClaims, len(s.panel))
	var g errgroup.Group
	for i, a := range s.panel {
		g.Go(func() error {
			role := a.Role()
			c, err := a.GenerateClaims(ctx, id, text, evidence[role.Name])
			if err == nil && c == nil {
				err = errNoClaims
			}
			if err != nil {
				fail(role.Name, domain.StageClaims, err)
				c = domain.NewEmptyClaims(id, role.Name, role.DefaultStance)
			}
			c.EventID, c.AgentID = id, role.Name
			results[i] = c
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*domain.AgentClaims, len(results))
	for _, c := range results {
		out[c.AgentID] = c
	}
	return out
}

func (s *AnalysisService) summarize(id uuid.UUID, text string, evidence map[string]*domain.EvidenceExtraction, claims map[string]*domain.AgentClaims, m *domain.ConvergenceMetrics, failures []domain.AgentFailure) *domain.AnalysisResult {
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Stage != failures[j].Stage {
			return failures[i].Stage == domain.StageEvidence
		}
		return failures[i].Agent < failures[j].Agent
	})
	degraded := make(map[string]bool, len(failures))
	for _, f := range failures {
		degraded[f.Agent] = true
	}

	total := 0
	for _, e := range evidence {
		total += len(e.Evidence)
	}

	agents := make(map[string]domain.AgentSummary, len(s.panel))
	for _, a := range s.panel {
		role := a.Role()
		c := claims[role.Name]
		agents[role.Name] = domain.AgentSummary{
			Label:      m.AgentLabels[role.Name],
			Confidence: c.AgentConfidence,
			NumClaims:  len(c.Claims),
			NumGaps:    len(c.Gaps),
			LabelScore: c.LabelScore(),
			Weight:     role.Weight,
			Degraded:   degraded[role.Name],
		}
	}

	return &domain.AnalysisResult{
		EventID:         id,
		Timestamp:       s.now().UTC(),
		IncidentPreview: Preview(text, previewChars),
		Summary: domain.AnalysisSummary{
			TotalEvidenceItems:      total,
			Agents:                  agents,
			EvidenceOverlap:         m.EvidenceOverlap,
			TripleIntersectionCount: m.TripleIntersectionCount,
			DisagreementEntropy:     m.DisagreementEntropy,
			ResidualDisagreement:    m.ResidualDisagreement,
			ConfidenceAlignment:     m.ConfidenceAlignment,
		},
		Decision:          m.Decision,
		EpistemicStatus:   convergence.EpistemicStatus(m.Decision.Label),
		ArtifactsLocation: s.store.EventDir(id),
		AgentFailures:     failures,
	}
}

// Preview truncates text to at most n runes, marking a cut with "...".
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
