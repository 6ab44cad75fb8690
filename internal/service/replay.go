package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/dissent/internal/artifact"
	"github.com/Harshitk-cp/dissent/internal/buildconfig"
	"github.com/Harshitk-cp/dissent/internal/convergence"
	"github.com/Harshitk-cp/dissent/internal/domain"
	"github.com/Harshitk-cp/dissent/internal/metrics"
)

// floatTolerance is the absolute difference below which two recomputed
// floats count as equal.
const floatTolerance = 1e-4

// maxSchemaChecks bounds how many files of each kind ValidateContracts
// inspects.
const maxSchemaChecks = 3

const batchNotApplicable = "n/a"

// ReplayService recomputes and audits stored analyses without contacting any
// analyst.
type ReplayService struct {
	store      *artifact.Store
	thresholds domain.Thresholds
	metrics    *metrics.Collector
	logger     *zap.Logger
	now        func() time.Time
}

func NewReplayService(store *artifact.Store, thresholds domain.Thresholds, mc *metrics.Collector, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		store:      store,
		thresholds: thresholds,
		metrics:    mc,
		logger:     logger,
		now:        time.Now,
	}
}

func parseEventID(eventID string) (uuid.UUID, error) {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", domain.ErrInvalidEventID, eventID)
	}
	return id, nil
}

func (s *ReplayService) FindEvents() ([]string, error) {
	return s.store.ListEvents()
}

func (s *ReplayService) LoadArtifacts(eventID string) (*artifact.ArtifactSet, error) {
	id, err := parseEventID(eventID)
	if err != nil {
		return nil, err
	}
	return s.store.Load(id)
}

// Replay returns the stored metrics of an event, or recomputes them from the
// stored evidence and claims when recalculate is set or no metrics exist.
// A recomputation is written as a new replay convergence file and compared
// field by field with the stored metrics.
func (s *ReplayService) Replay(eventID string, recalculate bool) (*domain.ReplayResult, error) {
	set, err := s.LoadArtifacts(eventID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(zap.String("event_id", eventID))

	if !recalculate && set.Metrics != nil {
		s.metrics.Replay(domain.ReplayLoadedFromStorage, "")
		return &domain.ReplayResult{
			EventID:         eventID,
			Status:          domain.ReplayLoadedFromStorage,
			Metrics:         set.Metrics,
			EvidenceCount:   len(set.Evidence),
			ClaimsCount:     len(set.Claims),
			IncidentPreview: Preview(set.IncidentText, previewChars),
		}, nil
	}

	thresholds := s.thresholds
	if set.Metrics != nil && set.Metrics.Thresholds != nil {
		thresholds = *set.Metrics.Thresholds
	}
	recomputed, err := convergence.New(thresholds).Compute(set.Evidence, set.Claims)
	if err != nil {
		return nil, err
	}

	file, err := s.store.WriteConvergence(set.EventID, recomputed)
	if err != nil {
		return nil, fmt.Errorf("write replay metrics: %w", err)
	}

	result := &domain.ReplayResult{
		EventID:            eventID,
		Status:             domain.ReplayRecomputed,
		Metrics:            recomputed,
		EvidenceCount:      len(set.Evidence),
		ClaimsCount:        len(set.Claims),
		ReplayFile:         file,
		DeterministicCheck: domain.DeterministicNoOriginal,
	}
	if set.Metrics != nil {
		result.Comparison = Compare(set.Metrics, recomputed)
		result.DeterministicCheck = domain.DeterministicPass
		if !result.Comparison.Identical {
			result.DeterministicCheck = domain.DeterministicFail
			logger.Warn("replay differs from stored metrics",
				zap.Int("differences", len(result.Comparison.Differences)),
				zap.Bool("decision_match", result.Comparison.DecisionMatch))
		}
	}

	s.metrics.Replay(result.Status, result.DeterministicCheck)
	logger.Info("replay recomputed",
		zap.String("decision", string(recomputed.Decision.Label)),
		zap.Float64("confidence", recomputed.Decision.Confidence),
		zap.String("deterministic_check", result.DeterministicCheck),
		zap.String("replay_file", file))
	return result, nil
}

type namedField struct {
	name       string
	original   any
	recomputed any
}

func metricFields(a, b *domain.ConvergenceMetrics) []namedField {
	fields := []namedField{
		{"event_id", a.EventID, b.EventID},
		{"agent_labels", a.AgentLabels, b.AgentLabels},
		{"evidence_overlap", a.EvidenceOverlap, b.EvidenceOverlap},
		{"triple_intersection_count", a.TripleIntersectionCount, b.TripleIntersectionCount},
		{"disagreement_entropy", a.DisagreementEntropy, b.DisagreementEntropy},
		{"confidence_alignment", a.ConfidenceAlignment, b.ConfidenceAlignment},
		{"residual_disagreement", a.ResidualDisagreement, b.ResidualDisagreement},
		{"decision", a.Decision, b.Decision},
	}
	// Metrics written before thresholds were persisted carry none.
	if a.Thresholds != nil {
		fields = append(fields, namedField{"thresholds", a.Thresholds, b.Thresholds})
	}
	return fields
}

// Compare diffs two metrics objects per top-level field. Floats anywhere in
// a field are equal within floatTolerance.
func Compare(original, recomputed *domain.ConvergenceMetrics) *domain.Comparison {
	opt := cmpopts.EquateApprox(0, floatTolerance)
	c := &domain.Comparison{
		Differences:    map[string]domain.FieldDiff{},
		DecisionMatch:  original.Decision.Label == recomputed.Decision.Label,
		ConfidenceDiff: math.Abs(original.Decision.Confidence - recomputed.Decision.Confidence),
	}
	for _, f := range metricFields(original, recomputed) {
		if cmp.Equal(f.original, f.recomputed, opt) {
			continue
		}
		d := domain.FieldDiff{Original: f.original, Recomputed: f.recomputed}
		if x, ok := f.original.(float64); ok {
			diff := math.Abs(x - f.recomputed.(float64))
			d.Difference = &diff
		}
		c.Differences[f.name] = d
	}
	c.Identical = len(c.Differences) == 0
	return c
}

// ValidateContracts checks that an event holds the artifacts a replay needs
// and that they are structurally valid. It never stops at the first problem.
func (s *ReplayService) ValidateContracts(eventID string) (*domain.ValidationReport, error) {
	id, err := parseEventID(eventID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(id)
	if err != nil {
		return nil, err
	}
	c := artifact.Classify(files)

	r := &domain.ValidationReport{
		EventID:          eventID,
		Checks:           map[string]bool{},
		MissingArtifacts: []string{},
		InvalidArtifacts: []string{},
		Violations:       []string{},
		HasConvergence:   len(c.Convergence) > 0,
	}

	var incident string
	r.Checks["incident_text"] = c.HasIncident
	if c.HasIncident {
		data, err := s.store.ReadFile(id, artifact.IncidentFile)
		if err != nil {
			return nil, err
		}
		incident = string(data)
	} else {
		r.MissingArtifacts = append(r.MissingArtifacts, artifact.IncidentFile)
	}

	r.Checks["evidence_files"] = len(c.Evidence) >= 2
	if len(c.Evidence) < 2 {
		r.MissingArtifacts = append(r.MissingArtifacts, "evidence files (need at least 2)")
	}
	r.Checks["claims_files"] = len(c.Claims) >= 2
	if len(c.Claims) < 2 {
		r.MissingArtifacts = append(r.MissingArtifacts, "claims files (need at least 2)")
	}

	check := func(key, name string, validate func([]byte) error) error {
		data, err := s.store.ReadFile(id, name)
		if err != nil {
			return err
		}
		verr := validate(data)
		r.Checks[key] = verr == nil
		if verr != nil {
			r.InvalidArtifacts = append(r.InvalidArtifacts, name)
			for _, v := range domain.Violations(verr) {
				r.Violations = append(r.Violations, name+": "+v)
			}
		}
		return nil
	}

	for _, name := range firstN(c.Evidence, maxSchemaChecks) {
		err := check("evidence_schema_"+name, name, func(data []byte) error {
			e, err := domain.ValidateEvidenceJSON(data)
			if err == nil && c.HasIncident {
				r.Warnings = append(r.Warnings, e.SpanQuoteMismatches(incident)...)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	for _, name := range firstN(c.Claims, maxSchemaChecks) {
		err := check("claims_schema_"+name, name, func(data []byte) error {
			_, err := domain.ValidateClaimsJSON(data)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if latest := artifact.LatestConvergence(c.Convergence); latest != "" {
		err := check("convergence_schema", latest, func(data []byte) error {
			_, err := domain.ValidateMetricsJSON(data)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	r.Valid = true
	for _, ok := range r.Checks {
		r.Valid = r.Valid && ok
	}
	return r, nil
}

func firstN(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}

// BatchReplay replays each event independently; one failing event never
// stops the batch. A nil ids slice replays every stored event.
func (s *ReplayService) BatchReplay(ids []string, recalculate bool) (*domain.BatchResult, error) {
	if ids == nil {
		all, err := s.FindEvents()
		if err != nil {
			return nil, err
		}
		ids = all
	}

	out := &domain.BatchResult{TotalEvents: len(ids), Events: make([]domain.BatchEntry, 0, len(ids))}
	for _, id := range ids {
		res, err := s.Replay(id, recalculate)
		if err != nil {
			s.logger.Warn("batch replay failed", zap.String("event_id", id), zap.Error(err))
			out.FailedReplays++
			out.Events = append(out.Events, domain.BatchEntry{EventID: id, Status: "failed", Error: err.Error()})
			continue
		}
		check := res.DeterministicCheck
		if check == "" {
			check = batchNotApplicable
		}
		out.SuccessfulReplays++
		out.Events = append(out.Events, domain.BatchEntry{
			EventID:            id,
			Status:             "success",
			Decision:           res.Metrics.Decision.Label,
			Confidence:         res.Metrics.Decision.Confidence,
			DeterministicCheck: check,
		})
	}
	return out, nil
}

// BatchValidate validates every stored event.
func (s *ReplayService) BatchValidate() ([]*domain.ValidationReport, error) {
	ids, err := s.FindEvents()
	if err != nil {
		return nil, err
	}
	reports := make([]*domain.ValidationReport, 0, len(ids))
	for _, id := range ids {
		r, err := s.ValidateContracts(id)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", id, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Export copies an event into a fresh bundle directory under destination and
// writes a manifest whose directory hash covers every bundle file, the
// manifest itself included with an empty hash. It returns the manifest path.
func (s *ReplayService) Export(eventID, destination string) (string, error) {
	id, err := parseEventID(eventID)
	if err != nil {
		return "", err
	}
	dir, files, err := s.store.Export(id, destination)
	if err != nil {
		return "", err
	}

	manifest := domain.ExportManifest{
		EventID:         eventID,
		ExportTimestamp: s.now().UTC(),
		Version:         buildconfig.Version(),
		EngineHash:      convergence.EngineHash(),
		Artifacts:       append(files, artifact.ManifestFile),
	}
	path := filepath.Join(dir, artifact.ManifestFile)
	if err := artifact.WriteJSONAtomic(path, manifest); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	hash, err := artifact.HashDirectory(dir, nil)
	if err != nil {
		return "", err
	}
	manifest.DirectoryHash = hash
	if err := artifact.WriteJSONAtomic(path, manifest); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	s.logger.Info("event exported",
		zap.String("event_id", eventID),
		zap.String("dir", dir),
		zap.String("directory_hash", hash))
	return path, nil
}

// VerifyExport recomputes the directory hash of a bundle and compares the
// bundle's engine hash with the running engine.
func (s *ReplayService) VerifyExport(dir string) (*domain.ExportVerification, error) {
	raw, err := os.ReadFile(filepath.Join(dir, artifact.ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s has no %s", dir, artifact.ManifestFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest domain.ExportManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	blank := manifest
	blank.DirectoryHash = ""
	blanked, err := artifact.Encode(blank)
	if err != nil {
		return nil, err
	}
	actual, err := artifact.HashDirectory(dir, map[string][]byte{artifact.ManifestFile: blanked})
	if err != nil {
		return nil, err
	}

	v := &domain.ExportVerification{
		Dir:               dir,
		EventID:           manifest.EventID,
		ExpectedHash:      manifest.DirectoryHash,
		ActualHash:        actual,
		DirectoryHashOK:   actual == manifest.DirectoryHash,
		EngineHashMatches: manifest.EngineHash == convergence.EngineHash(),
	}
	for _, name := range manifest.Artifacts {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			v.MissingArtifacts = append(v.MissingArtifacts, name)
		}
	}
	return v, nil
}
