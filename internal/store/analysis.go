package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

// AnalysisStore mirrors completed analyses into Postgres for reporting. The
// artifact directory stays the source of truth.
type AnalysisStore struct {
	db *pgxpool.Pool
}

func NewAnalysisStore(db *pgxpool.Pool) *AnalysisStore {
	return &AnalysisStore{db: db}
}

// Record inserts the event, one row per agent and the convergence metrics in
// a single transaction. A second record for the same event is ErrConflict.
func (s *AnalysisStore) Record(ctx context.Context, r *domain.AnalysisResult, m *domain.ConvergenceMetrics) error {
	overlap, err := json.Marshal(m.EvidenceOverlap)
	if err != nil {
		return fmt.Errorf("marshal overlap: %w", err)
	}
	reasons, err := json.Marshal(m.Decision.ReasonCodes)
	if err != nil {
		return fmt.Errorf("marshal reason codes: %w", err)
	}
	var thresholds []byte
	if m.Thresholds != nil {
		if thresholds, err = json.Marshal(m.Thresholds); err != nil {
			return fmt.Errorf("marshal thresholds: %w", err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO analysis_events
		 (id, incident_preview, artifacts_location, decided_at, final_label, final_confidence, residual_disagreement, calibrated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.EventID, r.IncidentPreview, r.ArtifactsLocation, r.Timestamp,
		string(r.Decision.Label), r.Decision.Confidence, m.ResidualDisagreement, r.Calibrated,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}

	batch := &pgx.Batch{}
	for agent, a := range r.Summary.Agents {
		batch.Queue(
			`INSERT INTO agent_analyses
			 (event_id, agent_id, derived_label, label_score, agent_confidence, claims_count, gaps_count, degraded)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.EventID, agent, string(a.Label), a.LabelScore, a.Confidence, a.NumClaims, a.NumGaps, a.Degraded,
		)
	}
	batch.Queue(
		`INSERT INTO convergence_metrics
		 (event_id, evidence_overlap, triple_intersection_count, disagreement_entropy, mean_confidence,
		  confidence_variance, residual_disagreement, decision_label, decision_confidence, reason_codes, thresholds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.EventID, overlap, m.TripleIntersectionCount, m.DisagreementEntropy,
		m.ConfidenceAlignment.MeanConfidence, m.ConfidenceAlignment.VarianceConfidence,
		m.ResidualDisagreement, string(m.Decision.Label), m.Decision.Confidence, reasons, thresholds,
	)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert analysis rows: %w", err)
	}
	return tx.Commit(ctx)
}

// Stats aggregates decisions recorded at or after since.
func (s *AnalysisStore) Stats(ctx context.Context, since time.Time) (*domain.AnalysisStats, error) {
	st := &domain.AnalysisStats{Since: since, Decisions: map[domain.FinalLabel]int{}}

	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(residual_disagreement), 0), COALESCE(AVG(final_confidence), 0)
		 FROM analysis_events WHERE decided_at >= $1`,
		since,
	).Scan(&st.TotalEvents, &st.MeanResidualDisagreement, &st.MeanDecisionConfidence)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT final_label, COUNT(*) FROM analysis_events
		 WHERE decided_at >= $1 GROUP BY final_label`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		st.Decisions[domain.FinalLabel(label)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM agent_analyses a
		 JOIN analysis_events e ON e.id = a.event_id
		 WHERE e.decided_at >= $1 AND a.degraded`,
		since,
	).Scan(&st.DegradedAgentRuns)
	if err != nil {
		return nil, err
	}
	return st, nil
}

var _ domain.AnalysisRecorder = (*AnalysisStore)(nil)
