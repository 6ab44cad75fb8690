package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/dissent/internal/artifact"
	"github.com/Harshitk-cp/dissent/internal/convergence"
	"github.com/Harshitk-cp/dissent/internal/domain"
)

const incident = "Host web-01 ran powershell.exe -enc AAAA and connected to 203.0.113.7 over 443."

// callLog records analyst calls in the order they happened.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// fakeAnalyst returns fixed evidence and claims, or fails a stage.
type fakeAnalyst struct {
	role        domain.Role
	values      [][2]string
	directions  []domain.ClaimDirection
	confidence  float64
	evidenceErr error
	claimsErr   error
	// nilReply makes both stages return nil without an error.
	nilReply bool
	log      *callLog
}

func (f *fakeAnalyst) Role() domain.Role { return f.role }

func (f *fakeAnalyst) ExtractEvidence(ctx context.Context, eventID uuid.UUID, text string) (*domain.EvidenceExtraction, error) {
	if f.log != nil {
		f.log.add("evidence:" + f.role.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.evidenceErr != nil || f.nilReply {
		return nil, f.evidenceErr
	}
	e := domain.NewEmptyExtraction(eventID, f.role.Name)
	for _, v := range f.values {
		start := strings.Index(text, v[1])
		if start < 0 {
			start = 0
		}
		e.Evidence = append(e.Evidence, domain.EvidenceItem{
			EvidenceID:           uuid.New(),
			Type:                 domain.EvidenceType(v[0]),
			Value:                v[1],
			Normalized:           domain.Normalized{Key: v[0], Value: strings.ToLower(v[1])},
			SourceSpans:          []domain.SourceSpan{{StartChar: start, EndChar: start + len(v[1]), Quote: v[1]}},
			ExtractionConfidence: 0.9,
		})
	}
	return e, nil
}

func (f *fakeAnalyst) GenerateClaims(ctx context.Context, eventID uuid.UUID, text string, evidence *domain.EvidenceExtraction) (*domain.AgentClaims, error) {
	if f.log != nil {
		f.log.add("claims:" + f.role.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.claimsErr != nil || f.nilReply {
		return nil, f.claimsErr
	}
	c := domain.NewEmptyClaims(eventID, f.role.Name, f.role.DefaultStance)
	c.AgentConfidence = f.confidence
	for i, d := range f.directions {
		claim := domain.Claim{
			ClaimID:         uuid.New(),
			Summary:         "claim " + string(d),
			Direction:       d,
			ClaimConfidence: 0.8,
		}
		if i < len(evidence.Evidence) {
			claim.SupportingEvidenceIDs = []uuid.UUID{evidence.Evidence[i].EvidenceID}
		}
		c.Claims = append(c.Claims, claim)
	}
	return c, nil
}

func role(name string, stance domain.Stance) domain.Role {
	return domain.Role{Name: name, DefaultStance: stance, Weight: 1, Enabled: true}
}

var sharedEvidence = [][2]string{
	{"host", "web-01"},
	{"process", "powershell.exe"},
	{"ip", "203.0.113.7"},
}

// agreeingPanel is three analysts that see the same evidence and all argue
// malicious.
func agreeingPanel(log *callLog) []*fakeAnalyst {
	mal := []domain.ClaimDirection{domain.SupportsMalicious, domain.SupportsMalicious}
	return []*fakeAnalyst{
		{role: role("benign", domain.StanceBenign), values: sharedEvidence, directions: mal, confidence: 0.7, log: log},
		{role: role("malicious", domain.StanceMalicious), values: sharedEvidence, directions: mal, confidence: 0.9, log: log},
		{role: role("skeptic", domain.StanceSkeptical), values: sharedEvidence, directions: mal, confidence: 0.8, log: log},
	}
}

func analysts(fakes []*fakeAnalyst) []domain.Analyst {
	out := make([]domain.Analyst, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func newTestStore(t *testing.T) *artifact.Store {
	t.Helper()
	s, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func newTestAnalysis(t *testing.T, store *artifact.Store, fakes []*fakeAnalyst, recorder domain.AnalysisRecorder, opts AnalysisOptions) *AnalysisService {
	t.Helper()
	engine := convergence.New(convergence.DefaultThresholds())
	return NewAnalysisService(analysts(fakes), engine, store, recorder, nil, zap.NewNop(), opts)
}

func newTestReplay(store *artifact.Store) *ReplayService {
	s := NewReplayService(store, convergence.DefaultThresholds(), nil, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	return s
}

// seedEvent runs one analysis with the agreeing panel and returns its id.
func seedEvent(t *testing.T, store *artifact.Store) uuid.UUID {
	t.Helper()
	svc := newTestAnalysis(t, store, agreeingPanel(nil), nil, AnalysisOptions{})
	res, err := svc.Analyze(context.Background(), incident, nil)
	require.NoError(t, err)
	return res.EventID
}
