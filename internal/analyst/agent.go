package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

// Options tune the remote call boundary of every analyst.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func DefaultOptions() Options {
	return Options{
		Temperature: 0.1,
		MaxTokens:   4000,
		Timeout:     60 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  10 * time.Second,
	}
}

// Agent is the single executor behind every role. The role supplies the
// perspective; the call policy is shared.
type Agent struct {
	role    domain.Role
	client  domain.LLMClient
	limiter *rate.Limiter
	opts    Options
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewAgent builds an analyst for role. limiter may be nil and is normally
// shared by the whole panel.
func NewAgent(role domain.Role, client domain.LLMClient, limiter *rate.Limiter, opts Options, logger *zap.Logger) *Agent {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Agent{
		role:    role,
		client:  client,
		limiter: limiter,
		opts:    opts,
		logger:  logger.With(zap.String("agent_id", role.Name)),
		sleep:   sleepCtx,
	}
}

// NewPanel builds one agent per role of the roster, in roster order.
func NewPanel(roster domain.Roster, client domain.LLMClient, limiter *rate.Limiter, opts Options, logger *zap.Logger) []domain.Analyst {
	panel := make([]domain.Analyst, 0, roster.Len())
	for _, role := range roster.Roles() {
		panel = append(panel, NewAgent(role, client, limiter, opts, logger))
	}
	return panel
}

func (a *Agent) Role() domain.Role {
	return a.role
}

func (a *Agent) ExtractEvidence(ctx context.Context, eventID uuid.UUID, incidentText string) (*domain.EvidenceExtraction, error) {
	req := domain.CompletionRequest{
		System:      a.role.EvidencePrompt + evidenceFormat,
		User:        fmt.Sprintf(evidenceUserPrompt, incidentText),
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	}

	var out *domain.EvidenceExtraction
	err := a.call(ctx, domain.StageEvidence, req, func(resp string) error {
		e, err := parseEvidence(resp, eventID, a.role.Name, incidentText)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Agent) GenerateClaims(ctx context.Context, eventID uuid.UUID, incidentText string, evidence *domain.EvidenceExtraction) (*domain.AgentClaims, error) {
	listing, err := evidenceListing(evidence)
	if err != nil {
		return nil, err
	}
	req := domain.CompletionRequest{
		System:      a.role.ClaimsPrompt + claimsFormat,
		User:        fmt.Sprintf(claimsUserPrompt, incidentText, listing),
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	}

	var out *domain.AgentClaims
	err = a.call(ctx, domain.StageClaims, req, func(resp string) error {
		c, err := parseClaims(resp, eventID, a.role, evidence)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// call runs req with rate limiting, a per-attempt timeout and exponential
// backoff. A response that fails to parse counts as a failed attempt.
func (a *Agent) call(ctx context.Context, stage string, req domain.CompletionRequest, parse func(string) error) error {
	var lastErr error
	for attempt := 0; attempt < a.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := a.sleep(ctx, a.backoff(attempt)); err != nil {
				return err
			}
		}
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		lastErr = a.attempt(ctx, req, parse)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("analyst call failed",
			zap.String("stage", stage),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return fmt.Errorf("%s %s: %d attempts failed: %w", a.role.Name, stage, a.opts.MaxAttempts, lastErr)
}

func (a *Agent) attempt(ctx context.Context, req domain.CompletionRequest, parse func(string) error) error {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		return err
	}
	return parse(resp)
}

func (a *Agent) backoff(attempt int) time.Duration {
	d := a.opts.BackoffBase << (attempt - 1)
	if d <= 0 || (a.opts.BackoffMax > 0 && d > a.opts.BackoffMax) {
		d = a.opts.BackoffMax
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errNoJSON = errors.New("response contains no JSON object")

// extractJSON strips markdown fences and surrounding prose.
func extractJSON(resp string) (string, error) {
	s := strings.TrimSpace(resp)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

type evidenceRef struct {
	EvidenceID uuid.UUID           `json:"evidence_id"`
	Type       domain.EvidenceType `json:"type"`
	Value      string              `json:"value"`
	Normalized domain.Normalized   `json:"normalized"`
}

func evidenceListing(e *domain.EvidenceExtraction) (string, error) {
	refs := make([]evidenceRef, 0, len(e.Evidence))
	for _, item := range e.Evidence {
		refs = append(refs, evidenceRef{
			EvidenceID: item.EvidenceID,
			Type:       item.Type,
			Value:      item.Value,
			Normalized: item.Normalized,
		})
	}
	data, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal evidence listing: %w", err)
	}
	return string(data), nil
}
