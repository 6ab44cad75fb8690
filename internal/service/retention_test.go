package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakePruner struct {
	cutoffs []time.Time
	removed int
	err     error
}

func (p *fakePruner) RemoveOlderThan(cutoff time.Time) (int, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.removed, p.err
}

func TestRetentionRunOnce(t *testing.T) {
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	p := &fakePruner{removed: 4}
	s := NewRetentionService(p, 7, zap.NewNop())
	s.now = func() time.Time { return now }

	assert.Equal(t, 4, s.RunOnce())
	assert.Equal(t, []time.Time{now.AddDate(0, 0, -7)}, p.cutoffs)

	p.err = errors.New("permission denied")
	p.removed = 1
	assert.Equal(t, 1, s.RunOnce())
}

func TestRetentionStartStop(t *testing.T) {
	p := &fakePruner{}
	s := NewRetentionService(p, 1, zap.NewNop())
	s.SetInterval(time.Hour)
	s.Start()
	s.Stop()
	assert.Empty(t, p.cutoffs)
}
