package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRetentionInterval = 1 * time.Hour

// ArtifactPruner removes event directories last modified before a cutoff.
type ArtifactPruner interface {
	RemoveOlderThan(cutoff time.Time) (int, error)
}

// RetentionService periodically deletes event directories older than the
// configured retention window.
type RetentionService struct {
	pruner    ArtifactPruner
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRetentionService(pruner ArtifactPruner, retentionDays int, logger *zap.Logger) *RetentionService {
	return &RetentionService{
		pruner:    pruner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
		interval:  defaultRetentionInterval,
		stopCh:    make(chan struct{}),
	}
}

func (s *RetentionService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the pruner on a periodic schedule in a background goroutine.
func (s *RetentionService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("artifact retention started",
			zap.Duration("interval", s.interval),
			zap.Duration("retention", s.retention))

		for {
			select {
			case <-ticker.C:
				s.RunOnce()
			case <-s.stopCh:
				s.logger.Info("artifact retention stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the pruner.
func (s *RetentionService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce prunes once and returns the number of removed events.
func (s *RetentionService) RunOnce() int {
	cutoff := s.now().Add(-s.retention)
	removed, err := s.pruner.RemoveOlderThan(cutoff)
	if err != nil {
		s.logger.Error("failed to prune artifacts", zap.Error(err), zap.Int("removed", removed))
		return removed
	}
	if removed > 0 {
		s.logger.Info("pruned expired events", zap.Int("count", removed), zap.Time("cutoff", cutoff))
	}
	return removed
}
