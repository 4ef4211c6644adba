package mcp

import (
	"context"
	"time"

	"github.com/aixtiv/sallyport/internal/storage"
	"github.com/aixtiv/sallyport/pkg/metrics"

	"go.uber.org/zap"
)

// Sweeper reconciles deployments stuck in pending or deploying. The deployer
// never calls back, so anything in flight longer than the stale timeout is
// marked failed.
type Sweeper struct {
	store        storage.Store
	metrics      *metrics.Metrics
	logger       *zap.Logger
	interval     time.Duration
	staleTimeout time.Duration
}

func NewSweeper(store storage.Store, m *metrics.Metrics, logger *zap.Logger, interval, staleTimeout time.Duration) *Sweeper {
	return &Sweeper{
		store:        store,
		metrics:      m,
		logger:       logger.Named("mcp.sweeper"),
		interval:     interval,
		staleTimeout: staleTimeout,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.staleTimeout)
	stale, err := s.store.ListStaleDeployments(ctx, cutoff)
	if err != nil {
		s.logger.Error("stale deployment scan failed", zap.Error(err))
		return
	}

	for _, d := range stale {
		err := s.store.UpdateDeploymentStatus(ctx, d.TenantID, d.ID, storage.DeploymentStatusFailed, "deployment timed out")
		if err != nil {
			s.logger.Error("failed to mark deployment stale",
				zap.String("tenant", d.TenantID),
				zap.String("deployment", d.ID),
				zap.Error(err))
			continue
		}
		s.metrics.DeploymentRecorded(d.TenantID, storage.DeploymentStatusFailed)
		s.logger.Warn("deployment marked failed after timeout",
			zap.String("tenant", d.TenantID),
			zap.String("name", d.Name),
			zap.Duration("stale_timeout", s.staleTimeout))
	}
}
