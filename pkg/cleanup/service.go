// Package cleanup provides the query-history retention loop.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/history"
)

// Service periodically deletes expired query-history rows. Deletes are
// idempotent and safe to run from multiple replicas.
type Service struct {
	cfg     config.HistoryConfig
	history *history.Store
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg config.HistoryConfig, hist *history.Store, logger *slog.Logger) *Service {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	return &Service{
		cfg:     cfg,
		history: hist,
		logger:  logger.With("component", "cleanup"),
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"retention_days", s.cfg.RetentionDays,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
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

func (s *Service) sweep(ctx context.Context) {
	count, err := s.history.Cleanup(ctx)
	if err != nil {
		s.logger.Error("Retention sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention sweep removed expired queries", "count", count)
	}
}
