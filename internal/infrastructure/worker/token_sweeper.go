package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsdeck/approvalflow/internal/application/service"
)

// TokenSweeper periodically removes expired action tokens and used tokens
// past the audit retention window.
type TokenSweeper struct {
	tokens service.TokenService
	logger *zap.Logger

	sweepInterval time.Duration

	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTokenSweeper creates a new token sweeper
func NewTokenSweeper(tokens service.TokenService, sweepInterval time.Duration, logger *zap.Logger) *TokenSweeper {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	return &TokenSweeper{
		tokens:        tokens,
		logger:        logger,
		sweepInterval: sweepInterval,
	}
}

// Name returns the worker name
func (s *TokenSweeper) Name() string {
	return "token-sweeper"
}

// Start starts the sweep loop
func (s *TokenSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("token sweeper is already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.isRunning = true

	go s.run(ctx)
	return nil
}

// Stop stops the sweep loop and waits for the current sweep to finish
func (s *TokenSweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (s *TokenSweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Info("Token sweeper started", zap.Duration("interval", s.sweepInterval))

	// One sweep at startup so restarts do not let stale tokens pile up.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Token sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TokenSweeper) sweep(ctx context.Context) {
	deleted, err := s.tokens.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("Token sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("Token sweep completed", zap.Int64("deleted", deleted))
	}
}

// Verify interface compliance
var _ Worker = (*TokenSweeper)(nil)
