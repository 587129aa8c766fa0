// Package worker runs the background loops that keep the approval engine
// tidy between requests. Workers are registered once at wiring time and
// share one lifecycle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker is one background loop. Start must not block; Stop must wait for
// the loop to drain before returning.
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// WorkerManager starts and stops all registered workers as a unit.
type WorkerManager struct {
	workers []Worker
	logger  *zap.Logger

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{logger: logger}
}

// Register adds a worker. Must be called before StartAll.
func (m *WorkerManager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
}

// StartAll starts every registered worker. A worker that fails to start
// aborts the whole startup: the already-started workers are stopped again
// so the manager never ends up half-running.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("workers already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)

	var started []Worker
	for _, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.cancel()
			for _, s := range started {
				if stopErr := s.Stop(); stopErr != nil {
					m.logger.Error("Failed to stop worker during startup rollback",
						zap.String("worker", s.Name()), zap.Error(stopErr))
				}
			}
			return fmt.Errorf("start worker %s: %w", w.Name(), err)
		}
		started = append(started, w)
		m.logger.Info("Worker started", zap.String("worker", w.Name()))
	}

	m.running = true
	return nil
}

// StopAll cancels the shared context and waits for every worker to drain.
// Stopping an already-stopped manager is a no-op.
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	m.cancel()

	var errs []error
	for _, w := range m.workers {
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker",
				zap.String("worker", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop worker %s: %w", w.Name(), err))
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker", w.Name()))
	}
	return errors.Join(errs...)
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// IsRunning reports whether the workers have been started and not stopped
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
