package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// StepNotifier triggers a notification round for the step that just became
// actionable. Implementations own their error boundary; the chain service
// never waits on or fails with them.
type StepNotifier interface {
	NotifyForStep(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, role entity.ApprovalRole)
}

// TokenInvalidator makes outstanding chat-button tokens for an entity inert.
type TokenInvalidator interface {
	InvalidateForEntity(ctx context.Context, entityType entity.EntityType, entityID int64) error
}

// ActionResult reports the outcome of a recorded approval action.
type ActionResult struct {
	Step        *entity.ApprovalStep
	ChainStatus entity.ChainStatus
	// NextStep is the step that became actionable after an advance, nil
	// when the chain resolved.
	NextStep *entity.ApprovalStep
	// SkippedLevels lists the levels an override skipped, in order.
	SkippedLevels []int
}

// ChainService is the approval chain state machine. It creates, advances and
// terminates the ordered step sequence of one request. Steps are only ever
// flipped out of PENDING, never deleted or reordered.
type ChainService interface {
	InitializeChain(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, roles []entity.ApprovalRole) ([]*entity.ApprovalStep, error)
	RecordAction(ctx context.Context, entityType entity.EntityType, entityID int64, actingApproverID string, targetLevel int, action entity.StepAction, notes string) (*ActionResult, error)
	CancelChain(ctx context.Context, entityType entity.EntityType, entityID int64) error
	GetSummary(ctx context.Context, entityType entity.EntityType, entityID int64, askingUserID, requesterID string) (*entity.ApprovalSummary, error)
	ListSteps(ctx context.Context, entityType entity.EntityType, entityID int64) ([]*entity.ApprovalStep, error)
}

type chainServiceImpl struct {
	stepRepo    port.StepRepository
	txManager   port.TransactionManager
	notifier    StepNotifier
	invalidator TokenInvalidator
	approvers   ApproverResolver
	logger      Logger
	now         func() time.Time
}

// NewChainService creates a new ChainService. notifier and invalidator may
// be nil in contexts that only need the state machine (tests, maintenance
// commands).
func NewChainService(
	stepRepo port.StepRepository,
	txManager port.TransactionManager,
	notifier StepNotifier,
	invalidator TokenInvalidator,
	approvers ApproverResolver,
	logger Logger,
) ChainService {
	return &chainServiceImpl{
		stepRepo:    stepRepo,
		txManager:   txManager,
		notifier:    notifier,
		invalidator: invalidator,
		approvers:   approvers,
		logger:      logger,
		now:         time.Now,
	}
}

// InitializeChain materializes one PENDING step per role, levels 1..N.
// An empty role list creates nothing; the caller auto-approves the entity.
// Re-initialization over existing steps is refused: resubmission after a
// rejection is the caller's job, via a new entity record.
func (s *chainServiceImpl) InitializeChain(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, roles []entity.ApprovalRole) ([]*entity.ApprovalStep, error) {
	if len(roles) == 0 {
		s.logger.Info("No approval roles resolved, chain not created",
			"entity_type", entityType, "entity_id", entityID)
		return nil, nil
	}

	existing, err := s.stepRepo.GetByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("get existing steps: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrChainExists
	}

	now := s.now()
	steps := make([]*entity.ApprovalStep, 0, len(roles))
	for i, role := range roles {
		steps = append(steps, &entity.ApprovalStep{
			TenantID:     tenantID,
			EntityType:   entityType,
			EntityID:     entityID,
			LevelOrder:   i + 1,
			RequiredRole: role,
			Status:       entity.StepPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if err := s.stepRepo.CreateBatch(ctx, steps); err != nil {
		s.logger.Error("Failed to create approval chain", "error", err,
			"entity_type", entityType, "entity_id", entityID)
		return nil, fmt.Errorf("create steps: %w", err)
	}

	s.logger.Info("Approval chain created",
		"entity_type", entityType, "entity_id", entityID,
		"total_steps", len(steps), "first_role", steps[0].RequiredRole)

	s.notifyAsync(tenantID, entityType, entityID, steps[0].RequiredRole)
	return steps, nil
}

// RecordAction applies one approver's decision to the chain.
//
// Same-level actions resolve the current step and either terminate (reject)
// or advance. Override actions (target above the current level) require
// notes and skip every level in between, current level included. Acting on
// an already-resolved level fails without mutation.
func (s *chainServiceImpl) RecordAction(ctx context.Context, entityType entity.EntityType, entityID int64, actingApproverID string, targetLevel int, action entity.StepAction, notes string) (*ActionResult, error) {
	if !action.IsValid() {
		return nil, ErrInvalidAction
	}

	steps, err := s.stepRepo.GetByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}

	current := entity.CurrentStep(steps)
	if current == nil {
		return nil, ErrChainNotPending
	}

	var target *entity.ApprovalStep
	for _, st := range steps {
		if st.LevelOrder == targetLevel {
			target = st
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: level %d", ErrStepNotFound, targetLevel)
	}

	switch {
	case targetLevel < current.LevelOrder:
		return nil, ErrStepAlreadyResolved
	case targetLevel > current.LevelOrder && notes == "":
		return nil, ErrNotesRequired
	}

	status := entity.StepApproved
	if action == entity.ActionReject {
		status = entity.StepRejected
	}

	now := s.now()
	var skipped []int

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		// Resolve the target first: the still-pending guard on this update
		// is the sole protection against double-processing, so it must
		// gate every other mutation in the transaction.
		affected, err := s.stepRepo.ResolveIfPending(txCtx, target.ID, status, actingApproverID, notes, now)
		if err != nil {
			return fmt.Errorf("resolve step: %w", err)
		}
		if affected == 0 {
			return ErrConcurrentModification
		}

		if targetLevel > current.LevelOrder {
			if _, err := s.stepRepo.SkipPendingBelow(txCtx, entityType, entityID, targetLevel, now); err != nil {
				return fmt.Errorf("skip overridden steps: %w", err)
			}
			for lvl := current.LevelOrder; lvl < targetLevel; lvl++ {
				skipped = append(skipped, lvl)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reflect the mutation locally rather than re-reading.
	target.Status = status
	target.ApproverID = actingApproverID
	target.ActionAt = &now
	target.Notes = notes
	for _, st := range steps {
		if st.Status == entity.StepPending && st.LevelOrder < targetLevel {
			st.Status = entity.StepSkipped
			st.ActionAt = &now
		}
	}

	result := &ActionResult{
		Step:          target,
		ChainStatus:   entity.ChainStatusOf(steps),
		SkippedLevels: skipped,
	}
	if result.ChainStatus == entity.ChainPending {
		result.NextStep = entity.CurrentStep(steps)
	}

	s.logger.Info("Approval action recorded",
		"entity_type", entityType, "entity_id", entityID,
		"level", targetLevel, "action", action,
		"approver", actingApproverID, "chain_status", result.ChainStatus)

	// Any action through the primary interface makes outstanding chat
	// buttons for this entity stale.
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateForEntity(ctx, entityType, entityID); err != nil {
			s.logger.Error("Failed to invalidate action tokens", "error", err,
				"entity_type", entityType, "entity_id", entityID)
		}
	}

	s.notifyNextLevel(target.TenantID, entityType, entityID, result)

	return result, nil
}

// notifyNextLevel fires the notification round for the step that became
// actionable after an advance. No-op when the chain resolved.
func (s *chainServiceImpl) notifyNextLevel(tenantID string, entityType entity.EntityType, entityID int64, result *ActionResult) {
	if result.ChainStatus != entity.ChainPending || result.NextStep == nil {
		return
	}
	s.notifyAsync(tenantID, entityType, entityID, result.NextStep.RequiredRole)
}

// CancelChain skips every remaining PENDING step. Calling it on an already
// resolved chain is a no-op.
func (s *chainServiceImpl) CancelChain(ctx context.Context, entityType entity.EntityType, entityID int64) error {
	now := s.now()
	affected, err := s.stepRepo.SkipAllPending(ctx, entityType, entityID, now)
	if err != nil {
		return fmt.Errorf("skip pending steps: %w", err)
	}

	if affected > 0 {
		s.logger.Info("Approval chain cancelled",
			"entity_type", entityType, "entity_id", entityID, "skipped", affected)
		if s.invalidator != nil {
			if err := s.invalidator.InvalidateForEntity(ctx, entityType, entityID); err != nil {
				s.logger.Error("Failed to invalidate action tokens on cancel", "error", err,
					"entity_type", entityType, "entity_id", entityID)
			}
		}
	}
	return nil
}

// GetSummary loads the chain and derives its summary for the asking user.
func (s *chainServiceImpl) GetSummary(ctx context.Context, entityType entity.EntityType, entityID int64, askingUserID, requesterID string) (*entity.ApprovalSummary, error) {
	steps, err := s.stepRepo.GetByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}

	summary := ComputeSummary(steps)
	if summary.CurrentStep != nil && askingUserID != "" && s.approvers != nil {
		summary.CanCurrentUserApprove = s.approvers.CanApprove(ctx,
			summary.CurrentStep.TenantID, askingUserID,
			summary.CurrentStep.RequiredRole, requesterID)
	}
	return summary, nil
}

// ListSteps returns every step of an entity's chain ordered by level.
func (s *chainServiceImpl) ListSteps(ctx context.Context, entityType entity.EntityType, entityID int64) ([]*entity.ApprovalStep, error) {
	steps, err := s.stepRepo.GetByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	return steps, nil
}

// ComputeSummary derives the chain view from a step list. Pure.
func ComputeSummary(steps []*entity.ApprovalStep) *entity.ApprovalSummary {
	summary := &entity.ApprovalSummary{
		TotalSteps: len(steps),
		Status:     entity.ChainStatusOf(steps),
	}
	for _, st := range steps {
		if st.Status.IsTerminal() {
			summary.CompletedSteps++
		}
	}
	summary.CurrentStep = entity.CurrentStep(steps)
	return summary
}

// notifyAsync fires the notification round for a newly actionable step
// without joining it. The dispatcher owns its own error boundary; a
// notification failure must never surface as a state-transition failure.
func (s *chainServiceImpl) notifyAsync(tenantID string, entityType entity.EntityType, entityID int64, role entity.ApprovalRole) {
	if s.notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Notification round panicked", "panic", r,
					"entity_type", entityType, "entity_id", entityID)
			}
		}()
		s.notifier.NotifyForStep(context.Background(), tenantID, entityType, entityID, role)
	}()
}
