package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// Mock repositories. The step repo keeps an in-memory step list and applies
// the same conditional-update semantics as the SQL implementation, so the
// state machine can be exercised against realistic guard behavior.

type mockStepRepo struct {
	mu    sync.Mutex
	steps []*entity.ApprovalStep

	createBatchFunc      func(ctx context.Context, steps []*entity.ApprovalStep) error
	getByEntityFunc      func(ctx context.Context, entityType entity.EntityType, entityID int64) ([]*entity.ApprovalStep, error)
	resolveIfPendingFunc func(ctx context.Context, stepID int64, status entity.StepStatus, approverID, notes string, actionAt time.Time) (int64, error)
}

func (m *mockStepRepo) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	if m.createBatchFunc != nil {
		return m.createBatchFunc(ctx, steps)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range steps {
		s.ID = int64(len(m.steps) + i + 1)
	}
	m.steps = append(m.steps, steps...)
	return nil
}

func (m *mockStepRepo) GetByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) ([]*entity.ApprovalStep, error) {
	if m.getByEntityFunc != nil {
		return m.getByEntityFunc(ctx, entityType, entityID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalStep
	for _, s := range m.steps {
		if s.EntityType == entityType && s.EntityID == entityID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockStepRepo) ResolveIfPending(ctx context.Context, stepID int64, status entity.StepStatus, approverID, notes string, actionAt time.Time) (int64, error) {
	if m.resolveIfPendingFunc != nil {
		return m.resolveIfPendingFunc(ctx, stepID, status, approverID, notes, actionAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.ID == stepID && s.Status == entity.StepPending {
			s.Status = status
			s.ApproverID = approverID
			s.Notes = notes
			s.ActionAt = &actionAt
			return 1, nil
		}
	}
	return 0, nil
}

func (m *mockStepRepo) SkipPendingBelow(ctx context.Context, entityType entity.EntityType, entityID int64, belowLevel int, actionAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for _, s := range m.steps {
		if s.EntityType == entityType && s.EntityID == entityID &&
			s.LevelOrder < belowLevel && s.Status == entity.StepPending {
			s.Status = entity.StepSkipped
			s.ActionAt = &actionAt
			affected++
		}
	}
	return affected, nil
}

func (m *mockStepRepo) SkipAllPending(ctx context.Context, entityType entity.EntityType, entityID int64, actionAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for _, s := range m.steps {
		if s.EntityType == entityType && s.EntityID == entityID && s.Status == entity.StepPending {
			s.Status = entity.StepSkipped
			s.ActionAt = &actionAt
			affected++
		}
	}
	return affected, nil
}

func (m *mockStepRepo) statusAt(level int) entity.StepStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.LevelOrder == level {
			return s.Status
		}
	}
	return ""
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockNotifier signals each notification round on a channel so tests can
// wait for the fire-and-forget goroutine deterministically.
type mockNotifier struct {
	rounds chan entity.ApprovalRole
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{rounds: make(chan entity.ApprovalRole, 8)}
}

func (m *mockNotifier) NotifyForStep(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, role entity.ApprovalRole) {
	m.rounds <- role
}

func (m *mockNotifier) waitForRound(t *testing.T) entity.ApprovalRole {
	t.Helper()
	select {
	case role := <-m.rounds:
		return role
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification round")
		return ""
	}
}

func (m *mockNotifier) assertNoRound(t *testing.T) {
	t.Helper()
	select {
	case role := <-m.rounds:
		t.Fatalf("unexpected notification round for role %s", role)
	case <-time.After(50 * time.Millisecond):
	}
}

type mockInvalidator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockInvalidator) InvalidateForEntity(ctx context.Context, entityType entity.EntityType, entityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func (m *mockInvalidator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newChainFixture() (*mockStepRepo, *mockNotifier, *mockInvalidator, ChainService) {
	stepRepo := &mockStepRepo{}
	notifier := newMockNotifier()
	invalidator := &mockInvalidator{}
	svc := NewChainService(stepRepo, &mockTxManager{}, notifier, invalidator, nil, &mockLogger{})
	return stepRepo, notifier, invalidator, svc
}

func seedChain(t *testing.T, repo *mockStepRepo, svc ChainService, roles ...entity.ApprovalRole) {
	t.Helper()
	_, err := svc.InitializeChain(context.Background(), "tenant-1", entity.EntityTypeLeave, 42, roles)
	if err != nil {
		t.Fatalf("InitializeChain() error = %v", err)
	}
}

func TestChainService_InitializeChain(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()

	roles := []entity.ApprovalRole{entity.RoleManager, entity.RoleHRManager, entity.RoleDirector}
	steps, err := svc.InitializeChain(context.Background(), "tenant-1", entity.EntityTypeLeave, 42, roles)
	if err != nil {
		t.Fatalf("InitializeChain() error = %v", err)
	}

	if len(steps) != 3 {
		t.Fatalf("InitializeChain() created %d steps, want 3", len(steps))
	}
	for i, s := range steps {
		if s.LevelOrder != i+1 {
			t.Errorf("step %d has level %d, want %d", i, s.LevelOrder, i+1)
		}
		if s.Status != entity.StepPending {
			t.Errorf("step %d status = %s, want PENDING", i, s.Status)
		}
		if s.RequiredRole != roles[i] {
			t.Errorf("step %d role = %s, want %s", i, s.RequiredRole, roles[i])
		}
	}

	if got := notifier.waitForRound(t); got != entity.RoleManager {
		t.Errorf("first notification round for role %s, want MANAGER", got)
	}

	if len(stepRepo.steps) != 3 {
		t.Errorf("repo holds %d steps, want 3", len(stepRepo.steps))
	}
}

func TestChainService_InitializeChain_EmptyRoles(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()

	steps, err := svc.InitializeChain(context.Background(), "tenant-1", entity.EntityTypeLeave, 42, nil)
	if err != nil {
		t.Fatalf("InitializeChain() error = %v", err)
	}
	if steps != nil {
		t.Errorf("InitializeChain() with no roles returned %d steps, want none", len(steps))
	}
	if len(stepRepo.steps) != 0 {
		t.Errorf("repo holds %d steps, want 0", len(stepRepo.steps))
	}
	notifier.assertNoRound(t)
}

func TestChainService_InitializeChain_RefusesExisting(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager)
	notifier.waitForRound(t)

	_, err := svc.InitializeChain(context.Background(), "tenant-1", entity.EntityTypeLeave, 42,
		[]entity.ApprovalRole{entity.RoleDirector})
	if !errors.Is(err, ErrChainExists) {
		t.Errorf("InitializeChain() over live steps error = %v, want ErrChainExists", err)
	}
}

func TestChainService_RecordAction_ApproveAdvances(t *testing.T) {
	stepRepo, notifier, invalidator, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager, entity.RoleHRManager)
	notifier.waitForRound(t)

	result, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"approver-1", 1, entity.ActionApprove, "")
	if err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	if result.ChainStatus != entity.ChainPending {
		t.Errorf("chain status = %s, want PENDING", result.ChainStatus)
	}
	if result.Step.Status != entity.StepApproved {
		t.Errorf("acted step status = %s, want APPROVED", result.Step.Status)
	}
	if result.NextStep == nil || result.NextStep.LevelOrder != 2 {
		t.Errorf("next step = %+v, want level 2", result.NextStep)
	}
	if result.Step.ApproverID != "approver-1" {
		t.Errorf("acted step approver = %s, want approver-1", result.Step.ApproverID)
	}

	// The follow-up round targets the newly actionable role.
	if got := notifier.waitForRound(t); got != entity.RoleHRManager {
		t.Errorf("notification round for role %s, want HR_MANAGER", got)
	}

	if invalidator.callCount() != 1 {
		t.Errorf("invalidator called %d times, want 1", invalidator.callCount())
	}
}

func TestChainService_RecordAction_FinalApproveResolvesChain(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager)
	notifier.waitForRound(t)

	result, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"approver-1", 1, entity.ActionApprove, "")
	if err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	if result.ChainStatus != entity.ChainApproved {
		t.Errorf("chain status = %s, want APPROVED", result.ChainStatus)
	}
	if result.NextStep != nil {
		t.Errorf("next step = %+v, want nil on a resolved chain", result.NextStep)
	}
	notifier.assertNoRound(t)
}

func TestChainService_RecordAction_RejectTerminatesChain(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager, entity.RoleHRManager, entity.RoleDirector)
	notifier.waitForRound(t)

	result, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"approver-1", 1, entity.ActionReject, "over budget")
	if err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	if result.ChainStatus != entity.ChainRejected {
		t.Errorf("chain status = %s, want REJECTED", result.ChainStatus)
	}
	if result.NextStep != nil {
		t.Errorf("next step = %+v, want nil after rejection", result.NextStep)
	}

	// Rejection terminates the chain without touching the remaining rows.
	if got := stepRepo.statusAt(2); got != entity.StepPending {
		t.Errorf("level 2 status = %s, want PENDING left untouched", got)
	}
	if got := stepRepo.statusAt(3); got != entity.StepPending {
		t.Errorf("level 3 status = %s, want PENDING left untouched", got)
	}
	notifier.assertNoRound(t)
}

func TestChainService_RecordAction_OverrideSkipsIntermediates(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager, entity.RoleHRManager, entity.RoleDirector)
	notifier.waitForRound(t)

	result, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"director-1", 3, entity.ActionApprove, "urgent hire, signing off directly")
	if err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	if result.ChainStatus != entity.ChainApproved {
		t.Errorf("chain status = %s, want APPROVED", result.ChainStatus)
	}
	if len(result.SkippedLevels) != 2 || result.SkippedLevels[0] != 1 || result.SkippedLevels[1] != 2 {
		t.Errorf("skipped levels = %v, want [1 2]", result.SkippedLevels)
	}
	if got := stepRepo.statusAt(1); got != entity.StepSkipped {
		t.Errorf("level 1 status = %s, want SKIPPED", got)
	}
	if got := stepRepo.statusAt(2); got != entity.StepSkipped {
		t.Errorf("level 2 status = %s, want SKIPPED", got)
	}
	if got := stepRepo.statusAt(3); got != entity.StepApproved {
		t.Errorf("level 3 status = %s, want APPROVED", got)
	}
}

func TestChainService_RecordAction_OverrideRequiresNotes(t *testing.T) {
	stepRepo, notifier, invalidator, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager, entity.RoleDirector)
	notifier.waitForRound(t)

	_, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"director-1", 2, entity.ActionApprove, "")
	if !errors.Is(err, ErrNotesRequired) {
		t.Fatalf("RecordAction() error = %v, want ErrNotesRequired", err)
	}

	// The refused override must not mutate anything.
	if got := stepRepo.statusAt(1); got != entity.StepPending {
		t.Errorf("level 1 status = %s, want PENDING", got)
	}
	if got := stepRepo.statusAt(2); got != entity.StepPending {
		t.Errorf("level 2 status = %s, want PENDING", got)
	}
	if invalidator.callCount() != 0 {
		t.Errorf("invalidator called %d times on a refused action, want 0", invalidator.callCount())
	}
}

func TestChainService_RecordAction_StaleTarget(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager, entity.RoleHRManager)
	notifier.waitForRound(t)

	if _, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"approver-1", 1, entity.ActionApprove, ""); err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}
	notifier.waitForRound(t)

	// Acting on level 1 again targets a level below the current step.
	_, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"approver-2", 1, entity.ActionApprove, "")
	if !errors.Is(err, ErrStepAlreadyResolved) {
		t.Errorf("RecordAction() on resolved level error = %v, want ErrStepAlreadyResolved", err)
	}
}

func TestChainService_RecordAction_ConcurrentLoser(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager)
	notifier.waitForRound(t)

	// Simulate another approver winning the conditional update between the
	// read and the write.
	stepRepo.resolveIfPendingFunc = func(ctx context.Context, stepID int64, status entity.StepStatus, approverID, notes string, actionAt time.Time) (int64, error) {
		return 0, nil
	}

	_, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"approver-1", 1, entity.ActionApprove, "")
	if !errors.Is(err, ErrConcurrentModification) {
		t.Errorf("RecordAction() error = %v, want ErrConcurrentModification", err)
	}
}

func TestChainService_RecordAction_InvalidInputs(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager)
	notifier.waitForRound(t)

	tests := []struct {
		name    string
		level   int
		action  entity.StepAction
		wantErr error
	}{
		{name: "unknown action", level: 1, action: entity.StepAction("escalate"), wantErr: ErrInvalidAction},
		{name: "nonexistent level", level: 9, action: entity.ActionApprove, wantErr: ErrStepNotFound},
		{name: "zero level", level: 0, action: entity.ActionApprove, wantErr: ErrStepNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
				"approver-1", tt.level, tt.action, "notes")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RecordAction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChainService_RecordAction_ResolvedChain(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager)
	notifier.waitForRound(t)

	if _, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"approver-1", 1, entity.ActionApprove, ""); err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	_, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"approver-2", 1, entity.ActionReject, "")
	if !errors.Is(err, ErrChainNotPending) {
		t.Errorf("RecordAction() on resolved chain error = %v, want ErrChainNotPending", err)
	}
}

func TestChainService_CancelChain(t *testing.T) {
	stepRepo, notifier, invalidator, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager, entity.RoleHRManager)
	notifier.waitForRound(t)

	if err := svc.CancelChain(context.Background(), entity.EntityTypeLeave, 42); err != nil {
		t.Fatalf("CancelChain() error = %v", err)
	}

	if got := stepRepo.statusAt(1); got != entity.StepSkipped {
		t.Errorf("level 1 status = %s, want SKIPPED", got)
	}
	if got := stepRepo.statusAt(2); got != entity.StepSkipped {
		t.Errorf("level 2 status = %s, want SKIPPED", got)
	}
	if invalidator.callCount() != 1 {
		t.Errorf("invalidator called %d times, want 1", invalidator.callCount())
	}

	// Cancelling again is a no-op and does not invalidate tokens twice.
	if err := svc.CancelChain(context.Background(), entity.EntityTypeLeave, 42); err != nil {
		t.Fatalf("second CancelChain() error = %v", err)
	}
	if invalidator.callCount() != 1 {
		t.Errorf("invalidator called %d times after idempotent cancel, want 1", invalidator.callCount())
	}
}

// Full walk of a three-level chain through its primary path.
func TestChainService_ThreeLevelWalk(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager, entity.RoleHRManager, entity.RoleDirector)

	if got := notifier.waitForRound(t); got != entity.RoleManager {
		t.Fatalf("round 1 for role %s, want MANAGER", got)
	}

	res, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"mgr-1", 1, entity.ActionApprove, "")
	if err != nil {
		t.Fatalf("level 1 approve error = %v", err)
	}
	if res.ChainStatus != entity.ChainPending || res.NextStep.LevelOrder != 2 {
		t.Fatalf("after level 1: status %s next %+v", res.ChainStatus, res.NextStep)
	}
	if got := notifier.waitForRound(t); got != entity.RoleHRManager {
		t.Fatalf("round 2 for role %s, want HR_MANAGER", got)
	}

	res, err = svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"hr-1", 2, entity.ActionApprove, "")
	if err != nil {
		t.Fatalf("level 2 approve error = %v", err)
	}
	if res.NextStep.LevelOrder != 3 {
		t.Fatalf("after level 2: next %+v", res.NextStep)
	}
	if got := notifier.waitForRound(t); got != entity.RoleDirector {
		t.Fatalf("round 3 for role %s, want DIRECTOR", got)
	}

	res, err = svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"dir-1", 3, entity.ActionApprove, "")
	if err != nil {
		t.Fatalf("level 3 approve error = %v", err)
	}
	if res.ChainStatus != entity.ChainApproved {
		t.Fatalf("final status = %s, want APPROVED", res.ChainStatus)
	}

	summary, err := svc.GetSummary(context.Background(), entity.EntityTypeLeave, 42, "", "")
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.TotalSteps != 3 || summary.CompletedSteps != 3 || summary.CurrentStep != nil {
		t.Errorf("summary = %+v, want 3/3 complete with no current step", summary)
	}
}

func TestComputeSummary(t *testing.T) {
	steps := []*entity.ApprovalStep{
		{LevelOrder: 1, Status: entity.StepApproved},
		{LevelOrder: 2, Status: entity.StepPending, RequiredRole: entity.RoleHRManager},
		{LevelOrder: 3, Status: entity.StepPending},
	}

	summary := ComputeSummary(steps)
	if summary.TotalSteps != 3 {
		t.Errorf("TotalSteps = %d, want 3", summary.TotalSteps)
	}
	if summary.CompletedSteps != 1 {
		t.Errorf("CompletedSteps = %d, want 1", summary.CompletedSteps)
	}
	if summary.Status != entity.ChainPending {
		t.Errorf("Status = %s, want PENDING", summary.Status)
	}
	if summary.CurrentStep == nil || summary.CurrentStep.LevelOrder != 2 {
		t.Errorf("CurrentStep = %+v, want level 2", summary.CurrentStep)
	}
}

func TestChainService_ListSteps(t *testing.T) {
	stepRepo, notifier, _, svc := newChainFixture()
	seedChain(t, stepRepo, svc, entity.RoleManager, entity.RoleHRManager)
	notifier.waitForRound(t)

	if _, err := svc.RecordAction(context.Background(), entity.EntityTypeLeave, 42,
		"mgr-1", 1, entity.ActionApprove, ""); err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}
	notifier.waitForRound(t)

	steps, err := svc.ListSteps(context.Background(), entity.EntityTypeLeave, 42)
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("ListSteps() returned %d steps, want 2", len(steps))
	}
	if steps[0].LevelOrder != 1 || steps[0].Status != entity.StepApproved {
		t.Errorf("step 1 = level %d status %s, want approved level 1", steps[0].LevelOrder, steps[0].Status)
	}
	if steps[1].LevelOrder != 2 || steps[1].Status != entity.StepPending {
		t.Errorf("step 2 = level %d status %s, want pending level 2", steps[1].LevelOrder, steps[1].Status)
	}
}
