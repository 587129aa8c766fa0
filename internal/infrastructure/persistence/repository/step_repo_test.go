package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"github.com/opsdeck/approvalflow/internal/infrastructure/persistence/sqlite"
)

const stepSchema = `
	CREATE TABLE approval_steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		level_order INTEGER NOT NULL,
		required_role TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		approver_id TEXT,
		action_at DATETIME,
		notes TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (entity_type, entity_id, level_order)
	);
`

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A single connection keeps every statement on the same in-memory
	// database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(stepSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSteps(n int) []*entity.ApprovalStep {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	roles := []entity.ApprovalRole{entity.RoleManager, entity.RoleHRManager, entity.RoleDirector}
	steps := make([]*entity.ApprovalStep, 0, n)
	for i := 0; i < n; i++ {
		steps = append(steps, &entity.ApprovalStep{
			TenantID:     "tenant-1",
			EntityType:   entity.EntityTypeLeave,
			EntityID:     42,
			LevelOrder:   i + 1,
			RequiredRole: roles[i%len(roles)],
			Status:       entity.StepPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return steps
}

func TestStepRepository_CreateBatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewStepRepository(db, zap.NewNop())

	steps := testSteps(3)
	if err := repo.CreateBatch(context.Background(), steps); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	for i, st := range steps {
		if st.ID == 0 {
			t.Errorf("step %d has no assigned id", i+1)
		}
	}

	got, err := repo.GetByEntity(context.Background(), entity.EntityTypeLeave, 42)
	if err != nil {
		t.Fatalf("GetByEntity() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetByEntity() returned %d steps, want 3", len(got))
	}
	for i, st := range got {
		if st.LevelOrder != i+1 {
			t.Errorf("step %d has level %d, want ascending order", i, st.LevelOrder)
		}
	}
}

func TestStepRepository_CreateBatchJoinsEnclosingTransaction(t *testing.T) {
	db := newTestDB(t)
	repo := NewStepRepository(db, zap.NewNop())
	txManager := sqlite.NewDB(db, zap.NewNop())

	// A failing transaction body must roll back the inserted steps, which
	// only happens when CreateBatch runs on the transaction the manager
	// planted instead of the bare pool.
	wantErr := errors.New("abort after insert")
	err := txManager.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if err := repo.CreateBatch(txCtx, testSteps(2)); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithTransaction() error = %v, want the aborting error", err)
	}

	got, err := repo.GetByEntity(context.Background(), entity.EntityTypeLeave, 42)
	if err != nil {
		t.Fatalf("GetByEntity() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("rolled-back batch left %d steps behind, want 0", len(got))
	}

	// The same batch succeeds when the transaction commits.
	err = txManager.WithTransaction(context.Background(), func(txCtx context.Context) error {
		return repo.CreateBatch(txCtx, testSteps(2))
	})
	if err != nil {
		t.Fatalf("WithTransaction() error = %v", err)
	}
	got, err = repo.GetByEntity(context.Background(), entity.EntityTypeLeave, 42)
	if err != nil {
		t.Fatalf("GetByEntity() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("committed batch persisted %d steps, want 2", len(got))
	}
}

func TestStepRepository_ResolveIfPendingGuard(t *testing.T) {
	db := newTestDB(t)
	repo := NewStepRepository(db, zap.NewNop())

	steps := testSteps(1)
	if err := repo.CreateBatch(context.Background(), steps); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	now := time.Now().UTC()
	affected, err := repo.ResolveIfPending(context.Background(), steps[0].ID, entity.StepApproved, "mgr-1", "", now)
	if err != nil {
		t.Fatalf("ResolveIfPending() error = %v", err)
	}
	if affected != 1 {
		t.Fatalf("first resolve affected %d rows, want 1", affected)
	}

	// The still-pending guard rejects a second resolution of the same step.
	affected, err = repo.ResolveIfPending(context.Background(), steps[0].ID, entity.StepRejected, "mgr-2", "", now)
	if err != nil {
		t.Fatalf("second ResolveIfPending() error = %v", err)
	}
	if affected != 0 {
		t.Errorf("second resolve affected %d rows, want 0", affected)
	}
}
