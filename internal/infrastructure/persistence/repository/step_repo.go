package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"github.com/opsdeck/approvalflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts all steps of one chain in a single transaction
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	if len(steps) == 0 {
		return nil
	}

	query := `
		INSERT INTO approval_steps (
			tenant_id, entity_type, entity_id, level_order,
			required_role, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	run := func(txCtx context.Context, exec executor) error {
		for _, step := range steps {
			result, err := exec.ExecContext(txCtx, query,
				step.TenantID,
				step.EntityType,
				step.EntityID,
				step.LevelOrder,
				step.RequiredRole,
				step.Status,
				step.CreatedAt,
				step.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert step level %d: %w", step.LevelOrder, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			step.ID = id
		}
		return nil
	}

	// Join an enclosing transaction when present, otherwise open one so
	// the chain is created atomically.
	if tx := sqlite.TxFromContext(ctx); tx != nil {
		return run(ctx, tx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := run(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Failed to rollback step batch", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step batch: %w", err)
	}
	return nil
}

// GetByEntity retrieves all steps of an entity ordered by level
func (r *StepRepository) GetByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) ([]*entity.ApprovalStep, error) {
	query := `
		SELECT id, tenant_id, entity_type, entity_id, level_order,
			required_role, status, approver_id, action_at, notes,
			created_at, updated_at
		FROM approval_steps
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY level_order ASC
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		r.logger.Error("Failed to query steps", zap.Error(err),
			zap.String("entity_type", string(entityType)), zap.Int64("entity_id", entityID))
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ResolveIfPending flips a step out of PENDING under the optimistic guard.
// The WHERE status = 'PENDING' clause is the correctness mechanism against
// concurrent approvers; zero affected rows means someone else won.
func (r *StepRepository) ResolveIfPending(ctx context.Context, stepID int64, status entity.StepStatus, approverID, notes string, actionAt time.Time) (int64, error) {
	query := `
		UPDATE approval_steps
		SET status = ?, approver_id = ?, notes = ?, action_at = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING'
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		status, approverID, notes, actionAt, actionAt, stepID)
	if err != nil {
		r.logger.Error("Failed to resolve step", zap.Error(err), zap.Int64("step_id", stepID))
		return 0, fmt.Errorf("failed to resolve step: %w", err)
	}
	return result.RowsAffected()
}

// SkipPendingBelow skips every PENDING step below the given level
func (r *StepRepository) SkipPendingBelow(ctx context.Context, entityType entity.EntityType, entityID int64, belowLevel int, actionAt time.Time) (int64, error) {
	query := `
		UPDATE approval_steps
		SET status = 'SKIPPED', action_at = ?, updated_at = ?
		WHERE entity_type = ? AND entity_id = ?
			AND level_order < ? AND status = 'PENDING'
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		actionAt, actionAt, entityType, entityID, belowLevel)
	if err != nil {
		return 0, fmt.Errorf("failed to skip overridden steps: %w", err)
	}
	return result.RowsAffected()
}

// SkipAllPending skips every remaining PENDING step of an entity
func (r *StepRepository) SkipAllPending(ctx context.Context, entityType entity.EntityType, entityID int64, actionAt time.Time) (int64, error) {
	query := `
		UPDATE approval_steps
		SET status = 'SKIPPED', action_at = ?, updated_at = ?
		WHERE entity_type = ? AND entity_id = ? AND status = 'PENDING'
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		actionAt, actionAt, entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to skip pending steps: %w", err)
	}
	return result.RowsAffected()
}

func scanStep(rows *sql.Rows) (*entity.ApprovalStep, error) {
	var step entity.ApprovalStep
	var approverID, notes sql.NullString
	var actionAt sql.NullTime

	err := rows.Scan(
		&step.ID,
		&step.TenantID,
		&step.EntityType,
		&step.EntityID,
		&step.LevelOrder,
		&step.RequiredRole,
		&step.Status,
		&approverID,
		&actionAt,
		&notes,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	step.ApproverID = approverID.String
	step.Notes = notes.String
	if actionAt.Valid {
		step.ActionAt = &actionAt.Time
	}
	return &step, nil
}
