package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"go.uber.org/zap"
)

// RequestRepository implements port.RequestSource over the snapshot rows
// the surrounding application writes when a request is submitted.
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestSource {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// GetSnapshot retrieves the routing-relevant attributes of a request
func (r *RequestRepository) GetSnapshot(ctx context.Context, entityType entity.EntityType, entityID int64) (*entity.RequestSnapshot, error) {
	query := `
		SELECT tenant_id, entity_type, entity_id, requester_id, title,
			leave_category, leave_days, amount_cents, currency,
			asset_category, submitted_at
		FROM requests
		WHERE entity_type = ? AND entity_id = ?
	`

	var snap entity.RequestSnapshot
	var leaveCategory, currency, assetCategory sql.NullString
	var leaveDays sql.NullInt64
	var amountCents sql.NullInt64

	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, entityType, entityID).Scan(
		&snap.TenantID,
		&snap.EntityType,
		&snap.EntityID,
		&snap.RequesterID,
		&snap.Title,
		&leaveCategory,
		&leaveDays,
		&amountCents,
		&currency,
		&assetCategory,
		&snap.SubmittedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("request %s/%d not found", entityType, entityID)
	}
	if err != nil {
		r.logger.Error("Failed to get request snapshot", zap.Error(err),
			zap.String("entity_type", string(entityType)), zap.Int64("entity_id", entityID))
		return nil, fmt.Errorf("failed to get request snapshot: %w", err)
	}

	snap.LeaveCategory = leaveCategory.String
	snap.LeaveDays = int(leaveDays.Int64)
	snap.AmountCents = amountCents.Int64
	snap.Currency = currency.String
	snap.AssetCategory = assetCategory.String
	return &snap, nil
}
