package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"go.uber.org/zap"
)

// TenantRepository implements port.TenantRepository
type TenantRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *sql.DB, logger *zap.Logger) port.TenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a tenant by id
func (r *TenantRepository) GetByID(ctx context.Context, tenantID string) (*entity.Tenant, error) {
	query := `
		SELECT id, name, channel_enabled, policy_json, created_at
		FROM tenants
		WHERE id = ?
	`

	var tenant entity.Tenant
	var policyJSON sql.NullString

	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, tenantID).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.ChannelEnabled,
		&policyJSON,
		&tenant.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get tenant", zap.Error(err), zap.String("tenant_id", tenantID))
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	tenant.PolicyJSON = policyJSON.String
	return &tenant, nil
}
