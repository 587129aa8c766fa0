package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"go.uber.org/zap"
)

// TokenRepository implements port.TokenRepository
type TokenRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *sql.DB, logger *zap.Logger) port.TokenRepository {
	return &TokenRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new action token
func (r *TokenRepository) Create(ctx context.Context, token *entity.ActionToken) error {
	query := `
		INSERT INTO action_tokens (
			token, tenant_id, entity_type, entity_id, action,
			approver_id, expires_at, used, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		token.Token,
		token.TenantID,
		token.EntityType,
		token.EntityID,
		token.Action,
		token.ApproverID,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create token", zap.Error(err))
		return fmt.Errorf("failed to create token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	token.ID = id
	return nil
}

// GetByToken retrieves a token by its opaque string
func (r *TokenRepository) GetByToken(ctx context.Context, tokenStr string) (*entity.ActionToken, error) {
	query := `
		SELECT id, token, tenant_id, entity_type, entity_id, action,
			approver_id, expires_at, used, used_at, created_at
		FROM action_tokens
		WHERE token = ?
	`

	var token entity.ActionToken
	var usedAt sql.NullTime

	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, tokenStr).Scan(
		&token.ID,
		&token.Token,
		&token.TenantID,
		&token.EntityType,
		&token.EntityID,
		&token.Action,
		&token.ApproverID,
		&token.ExpiresAt,
		&token.Used,
		&usedAt,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get token", zap.Error(err))
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if usedAt.Valid {
		token.UsedAt = &usedAt.Time
	}
	return &token, nil
}

// ConsumeIfUnused marks a token used under the atomic single-use guard.
// Zero affected rows means a concurrent consumer already took it.
func (r *TokenRepository) ConsumeIfUnused(ctx context.Context, tokenID int64, usedAt time.Time) (int64, error) {
	query := `
		UPDATE action_tokens
		SET used = 1, used_at = ?
		WHERE id = ? AND used = 0
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query, usedAt, tokenID)
	if err != nil {
		return 0, fmt.Errorf("failed to consume token: %w", err)
	}
	return result.RowsAffected()
}

// InvalidateForEntity marks all unused tokens of an entity used
func (r *TokenRepository) InvalidateForEntity(ctx context.Context, entityType entity.EntityType, entityID int64, usedAt time.Time) (int64, error) {
	query := `
		UPDATE action_tokens
		SET used = 1, used_at = ?
		WHERE entity_type = ? AND entity_id = ? AND used = 0
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query, usedAt, entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate tokens: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpired removes expired unused tokens and used tokens past the
// audit retention window
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time, usedBefore time.Time) (int64, error) {
	query := `
		DELETE FROM action_tokens
		WHERE (used = 0 AND expires_at < ?)
			OR (used = 1 AND used_at < ?)
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query, now, usedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}
