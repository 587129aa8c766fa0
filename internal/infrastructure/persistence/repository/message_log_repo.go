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

// MessageLogRepository implements port.MessageLogRepository
type MessageLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMessageLogRepository creates a new message log repository
func NewMessageLogRepository(db *sql.DB, logger *zap.Logger) port.MessageLogRepository {
	return &MessageLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create records one notification attempt
func (r *MessageLogRepository) Create(ctx context.Context, log *entity.MessageLog) error {
	query := `
		INSERT INTO message_logs (
			tenant_id, entity_type, entity_id, recipient_id, phone,
			template, remote_id, status, error_msg, sent_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		log.TenantID,
		log.EntityType,
		log.EntityID,
		log.RecipientID,
		log.Phone,
		log.Template,
		log.RemoteID,
		log.Status,
		log.ErrorMsg,
		log.SentAt,
		log.SentAt,
	)
	if err != nil {
		r.logger.Error("Failed to create message log", zap.Error(err))
		return fmt.Errorf("failed to create message log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	log.ID = id
	return nil
}

// UpdateStatusByRemoteID applies a delivery receipt from the channel.
// Receipts for unknown message ids are ignored.
func (r *MessageLogRepository) UpdateStatusByRemoteID(ctx context.Context, remoteID string, status entity.MessageStatus, errorMsg string) error {
	query := `
		UPDATE message_logs
		SET status = ?, error_msg = ?, updated_at = ?
		WHERE remote_id = ?
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query, status, errorMsg, time.Now(), remoteID)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

// GetByEntity returns the notification history of an entity
func (r *MessageLogRepository) GetByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) ([]*entity.MessageLog, error) {
	query := `
		SELECT id, tenant_id, entity_type, entity_id, recipient_id, phone,
			template, remote_id, status, error_msg, sent_at, updated_at
		FROM message_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY sent_at ASC
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query message logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.MessageLog
	for rows.Next() {
		var log entity.MessageLog
		var remoteID, errorMsg sql.NullString
		err := rows.Scan(
			&log.ID,
			&log.TenantID,
			&log.EntityType,
			&log.EntityID,
			&log.RecipientID,
			&log.Phone,
			&log.Template,
			&remoteID,
			&log.Status,
			&errorMsg,
			&log.SentAt,
			&log.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message log: %w", err)
		}
		log.RemoteID = remoteID.String
		log.ErrorMsg = errorMsg.String
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
