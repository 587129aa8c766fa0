package port

import (
	"context"
	"time"

	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// StepRepository defines persistence operations for ApprovalStep.
// Conditional updates return the number of rows affected so callers can
// implement optimistic "only if still pending" guards.
type StepRepository interface {
	// CreateBatch inserts all steps for one chain atomically.
	CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error

	// GetByEntity returns all steps for an entity ordered by level_order.
	GetByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) ([]*entity.ApprovalStep, error)

	// ResolveIfPending flips a step out of PENDING, stamping approver,
	// action time and notes. Returns the number of rows updated: 0 means
	// the step was already resolved by a concurrent caller.
	ResolveIfPending(ctx context.Context, stepID int64, status entity.StepStatus, approverID, notes string, actionAt time.Time) (int64, error)

	// SkipPendingBelow marks every PENDING step of the entity with
	// level_order < belowLevel as SKIPPED. Returns rows updated.
	SkipPendingBelow(ctx context.Context, entityType entity.EntityType, entityID int64, belowLevel int, actionAt time.Time) (int64, error)

	// SkipAllPending marks every remaining PENDING step SKIPPED.
	// Used when the underlying request is withdrawn.
	SkipAllPending(ctx context.Context, entityType entity.EntityType, entityID int64, actionAt time.Time) (int64, error)
}

// TokenRepository defines persistence operations for ActionToken.
type TokenRepository interface {
	Create(ctx context.Context, token *entity.ActionToken) error
	GetByToken(ctx context.Context, token string) (*entity.ActionToken, error)

	// ConsumeIfUnused flips used=true only if the token is still unused.
	// Returns rows updated: 0 means a concurrent consumer won the race.
	ConsumeIfUnused(ctx context.Context, tokenID int64, usedAt time.Time) (int64, error)

	// InvalidateForEntity marks all unused tokens of an entity used without
	// triggering their action, so stale chat buttons become inert.
	InvalidateForEntity(ctx context.Context, entityType entity.EntityType, entityID int64, usedAt time.Time) (int64, error)

	// DeleteExpired removes unused tokens past expiry and used tokens older
	// than the audit retention window. Returns rows deleted.
	DeleteExpired(ctx context.Context, now time.Time, usedBefore time.Time) (int64, error)
}

// MemberRepository defines the read-only directory lookups the role
// resolver needs.
type MemberRepository interface {
	GetByID(ctx context.Context, tenantID, memberID string) (*entity.Member, error)

	// GetManager returns the requester's direct superior, or nil when the
	// org-chart edge is unset.
	GetManager(ctx context.Context, tenantID, memberID string) (*entity.Member, error)

	// ListWithCapability returns active members flagged for a
	// capability-gated approval role.
	ListWithCapability(ctx context.Context, tenantID string, role entity.ApprovalRole) ([]*entity.Member, error)

	// ListByTenantRole returns active members holding a tenant role
	// (admins, owners).
	ListByTenantRole(ctx context.Context, tenantID string, role entity.TenantRole) ([]*entity.Member, error)
}

// TenantRepository provides tenant settings: channel configuration and the
// approval routing policy document.
type TenantRepository interface {
	GetByID(ctx context.Context, tenantID string) (*entity.Tenant, error)
}

// MessageLogRepository records notification attempts and delivery receipts.
type MessageLogRepository interface {
	Create(ctx context.Context, log *entity.MessageLog) error
	UpdateStatusByRemoteID(ctx context.Context, remoteID string, status entity.MessageStatus, errorMsg string) error
	GetByEntity(ctx context.Context, entityType entity.EntityType, entityID int64) ([]*entity.MessageLog, error)
}

// TransactionManager executes a function within a store transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
