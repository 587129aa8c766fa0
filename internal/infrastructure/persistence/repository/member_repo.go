package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"go.uber.org/zap"
)

const memberColumns = `id, tenant_id, name, phone, phone_verified, tenant_role,
	manager_id, can_approve_hr, can_approve_finance, can_approve_operations,
	active, created_at`

// MemberRepository implements port.MemberRepository
type MemberRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *sql.DB, logger *zap.Logger) port.MemberRepository {
	return &MemberRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a member by tenant and member id
func (r *MemberRepository) GetByID(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE tenant_id = ? AND id = ?
	`

	member, err := scanMember(executorFor(ctx, r.db).QueryRowContext(ctx, query, tenantID, memberID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get member", zap.Error(err), zap.String("member_id", memberID))
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// GetManager resolves the requester's direct superior through the org chart
func (r *MemberRepository) GetManager(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
	query := `
		SELECT m.id, m.tenant_id, m.name, m.phone, m.phone_verified, m.tenant_role,
			m.manager_id, m.can_approve_hr, m.can_approve_finance, m.can_approve_operations,
			m.active, m.created_at
		FROM members m
		JOIN members requester ON requester.manager_id = m.id
			AND requester.tenant_id = m.tenant_id
		WHERE requester.tenant_id = ? AND requester.id = ?
	`

	member, err := scanMember(executorFor(ctx, r.db).QueryRowContext(ctx, query, tenantID, memberID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get manager", zap.Error(err), zap.String("member_id", memberID))
		return nil, fmt.Errorf("failed to get manager: %w", err)
	}
	return member, nil
}

// ListWithCapability returns active members flagged for a capability role
func (r *MemberRepository) ListWithCapability(ctx context.Context, tenantID string, role entity.ApprovalRole) ([]*entity.Member, error) {
	var flag string
	switch role {
	case entity.RoleHRManager:
		flag = "can_approve_hr"
	case entity.RoleFinanceManager:
		flag = "can_approve_finance"
	case entity.RoleOperationsManager:
		flag = "can_approve_operations"
	default:
		return nil, nil
	}

	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE tenant_id = ? AND active = 1 AND ` + flag + ` = 1
		ORDER BY name ASC
	`

	return r.queryMembers(ctx, query, tenantID)
}

// ListByTenantRole returns active members holding a tenant role
func (r *MemberRepository) ListByTenantRole(ctx context.Context, tenantID string, role entity.TenantRole) ([]*entity.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE tenant_id = ? AND active = 1 AND tenant_role = ?
		ORDER BY name ASC
	`

	return r.queryMembers(ctx, query, tenantID, role)
}

func (r *MemberRepository) queryMembers(ctx context.Context, query string, args ...interface{}) ([]*entity.Member, error) {
	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query members", zap.Error(err))
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*entity.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*entity.Member, error) {
	var member entity.Member
	var phone, managerID sql.NullString

	err := row.Scan(
		&member.ID,
		&member.TenantID,
		&member.Name,
		&phone,
		&member.PhoneVerified,
		&member.TenantRole,
		&managerID,
		&member.CanApproveHR,
		&member.CanApproveFinance,
		&member.CanApproveOperations,
		&member.Active,
		&member.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	member.Phone = phone.String
	member.ManagerID = managerID.String
	return &member, nil
}
