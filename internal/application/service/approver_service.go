package service

import (
	"context"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// ApproverResolver maps an abstract required role to concrete candidate
// approvers within a tenant. Lookups are read-only; "no eligible approver"
// is a valid outcome and never an error.
type ApproverResolver interface {
	ResolveApprovers(ctx context.Context, tenantID string, role entity.ApprovalRole, requesterID string) []*entity.Member
	CanApprove(ctx context.Context, tenantID, userID string, role entity.ApprovalRole, requesterID string) bool
}

type approverResolverImpl struct {
	memberRepo port.MemberRepository
	logger     Logger
}

// NewApproverResolver creates a new ApproverResolver
func NewApproverResolver(memberRepo port.MemberRepository, logger Logger) ApproverResolver {
	return &approverResolverImpl{
		memberRepo: memberRepo,
		logger:     logger,
	}
}

// ResolveApprovers returns the candidate approvers for a role.
// MANAGER is the requester's direct superior; the capability roles are all
// flagged active members; DIRECTOR/ADMIN are active admins with a fallback
// to owners. Unknown roles resolve to nobody.
func (r *approverResolverImpl) ResolveApprovers(ctx context.Context, tenantID string, role entity.ApprovalRole, requesterID string) []*entity.Member {
	switch role {
	case entity.RoleManager:
		manager, err := r.memberRepo.GetManager(ctx, tenantID, requesterID)
		if err != nil {
			r.logger.Error("Failed to look up manager", "error", err,
				"tenant_id", tenantID, "requester_id", requesterID)
			return nil
		}
		if manager == nil || !manager.Active {
			return nil
		}
		return []*entity.Member{manager}

	case entity.RoleHRManager, entity.RoleFinanceManager, entity.RoleOperationsManager:
		members, err := r.memberRepo.ListWithCapability(ctx, tenantID, role)
		if err != nil {
			r.logger.Error("Failed to list capability approvers", "error", err,
				"tenant_id", tenantID, "role", role)
			return nil
		}
		return members

	case entity.RoleDirector, entity.RoleAdmin:
		admins, err := r.memberRepo.ListByTenantRole(ctx, tenantID, entity.TenantRoleAdmin)
		if err != nil {
			r.logger.Error("Failed to list tenant admins", "error", err, "tenant_id", tenantID)
			return nil
		}
		if len(admins) > 0 {
			return admins
		}
		owners, err := r.memberRepo.ListByTenantRole(ctx, tenantID, entity.TenantRoleOwner)
		if err != nil {
			r.logger.Error("Failed to list tenant owners", "error", err, "tenant_id", tenantID)
			return nil
		}
		return owners

	default:
		return nil
	}
}

// CanApprove reports whether a specific user is among the eligible
// approvers for the role.
func (r *approverResolverImpl) CanApprove(ctx context.Context, tenantID, userID string, role entity.ApprovalRole, requesterID string) bool {
	for _, m := range r.ResolveApprovers(ctx, tenantID, role, requesterID) {
		if m.ID == userID {
			return true
		}
	}
	return false
}
