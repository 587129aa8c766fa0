package service

import (
	"context"
	"errors"
	"testing"

	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

type mockMemberRepo struct {
	getByIDFunc            func(ctx context.Context, tenantID, memberID string) (*entity.Member, error)
	getManagerFunc         func(ctx context.Context, tenantID, memberID string) (*entity.Member, error)
	listWithCapabilityFunc func(ctx context.Context, tenantID string, role entity.ApprovalRole) ([]*entity.Member, error)
	listByTenantRoleFunc   func(ctx context.Context, tenantID string, role entity.TenantRole) ([]*entity.Member, error)
}

func (m *mockMemberRepo) GetByID(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, tenantID, memberID)
	}
	return &entity.Member{ID: memberID, TenantID: tenantID, Active: true}, nil
}

func (m *mockMemberRepo) GetManager(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
	if m.getManagerFunc != nil {
		return m.getManagerFunc(ctx, tenantID, memberID)
	}
	return nil, nil
}

func (m *mockMemberRepo) ListWithCapability(ctx context.Context, tenantID string, role entity.ApprovalRole) ([]*entity.Member, error) {
	if m.listWithCapabilityFunc != nil {
		return m.listWithCapabilityFunc(ctx, tenantID, role)
	}
	return nil, nil
}

func (m *mockMemberRepo) ListByTenantRole(ctx context.Context, tenantID string, role entity.TenantRole) ([]*entity.Member, error) {
	if m.listByTenantRoleFunc != nil {
		return m.listByTenantRoleFunc(ctx, tenantID, role)
	}
	return nil, nil
}

func TestApproverResolver_Manager(t *testing.T) {
	tests := []struct {
		name        string
		managerFunc func(ctx context.Context, tenantID, memberID string) (*entity.Member, error)
		wantIDs     []string
	}{
		{
			name: "active direct manager",
			managerFunc: func(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
				return &entity.Member{ID: "mgr-1", Active: true}, nil
			},
			wantIDs: []string{"mgr-1"},
		},
		{
			name: "no manager edge resolves to nobody",
			managerFunc: func(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
				return nil, nil
			},
			wantIDs: nil,
		},
		{
			name: "inactive manager resolves to nobody",
			managerFunc: func(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
				return &entity.Member{ID: "mgr-1", Active: false}, nil
			},
			wantIDs: nil,
		},
		{
			name: "lookup failure resolves to nobody",
			managerFunc: func(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
				return nil, errors.New("db down")
			},
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockMemberRepo{getManagerFunc: tt.managerFunc}
			resolver := NewApproverResolver(repo, &mockLogger{})

			got := resolver.ResolveApprovers(context.Background(), "tenant-1", entity.RoleManager, "requester-1")
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("ResolveApprovers() returned %d members, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("approver[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestApproverResolver_CapabilityRoles(t *testing.T) {
	repo := &mockMemberRepo{
		listWithCapabilityFunc: func(ctx context.Context, tenantID string, role entity.ApprovalRole) ([]*entity.Member, error) {
			if role == entity.RoleFinanceManager {
				return []*entity.Member{{ID: "fin-1", Active: true}, {ID: "fin-2", Active: true}}, nil
			}
			return nil, nil
		},
	}
	resolver := NewApproverResolver(repo, &mockLogger{})

	got := resolver.ResolveApprovers(context.Background(), "tenant-1", entity.RoleFinanceManager, "requester-1")
	if len(got) != 2 {
		t.Fatalf("ResolveApprovers() returned %d members, want 2", len(got))
	}

	got = resolver.ResolveApprovers(context.Background(), "tenant-1", entity.RoleHRManager, "requester-1")
	if len(got) != 0 {
		t.Errorf("ResolveApprovers() for unstaffed role returned %d members, want 0", len(got))
	}
}

func TestApproverResolver_DirectorFallsBackToOwners(t *testing.T) {
	tests := []struct {
		name    string
		admins  []*entity.Member
		owners  []*entity.Member
		wantIDs []string
	}{
		{
			name:    "admins preferred",
			admins:  []*entity.Member{{ID: "admin-1"}},
			owners:  []*entity.Member{{ID: "owner-1"}},
			wantIDs: []string{"admin-1"},
		},
		{
			name:    "owners when no admins",
			admins:  nil,
			owners:  []*entity.Member{{ID: "owner-1"}},
			wantIDs: []string{"owner-1"},
		},
		{
			name:    "nobody at all",
			admins:  nil,
			owners:  nil,
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockMemberRepo{
				listByTenantRoleFunc: func(ctx context.Context, tenantID string, role entity.TenantRole) ([]*entity.Member, error) {
					if role == entity.TenantRoleAdmin {
						return tt.admins, nil
					}
					return tt.owners, nil
				},
			}
			resolver := NewApproverResolver(repo, &mockLogger{})

			for _, role := range []entity.ApprovalRole{entity.RoleDirector, entity.RoleAdmin} {
				got := resolver.ResolveApprovers(context.Background(), "tenant-1", role, "requester-1")
				if len(got) != len(tt.wantIDs) {
					t.Fatalf("role %s returned %d members, want %d", role, len(got), len(tt.wantIDs))
				}
				for i, id := range tt.wantIDs {
					if got[i].ID != id {
						t.Errorf("role %s approver[%d] = %s, want %s", role, i, got[i].ID, id)
					}
				}
			}
		})
	}
}

func TestApproverResolver_UnknownRole(t *testing.T) {
	resolver := NewApproverResolver(&mockMemberRepo{}, &mockLogger{})

	got := resolver.ResolveApprovers(context.Background(), "tenant-1", entity.ApprovalRole("CEO"), "requester-1")
	if got != nil {
		t.Errorf("unknown role resolved to %d members, want none", len(got))
	}
}

func TestApproverResolver_CanApprove(t *testing.T) {
	repo := &mockMemberRepo{
		getManagerFunc: func(ctx context.Context, tenantID, memberID string) (*entity.Member, error) {
			return &entity.Member{ID: "mgr-1", Active: true}, nil
		},
	}
	resolver := NewApproverResolver(repo, &mockLogger{})

	if !resolver.CanApprove(context.Background(), "tenant-1", "mgr-1", entity.RoleManager, "requester-1") {
		t.Error("CanApprove() = false for the requester's manager, want true")
	}
	if resolver.CanApprove(context.Background(), "tenant-1", "someone-else", entity.RoleManager, "requester-1") {
		t.Error("CanApprove() = true for an unrelated member, want false")
	}
}
