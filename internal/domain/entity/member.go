package entity

import "time"

// TenantRole is a member's standing within a tenant, independent of any
// approval capability flags.
type TenantRole string

const (
	TenantRoleOwner  TenantRole = "OWNER"
	TenantRoleAdmin  TenantRole = "ADMIN"
	TenantRoleMember TenantRole = "MEMBER"
)

// Member is one person inside a tenant. ManagerID is the single-parent
// org-chart edge used to resolve the MANAGER approval role.
type Member struct {
	ID         string
	TenantID   string
	Name       string
	Phone      string
	// PhoneVerified gates WhatsApp delivery; unverified numbers are skipped
	// by the notification dispatcher.
	PhoneVerified bool
	TenantRole    TenantRole
	ManagerID     string
	// Capability flags mapping to the HR/FINANCE/OPERATIONS manager roles.
	CanApproveHR         bool
	CanApproveFinance    bool
	CanApproveOperations bool
	Active               bool
	CreatedAt            time.Time
}

// HasCapability reports whether the member carries the access flag for a
// capability-gated approval role. MANAGER and DIRECTOR/ADMIN are resolved
// through the org chart and tenant role instead.
func (m *Member) HasCapability(role ApprovalRole) bool {
	switch role {
	case RoleHRManager:
		return m.CanApproveHR
	case RoleFinanceManager:
		return m.CanApproveFinance
	case RoleOperationsManager:
		return m.CanApproveOperations
	default:
		return false
	}
}
