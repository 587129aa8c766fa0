// Package policy resolves the ordered list of approval roles a request must
// pass through, from tenant-configured routing rules. Resolution is a pure
// function over the request snapshot and the tenant policy; an empty role
// list means the request auto-approves without a chain.
package policy

import (
	"errors"
	"fmt"

	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// ErrPolicyConfiguration is returned when the tenant policy is missing a
// dimension the request requires. Callers must fail closed and never default
// to an unapproved path.
var ErrPolicyConfiguration = errors.New("policy configuration missing")

// SpendBand routes spend requests by amount. Bands are evaluated in order;
// the first band whose MaxAmountCents covers the amount wins. MaxAmountCents
// of 0 means unbounded and must be the last band.
type SpendBand struct {
	MaxAmountCents int64                 `mapstructure:"max_amount_cents" json:"max_amount_cents"`
	Roles          []entity.ApprovalRole `mapstructure:"roles" json:"roles"`
}

// TenantPolicy is one tenant's approval routing configuration.
type TenantPolicy struct {
	// LeaveRoutes maps a leave category to its role chain. A category
	// mapped to an empty chain auto-approves.
	LeaveRoutes map[string][]entity.ApprovalRole `mapstructure:"leave_routes" json:"leave_routes"`

	// SpendBands is the ordered amount-threshold routing for spend requests.
	SpendBands []SpendBand `mapstructure:"spend_bands" json:"spend_bands"`

	// AssetRoutes maps an asset category to its role chain.
	AssetRoutes map[string][]entity.ApprovalRole `mapstructure:"asset_routes" json:"asset_routes"`
}

// Resolve computes the ordered required-role chain for a request.
// It never mutates its inputs and never falls back to an empty chain when
// configuration is missing.
func Resolve(snapshot *entity.RequestSnapshot, tenantPolicy *TenantPolicy) ([]entity.ApprovalRole, error) {
	if tenantPolicy == nil {
		return nil, fmt.Errorf("%w: tenant has no approval policy", ErrPolicyConfiguration)
	}

	switch snapshot.EntityType {
	case entity.EntityTypeLeave:
		return resolveLeave(snapshot, tenantPolicy)
	case entity.EntityTypeSpend:
		return resolveSpend(snapshot, tenantPolicy)
	case entity.EntityTypeAsset:
		return resolveAsset(snapshot, tenantPolicy)
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrPolicyConfiguration, snapshot.EntityType)
	}
}

func resolveLeave(snapshot *entity.RequestSnapshot, p *TenantPolicy) ([]entity.ApprovalRole, error) {
	if p.LeaveRoutes == nil {
		return nil, fmt.Errorf("%w: no leave routes configured", ErrPolicyConfiguration)
	}

	roles, ok := p.LeaveRoutes[snapshot.LeaveCategory]
	if !ok {
		return nil, fmt.Errorf("%w: no leave route for category %q", ErrPolicyConfiguration, snapshot.LeaveCategory)
	}
	return copyRoles(roles), nil
}

func resolveSpend(snapshot *entity.RequestSnapshot, p *TenantPolicy) ([]entity.ApprovalRole, error) {
	if len(p.SpendBands) == 0 {
		return nil, fmt.Errorf("%w: no spend bands configured", ErrPolicyConfiguration)
	}

	for _, band := range p.SpendBands {
		if band.MaxAmountCents == 0 || snapshot.AmountCents <= band.MaxAmountCents {
			return copyRoles(band.Roles), nil
		}
	}

	// Every band bounded and the amount exceeds all of them.
	return nil, fmt.Errorf("%w: no spend band covers amount %d", ErrPolicyConfiguration, snapshot.AmountCents)
}

func resolveAsset(snapshot *entity.RequestSnapshot, p *TenantPolicy) ([]entity.ApprovalRole, error) {
	if p.AssetRoutes == nil {
		return nil, fmt.Errorf("%w: no asset routes configured", ErrPolicyConfiguration)
	}

	roles, ok := p.AssetRoutes[snapshot.AssetCategory]
	if !ok {
		return nil, fmt.Errorf("%w: no asset route for category %q", ErrPolicyConfiguration, snapshot.AssetCategory)
	}
	return copyRoles(roles), nil
}

func copyRoles(roles []entity.ApprovalRole) []entity.ApprovalRole {
	out := make([]entity.ApprovalRole, len(roles))
	copy(out, roles)
	return out
}
