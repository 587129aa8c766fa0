package policy

import (
	"encoding/json"
	"fmt"

	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// Parse decodes a stored tenant policy document and rejects documents
// carrying roles outside the closed enumeration.
func Parse(raw string) (*TenantPolicy, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty policy document", ErrPolicyConfiguration)
	}

	var p TenantPolicy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPolicyConfiguration, err)
	}

	for category, roles := range p.LeaveRoutes {
		if err := validateRoles(roles); err != nil {
			return nil, fmt.Errorf("%w: leave route %q: %v", ErrPolicyConfiguration, category, err)
		}
	}
	for i, band := range p.SpendBands {
		if err := validateRoles(band.Roles); err != nil {
			return nil, fmt.Errorf("%w: spend band %d: %v", ErrPolicyConfiguration, i, err)
		}
	}
	for category, roles := range p.AssetRoutes {
		if err := validateRoles(roles); err != nil {
			return nil, fmt.Errorf("%w: asset route %q: %v", ErrPolicyConfiguration, category, err)
		}
	}

	return &p, nil
}

func validateRoles(roles []entity.ApprovalRole) error {
	for _, r := range roles {
		if !r.IsValid() {
			return fmt.Errorf("unknown role %q", r)
		}
	}
	return nil
}
