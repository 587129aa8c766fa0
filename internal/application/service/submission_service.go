package service

import (
	"context"
	"fmt"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"github.com/opsdeck/approvalflow/internal/domain/policy"
)

// SubmissionResult reports what happened when a request entered the
// approval workflow.
type SubmissionResult struct {
	// AutoApproved is true when the tenant policy resolved to an empty
	// chain and no steps were created.
	AutoApproved bool
	Steps        []*entity.ApprovalStep
}

// SubmissionService moves a request into the approval workflow: it resolves
// the tenant policy into a role chain and materializes the steps. Policy
// errors fail closed; a request never enters an undefined approval state.
type SubmissionService interface {
	SubmitForApproval(ctx context.Context, entityType entity.EntityType, entityID int64) (*SubmissionResult, error)
}

type submissionServiceImpl struct {
	tenantRepo port.TenantRepository
	requests   port.RequestSource
	chain      ChainService
	logger     Logger
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(
	tenantRepo port.TenantRepository,
	requests port.RequestSource,
	chain ChainService,
	logger Logger,
) SubmissionService {
	return &submissionServiceImpl{
		tenantRepo: tenantRepo,
		requests:   requests,
		chain:      chain,
		logger:     logger,
	}
}

// SubmitForApproval resolves the policy for a request and initializes its
// chain. The first notification round fires as part of chain creation.
func (s *submissionServiceImpl) SubmitForApproval(ctx context.Context, entityType entity.EntityType, entityID int64) (*SubmissionResult, error) {
	snap, err := s.requests.GetSnapshot(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("get request snapshot: %w", err)
	}

	tenant, err := s.tenantRepo.GetByID(ctx, snap.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: tenant %q not found", policy.ErrPolicyConfiguration, snap.TenantID)
	}

	tenantPolicy, err := policy.Parse(tenant.PolicyJSON)
	if err != nil {
		return nil, err
	}

	roles, err := policy.Resolve(snap, tenantPolicy)
	if err != nil {
		return nil, err
	}

	if len(roles) == 0 {
		s.logger.Info("Request auto-approved by policy",
			"tenant_id", snap.TenantID, "entity_type", entityType, "entity_id", entityID)
		return &SubmissionResult{AutoApproved: true}, nil
	}

	steps, err := s.chain.InitializeChain(ctx, snap.TenantID, entityType, entityID, roles)
	if err != nil {
		return nil, err
	}

	return &SubmissionResult{Steps: steps}, nil
}
