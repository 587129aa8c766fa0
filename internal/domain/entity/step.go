package entity

import "time"

// EntityType identifies the kind of approvable request a chain belongs to.
type EntityType string

const (
	EntityTypeLeave EntityType = "LEAVE"
	EntityTypeSpend EntityType = "SPEND"
	EntityTypeAsset EntityType = "ASSET"
)

var validEntityTypes = map[EntityType]bool{
	EntityTypeLeave: true,
	EntityTypeSpend: true,
	EntityTypeAsset: true,
}

// IsValid returns true if the entity type is recognized
func (t EntityType) IsValid() bool {
	return validEntityTypes[t]
}

// String returns the string representation of the entity type
func (t EntityType) String() string {
	return string(t)
}

// ApprovalRole is an abstract role a step requires before the chain can advance.
type ApprovalRole string

const (
	RoleManager           ApprovalRole = "MANAGER"
	RoleHRManager         ApprovalRole = "HR_MANAGER"
	RoleFinanceManager    ApprovalRole = "FINANCE_MANAGER"
	RoleOperationsManager ApprovalRole = "OPERATIONS_MANAGER"
	RoleDirector          ApprovalRole = "DIRECTOR"
	RoleAdmin             ApprovalRole = "ADMIN"
)

var validRoles = map[ApprovalRole]bool{
	RoleManager:           true,
	RoleHRManager:         true,
	RoleFinanceManager:    true,
	RoleOperationsManager: true,
	RoleDirector:          true,
	RoleAdmin:             true,
}

// IsValid returns true if the role is part of the closed role enumeration
func (r ApprovalRole) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r ApprovalRole) String() string {
	return string(r)
}

// StepStatus is the lifecycle state of one approval step.
// PENDING is the only non-terminal state.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
	StepSkipped  StepStatus = "SKIPPED"
)

// IsTerminal returns true once a step has been acted on (or skipped)
func (s StepStatus) IsTerminal() bool {
	return s != StepPending
}

// StepAction is the action an approver takes on a step.
type StepAction string

const (
	ActionApprove StepAction = "approve"
	ActionReject  StepAction = "reject"
)

// IsValid returns true for the two supported actions
func (a StepAction) IsValid() bool {
	return a == ActionApprove || a == ActionReject
}

// ApprovalStep is one role-gated checkpoint in a chain.
// Exactly one row exists per (entityType, entityID, levelOrder); levels are a
// contiguous ascending sequence starting at 1. Steps are never deleted or
// reordered, only their status flips, so the chain doubles as an audit trail.
type ApprovalStep struct {
	ID           int64
	TenantID     string
	EntityType   EntityType
	EntityID     int64
	LevelOrder   int
	RequiredRole ApprovalRole
	Status       StepStatus
	ApproverID   string
	ActionAt     *time.Time
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChainStatus is the derived status of a whole chain.
type ChainStatus string

const (
	ChainNotStarted ChainStatus = "NOT_STARTED"
	ChainPending    ChainStatus = "PENDING"
	ChainApproved   ChainStatus = "APPROVED"
	ChainRejected   ChainStatus = "REJECTED"
)

// ApprovalSummary is the computed view of a chain. It is derived from the
// step list on every read and never persisted.
type ApprovalSummary struct {
	TotalSteps            int           `json:"total_steps"`
	CompletedSteps        int           `json:"completed_steps"`
	CurrentStep           *ApprovalStep `json:"current_step,omitempty"`
	Status                ChainStatus   `json:"status"`
	CanCurrentUserApprove bool          `json:"can_current_user_approve"`
}

// CurrentStep returns the lowest-level step still PENDING, or nil when the
// chain has fully resolved. The current step is always derived by scanning
// rather than cached, so it cannot desynchronize from the steps themselves.
func CurrentStep(steps []*ApprovalStep) *ApprovalStep {
	var current *ApprovalStep
	for _, s := range steps {
		if s.Status != StepPending {
			continue
		}
		if current == nil || s.LevelOrder < current.LevelOrder {
			current = s
		}
	}
	return current
}

// ChainStatusOf derives the chain-level status from a step list.
// Any rejected step short-circuits the whole chain.
func ChainStatusOf(steps []*ApprovalStep) ChainStatus {
	if len(steps) == 0 {
		return ChainNotStarted
	}

	pending := false
	for _, s := range steps {
		switch s.Status {
		case StepRejected:
			return ChainRejected
		case StepPending:
			pending = true
		}
	}

	if pending {
		return ChainPending
	}
	return ChainApproved
}
