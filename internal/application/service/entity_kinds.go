package service

import (
	"context"
	"fmt"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// EntityKind is one variant of approvable request. Adding a request type
// means adding a variant here, not extending a switch somewhere central.
type EntityKind interface {
	Type() entity.EntityType

	// FetchDetails renders the request for inclusion in a notification.
	FetchDetails(ctx context.Context, entityID int64) (*entity.RequestDetails, error)

	// TemplateFor names the channel template used to notify approvers.
	TemplateFor(role entity.ApprovalRole) string
}

// KindRegistry is the closed set of entity kinds.
type KindRegistry struct {
	kinds map[entity.EntityType]EntityKind
}

// NewKindRegistry builds the registry over a request source.
func NewKindRegistry(source port.RequestSource) *KindRegistry {
	r := &KindRegistry{kinds: make(map[entity.EntityType]EntityKind)}
	for _, k := range []EntityKind{
		&leaveKind{source: source},
		&spendKind{source: source},
		&assetKind{source: source},
	} {
		r.kinds[k.Type()] = k
	}
	return r
}

// Get returns the kind for an entity type.
func (r *KindRegistry) Get(t entity.EntityType) (EntityKind, error) {
	k, ok := r.kinds[t]
	if !ok {
		return nil, fmt.Errorf("no entity kind registered for %q", t)
	}
	return k, nil
}

type leaveKind struct {
	source port.RequestSource
}

func (k *leaveKind) Type() entity.EntityType { return entity.EntityTypeLeave }

func (k *leaveKind) FetchDetails(ctx context.Context, entityID int64) (*entity.RequestDetails, error) {
	snap, err := k.source.GetSnapshot(ctx, entity.EntityTypeLeave, entityID)
	if err != nil {
		return nil, fmt.Errorf("get leave snapshot: %w", err)
	}
	return &entity.RequestDetails{
		Title:       snap.Title,
		Requester:   snap.RequesterID,
		Summary:     fmt.Sprintf("%s leave, %d day(s)", snap.LeaveCategory, snap.LeaveDays),
		SubmittedAt: snap.SubmittedAt,
	}, nil
}

func (k *leaveKind) TemplateFor(role entity.ApprovalRole) string {
	return "leave_approval_request"
}

type spendKind struct {
	source port.RequestSource
}

func (k *spendKind) Type() entity.EntityType { return entity.EntityTypeSpend }

func (k *spendKind) FetchDetails(ctx context.Context, entityID int64) (*entity.RequestDetails, error) {
	snap, err := k.source.GetSnapshot(ctx, entity.EntityTypeSpend, entityID)
	if err != nil {
		return nil, fmt.Errorf("get spend snapshot: %w", err)
	}
	return &entity.RequestDetails{
		Title:       snap.Title,
		Requester:   snap.RequesterID,
		Summary:     fmt.Sprintf("%s %.2f", snap.Currency, float64(snap.AmountCents)/100),
		SubmittedAt: snap.SubmittedAt,
	}, nil
}

func (k *spendKind) TemplateFor(role entity.ApprovalRole) string {
	return "spend_approval_request"
}

type assetKind struct {
	source port.RequestSource
}

func (k *assetKind) Type() entity.EntityType { return entity.EntityTypeAsset }

func (k *assetKind) FetchDetails(ctx context.Context, entityID int64) (*entity.RequestDetails, error) {
	snap, err := k.source.GetSnapshot(ctx, entity.EntityTypeAsset, entityID)
	if err != nil {
		return nil, fmt.Errorf("get asset snapshot: %w", err)
	}
	return &entity.RequestDetails{
		Title:       snap.Title,
		Requester:   snap.RequesterID,
		Summary:     fmt.Sprintf("asset request: %s", snap.AssetCategory),
		SubmittedAt: snap.SubmittedAt,
	}, nil
}

func (k *assetKind) TemplateFor(role entity.ApprovalRole) string {
	return "asset_approval_request"
}
