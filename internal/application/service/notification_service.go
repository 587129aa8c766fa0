package service

import (
	"context"
	"sync"
	"time"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"github.com/opsdeck/approvalflow/pkg/utils"
)

// NotificationService fans out approval notifications over the chat
// channel. Every failure inside a round is caught, logged to the message
// log and swallowed: notification is strictly best-effort relative to the
// state transition that triggered it.
//
// The dispatcher does not deduplicate rounds. Callers trigger exactly one
// round per transition into a new current step.
type NotificationService interface {
	StepNotifier
}

type notificationServiceImpl struct {
	tenantRepo port.TenantRepository
	msgRepo    port.MessageLogRepository
	channel    port.ChannelClient
	approvers  ApproverResolver
	tokens     TokenService
	kinds      *KindRegistry
	requests   port.RequestSource
	logger     Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	tenantRepo port.TenantRepository,
	msgRepo port.MessageLogRepository,
	channel port.ChannelClient,
	approvers ApproverResolver,
	tokens TokenService,
	kinds *KindRegistry,
	requests port.RequestSource,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		tenantRepo: tenantRepo,
		msgRepo:    msgRepo,
		channel:    channel,
		approvers:  approvers,
		tokens:     tokens,
		kinds:      kinds,
		requests:   requests,
		logger:     logger,
	}
}

// NotifyForStep notifies every eligible approver for the step's role,
// attaching a fresh approve/reject token pair per recipient.
func (s *notificationServiceImpl) NotifyForStep(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, role entity.ApprovalRole) {
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load tenant for notification", "error", err, "tenant_id", tenantID)
		return
	}
	if tenant == nil || !tenant.ChannelEnabled {
		s.logger.Info("Channel not configured, skipping notification round",
			"tenant_id", tenantID, "entity_type", entityType, "entity_id", entityID)
		return
	}

	kind, err := s.kinds.Get(entityType)
	if err != nil {
		s.logger.Error("Unknown entity kind for notification", "error", err, "entity_type", entityType)
		return
	}

	snap, err := s.requests.GetSnapshot(ctx, entityType, entityID)
	if err != nil {
		s.logger.Error("Failed to fetch request snapshot", "error", err,
			"entity_type", entityType, "entity_id", entityID)
		return
	}

	details, err := kind.FetchDetails(ctx, entityID)
	if err != nil {
		s.logger.Error("Failed to fetch request details", "error", err,
			"entity_type", entityType, "entity_id", entityID)
		return
	}

	candidates := s.approvers.ResolveApprovers(ctx, tenantID, role, snap.RequesterID)
	if len(candidates) == 0 {
		s.logger.Info("No eligible approvers for step",
			"tenant_id", tenantID, "role", role,
			"entity_type", entityType, "entity_id", entityID)
		return
	}

	// Each recipient is independent; sends run concurrently and one failed
	// send never blocks or fails the rest. The round itself is awaited so
	// the caller's context stays alive for every send.
	var wg sync.WaitGroup
	for _, approver := range candidates {
		wg.Add(1)
		go func(approver *entity.Member) {
			defer wg.Done()
			s.notifyOne(ctx, tenant, kind, details, role, entityType, entityID, approver)
		}(approver)
	}
	wg.Wait()
}

func (s *notificationServiceImpl) notifyOne(ctx context.Context, tenant *entity.Tenant, kind EntityKind, details *entity.RequestDetails, role entity.ApprovalRole, entityType entity.EntityType, entityID int64, approver *entity.Member) {
	log := &entity.MessageLog{
		TenantID:    tenant.ID,
		EntityType:  entityType,
		EntityID:    entityID,
		RecipientID: approver.ID,
		Phone:       approver.Phone,
		Template:    kind.TemplateFor(role),
		SentAt:      time.Now(),
	}

	if approver.Phone == "" || !approver.PhoneVerified {
		log.Status = entity.MessageFailed
		log.ErrorMsg = "recipient has no verified phone number"
		s.record(ctx, log)
		return
	}

	pair, err := s.tokens.IssuePair(ctx, tenant.ID, entityType, entityID, approver.ID)
	if err != nil {
		log.Status = entity.MessageFailed
		log.ErrorMsg = "token issue failed: " + err.Error()
		s.record(ctx, log)
		return
	}

	components := buildTemplateComponents(details, pair)
	remoteID, err := s.channel.SendTemplateMessage(ctx, approver.Phone, log.Template, "en", components)
	if err != nil {
		log.Status = entity.MessageFailed
		log.ErrorMsg = err.Error()
		s.record(ctx, log)
		s.logger.Error("Failed to send approval notification", "error", err,
			"recipient", approver.ID, "entity_type", entityType, "entity_id", entityID)
		return
	}

	log.RemoteID = remoteID
	log.Status = entity.MessageSent
	s.record(ctx, log)
	s.logger.Info("Approval notification sent",
		"recipient", approver.ID, "remote_id", remoteID,
		"entity_type", entityType, "entity_id", entityID, "role", role)
}

func (s *notificationServiceImpl) record(ctx context.Context, log *entity.MessageLog) {
	if err := s.msgRepo.Create(ctx, log); err != nil {
		s.logger.Error("Failed to write message log", "error", err,
			"recipient", log.RecipientID, "entity_id", log.EntityID)
	}
}

// buildTemplateComponents fills the channel template: body parameters with
// the request summary, and one quick-reply button per action carrying its
// token as the button payload.
func buildTemplateComponents(details *entity.RequestDetails, pair *entity.TokenPair) []port.TemplateComponent {
	return []port.TemplateComponent{
		{
			Type: "body",
			Parameters: []port.TemplateParameter{
				{Type: "text", Text: utils.SanitizeTemplateParam(details.Title)},
				{Type: "text", Text: utils.SanitizeTemplateParam(details.Requester)},
				{Type: "text", Text: utils.SanitizeTemplateParam(details.Summary)},
			},
		},
		{
			Type:    "button",
			SubType: "quick_reply",
			Index:   "0",
			Parameters: []port.TemplateParameter{
				{Type: "payload", Payload: pair.ApproveToken},
			},
		},
		{
			Type:    "button",
			SubType: "quick_reply",
			Index:   "1",
			Parameters: []port.TemplateParameter{
				{Type: "payload", Payload: pair.RejectToken},
			},
		},
	}
}
