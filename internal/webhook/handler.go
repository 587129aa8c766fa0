// Package webhook receives the WhatsApp callback: interactive button
// replies that carry action tokens, and delivery status updates for
// previously sent messages. Status updates only touch the message log;
// approval state changes always go through a validated token.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/application/service"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// Payload is the inbound webhook envelope shape.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one account-level change batch.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries either inbound messages or status updates.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue is the body of one change.
type ChangeValue struct {
	Messages []InboundMessage `json:"messages"`
	Statuses []StatusUpdate   `json:"statuses"`
}

// InboundMessage is one message from an approver. Template quick-reply taps
// arrive as type "button" with the action token in Button.Payload;
// interactive list/button replies carry it in Interactive.ButtonReply.ID.
type InboundMessage struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Button      *ButtonReply `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

// ButtonReply is a template quick-reply tap.
type ButtonReply struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// Interactive is an interactive message reply.
type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
}

// StatusUpdate is a delivery receipt keyed by the remote message id.
type StatusUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Errors []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Handler processes verified webhook payloads.
type Handler struct {
	tokens  service.TokenService
	chain   service.ChainService
	msgRepo port.MessageLogRepository
	channel port.ChannelClient
	logger  *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(
	tokens service.TokenService,
	chain service.ChainService,
	msgRepo port.MessageLogRepository,
	channel port.ChannelClient,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		tokens:  tokens,
		chain:   chain,
		msgRepo: msgRepo,
		channel: channel,
		logger:  logger,
	}
}

// Process walks a webhook payload. Each message and status is handled
// independently; one bad item never blocks the rest of the batch.
func (h *Handler) Process(ctx context.Context, body []byte) error {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.handleMessage(ctx, &msg)
			}
			for _, status := range change.Value.Statuses {
				h.handleStatus(ctx, &status)
			}
		}
	}
	return nil
}

// handleMessage extracts the action token from a button tap and applies it.
func (h *Handler) handleMessage(ctx context.Context, msg *InboundMessage) {
	token := extractToken(msg)
	if token == "" {
		h.logger.Info("Ignoring non-actionable message",
			zap.String("type", msg.Type), zap.String("from", msg.From))
		return
	}

	result, err := h.tokens.ValidateAndConsume(ctx, token)
	if err != nil {
		h.logger.Error("Token validation failed", zap.Error(err), zap.String("from", msg.From))
		return
	}
	if !result.Valid {
		h.logger.Info("Rejected action token",
			zap.String("reason", string(result.Error)), zap.String("from", msg.From))
		h.reply(ctx, msg.From, replyForTokenError(result.Error))
		return
	}

	h.applyAction(ctx, msg.From, result.Payload)
}

// applyAction records the token's decision against the chain's current
// actionable step.
func (h *Handler) applyAction(ctx context.Context, from string, payload *entity.TokenPayload) {
	summary, err := h.chain.GetSummary(ctx, payload.EntityType, payload.EntityID, "", "")
	if err != nil {
		h.logger.Error("Failed to load chain for token action", zap.Error(err),
			zap.Int64("entity_id", payload.EntityID))
		return
	}
	if summary.CurrentStep == nil {
		h.reply(ctx, from, "This request has already been resolved.")
		return
	}

	result, err := h.chain.RecordAction(ctx,
		payload.EntityType, payload.EntityID,
		payload.ApproverID, summary.CurrentStep.LevelOrder,
		payload.Action, "")
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStepAlreadyResolved),
			errors.Is(err, service.ErrConcurrentModification),
			errors.Is(err, service.ErrChainNotPending):
			h.reply(ctx, from, "This step was already decided.")
		default:
			h.logger.Error("Failed to record token action", zap.Error(err),
				zap.Int64("entity_id", payload.EntityID))
		}
		return
	}

	h.logger.Info("Approval action applied from chat",
		zap.String("approver", payload.ApproverID),
		zap.String("action", string(payload.Action)),
		zap.Int64("entity_id", payload.EntityID),
		zap.String("chain_status", string(result.ChainStatus)))

	h.reply(ctx, from, confirmationFor(payload.Action, result.ChainStatus))
}

// handleStatus applies a delivery receipt to the message log. Receipts
// never change approval state.
func (h *Handler) handleStatus(ctx context.Context, status *StatusUpdate) {
	errorMsg := ""
	if len(status.Errors) > 0 {
		errorMsg = fmt.Sprintf("%d: %s", status.Errors[0].Code, status.Errors[0].Message)
	}

	msgStatus := entity.MessageStatus(status.Status)
	switch msgStatus {
	case entity.MessageSent, entity.MessageDelivered, entity.MessageRead, entity.MessageFailed:
	default:
		h.logger.Info("Ignoring unknown message status", zap.String("status", status.Status))
		return
	}

	if err := h.msgRepo.UpdateStatusByRemoteID(ctx, status.ID, msgStatus, errorMsg); err != nil {
		h.logger.Error("Failed to apply delivery receipt", zap.Error(err),
			zap.String("remote_id", status.ID))
	}
}

// reply sends a best-effort text response back to the approver.
func (h *Handler) reply(ctx context.Context, recipient, text string) {
	if recipient == "" || text == "" {
		return
	}
	if _, err := h.channel.SendTextMessage(ctx, recipient, text); err != nil {
		h.logger.Error("Failed to send webhook reply", zap.Error(err),
			zap.String("recipient", recipient))
	}
}

func extractToken(msg *InboundMessage) string {
	if msg.Button != nil && msg.Button.Payload != "" {
		return msg.Button.Payload
	}
	if msg.Interactive != nil && msg.Interactive.ButtonReply != nil {
		return msg.Interactive.ButtonReply.ID
	}
	return ""
}

func replyForTokenError(tokenErr service.TokenError) string {
	switch tokenErr {
	case service.TokenErrExpired:
		return "This approval link has expired. Please act from the dashboard."
	case service.TokenErrAlreadyUsed, service.TokenErrConcurrentlyConsumed:
		return "This action was already processed."
	default:
		return "This approval link is no longer valid."
	}
}

func confirmationFor(action entity.StepAction, chainStatus entity.ChainStatus) string {
	switch {
	case action == entity.ActionReject:
		return "Request rejected."
	case chainStatus == entity.ChainApproved:
		return "Request approved. All approval levels are complete."
	default:
		return "Approved. The request moved to the next approval level."
	}
}
