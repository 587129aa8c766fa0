package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/approvalflow/internal/application/service"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
	"github.com/opsdeck/approvalflow/internal/domain/policy"
	"github.com/opsdeck/approvalflow/internal/webhook"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	submissionService service.SubmissionService
	chainService      service.ChainService
	webhookVerifier   *webhook.Verifier
	webhookHandler    *webhook.Handler
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	submissionService service.SubmissionService,
	chainService service.ChainService,
	webhookVerifier *webhook.Verifier,
	webhookHandler *webhook.Handler,
	logger Logger,
) *Handlers {
	return &Handlers{
		submissionService: submissionService,
		chainService:      chainService,
		webhookVerifier:   webhookVerifier,
		webhookHandler:    webhookHandler,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ActionRequest is the body of a manual approve/reject call. Level above
// the current actionable step means an override and requires notes.
type ActionRequest struct {
	ApproverID string `json:"approver_id" binding:"required"`
	Level      int    `json:"level" binding:"required"`
	Action     string `json:"action" binding:"required"`
	Notes      string `json:"notes"`
}

// StepResponse represents one approval step in API responses
type StepResponse struct {
	ID           int64  `json:"id"`
	LevelOrder   int    `json:"level_order"`
	RequiredRole string `json:"required_role"`
	Status       string `json:"status"`
	ApproverID   string `json:"approver_id,omitempty"`
	ActionAt     string `json:"action_at,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	})
}

// SubmitForApproval handles POST /api/approvals/:entityType/:entityId/submit
func (h *Handlers) SubmitForApproval(c *gin.Context) {
	entityType, entityID, ok := h.entityParams(c)
	if !ok {
		return
	}

	result, err := h.submissionService.SubmitForApproval(c.Request.Context(), entityType, entityID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data: gin.H{
			"auto_approved": result.AutoApproved,
			"steps":         stepResponses(result.Steps),
		},
	})
}

// RecordAction handles POST /api/approvals/:entityType/:entityId/action
func (h *Handlers) RecordAction(c *gin.Context) {
	entityType, entityID, ok := h.entityParams(c)
	if !ok {
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.chainService.RecordAction(c.Request.Context(),
		entityType, entityID, req.ApproverID, req.Level,
		entity.StepAction(req.Action), req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	data := gin.H{
		"step":         stepResponse(result.Step),
		"chain_status": result.ChainStatus,
	}
	if result.NextStep != nil {
		data["next_step"] = stepResponse(result.NextStep)
	}
	if len(result.SkippedLevels) > 0 {
		data["skipped_levels"] = result.SkippedLevels
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// CancelChain handles POST /api/approvals/:entityType/:entityId/cancel
func (h *Handlers) CancelChain(c *gin.Context) {
	entityType, entityID, ok := h.entityParams(c)
	if !ok {
		return
	}

	if err := h.chainService.CancelChain(c.Request.Context(), entityType, entityID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// GetSummary handles GET /api/approvals/:entityType/:entityId/summary
func (h *Handlers) GetSummary(c *gin.Context) {
	entityType, entityID, ok := h.entityParams(c)
	if !ok {
		return
	}

	summary, err := h.chainService.GetSummary(c.Request.Context(), entityType, entityID,
		c.Query("user_id"), c.Query("requester_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	data := gin.H{
		"total_steps":              summary.TotalSteps,
		"completed_steps":          summary.CompletedSteps,
		"status":                   summary.Status,
		"can_current_user_approve": summary.CanCurrentUserApprove,
	}
	if summary.CurrentStep != nil {
		data["current_step"] = stepResponse(summary.CurrentStep)
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// GetSteps handles GET /api/approvals/:entityType/:entityId/steps
func (h *Handlers) GetSteps(c *gin.Context) {
	entityType, entityID, ok := h.entityParams(c)
	if !ok {
		return
	}

	steps, err := h.chainService.ListSteps(c.Request.Context(), entityType, entityID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"steps": stepResponses(steps)},
	})
}

// WebhookChallenge handles GET on the webhook path (subscription handshake)
func (h *Handlers) WebhookChallenge(c *gin.Context) {
	challenge, err := h.webhookVerifier.VerifyChallenge(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		h.logger.Error("Webhook challenge rejected", "error", err)
		c.String(http.StatusForbidden, "forbidden")
		return
	}
	c.String(http.StatusOK, challenge)
}

// WebhookEvent handles POST on the webhook path
func (h *Handlers) WebhookEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "bad request")
		return
	}

	if !h.webhookVerifier.VerifySignature(c.GetHeader("X-Hub-Signature-256"), body) {
		h.logger.Error("Webhook signature mismatch", "client_ip", c.ClientIP())
		c.String(http.StatusForbidden, "forbidden")
		return
	}

	if err := h.webhookHandler.Process(c.Request.Context(), body); err != nil {
		h.logger.Error("Webhook processing failed", "error", err)
	}

	// Always 200 once the signature checks out, so the platform does not
	// retry payloads we have already consumed.
	c.String(http.StatusOK, "ok")
}

func (h *Handlers) entityParams(c *gin.Context) (entity.EntityType, int64, bool) {
	entityType := entity.EntityType(c.Param("entityType"))
	if !entityType.IsValid() {
		c.JSON(http.StatusBadRequest, Response{Error: "unknown entity type"})
		return "", 0, false
	}

	entityID, err := strconv.ParseInt(c.Param("entityId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid entity id"})
		return "", 0, false
	}
	return entityType, entityID, true
}

// writeError maps service errors to HTTP statuses: state conflicts to 409,
// missing override notes to 422, policy configuration to 500 with an
// explicit message.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotesRequired):
		c.JSON(http.StatusUnprocessableEntity, Response{Error: err.Error()})
	case errors.Is(err, service.ErrStepAlreadyResolved),
		errors.Is(err, service.ErrConcurrentModification),
		errors.Is(err, service.ErrChainNotPending),
		errors.Is(err, service.ErrChainExists):
		c.JSON(http.StatusConflict, Response{Error: err.Error()})
	case errors.Is(err, service.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
	case errors.Is(err, service.ErrStepNotFound):
		c.JSON(http.StatusNotFound, Response{Error: err.Error()})
	case errors.Is(err, policy.ErrPolicyConfiguration):
		h.logger.Error("Policy configuration error", "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: err.Error()})
	default:
		h.logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: "internal error"})
	}
}

func stepResponse(step *entity.ApprovalStep) StepResponse {
	resp := StepResponse{
		ID:           step.ID,
		LevelOrder:   step.LevelOrder,
		RequiredRole: string(step.RequiredRole),
		Status:       string(step.Status),
		ApproverID:   step.ApproverID,
		Notes:        step.Notes,
	}
	if step.ActionAt != nil {
		resp.ActionAt = step.ActionAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func stepResponses(steps []*entity.ApprovalStep) []StepResponse {
	out := make([]StepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, stepResponse(s))
	}
	return out
}
