package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// TokenError classifies the routine ways a token can be invalid. Validation
// returns these in a structured result rather than as Go errors, because
// invalid tokens (double taps, expired buttons) are expected traffic.
type TokenError string

const (
	TokenErrNone                 TokenError = ""
	TokenErrNotFound             TokenError = "Token not found"
	TokenErrAlreadyUsed          TokenError = "Token already used"
	TokenErrExpired              TokenError = "Token expired"
	TokenErrInvalidSignature     TokenError = "Invalid token signature"
	TokenErrConcurrentlyConsumed TokenError = "Token consumed concurrently"
)

// ValidationResult is the outcome of ValidateAndConsume.
type ValidationResult struct {
	Valid   bool
	Error   TokenError
	Payload *entity.TokenPayload
}

// TokenService issues and validates the single-use signed tokens that let
// an approver act from a chat button without a login session.
type TokenService interface {
	Issue(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, action entity.StepAction, approverID string) (string, error)
	IssuePair(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, approverID string) (*entity.TokenPair, error)
	ValidateAndConsume(ctx context.Context, token string) (*ValidationResult, error)
	InvalidateForEntity(ctx context.Context, entityType entity.EntityType, entityID int64) error
	CleanupExpired(ctx context.Context) (int64, error)
}

type tokenServiceImpl struct {
	tokenRepo  port.TokenRepository
	signingKey []byte
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService. The signing key is held
// server-side and shared across tenants; the signed payload binds each
// token to its entity and action instead.
func NewTokenService(tokenRepo port.TokenRepository, signingKey string, logger Logger) TokenService {
	return &tokenServiceImpl{
		tokenRepo:  tokenRepo,
		signingKey: []byte(signingKey),
		logger:     logger,
		now:        time.Now,
	}
}

// Issue creates one token: a random id, an HMAC over
// "{id}:{entityType}:{entityId}:{action}", persisted with a fixed TTL.
// The returned string is "{id}:{signature}".
func (s *tokenServiceImpl) Issue(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, action entity.StepAction, approverID string) (string, error) {
	if !action.IsValid() {
		return "", ErrInvalidAction
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	sig := s.sign(id, entityType, entityID, action)
	token := id + ":" + sig

	now := s.now()
	record := &entity.ActionToken{
		Token:      token,
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ApproverID: approverID,
		ExpiresAt:  now.Add(entity.ActionTokenTTL),
		CreatedAt:  now,
	}

	if err := s.tokenRepo.Create(ctx, record); err != nil {
		s.logger.Error("Failed to persist action token", "error", err,
			"entity_type", entityType, "entity_id", entityID)
		return "", fmt.Errorf("create token: %w", err)
	}

	return token, nil
}

// IssuePair issues the approve and reject tokens for one approver/entity.
func (s *tokenServiceImpl) IssuePair(ctx context.Context, tenantID string, entityType entity.EntityType, entityID int64, approverID string) (*entity.TokenPair, error) {
	approve, err := s.Issue(ctx, tenantID, entityType, entityID, entity.ActionApprove, approverID)
	if err != nil {
		return nil, err
	}
	reject, err := s.Issue(ctx, tenantID, entityType, entityID, entity.ActionReject, approverID)
	if err != nil {
		return nil, err
	}
	return &entity.TokenPair{ApproveToken: approve, RejectToken: reject}, nil
}

// ValidateAndConsume checks a token and atomically marks it used. The
// conditional "WHERE used = false" update is the only guard against a
// button tap racing a retried webhook delivery.
func (s *tokenServiceImpl) ValidateAndConsume(ctx context.Context, token string) (*ValidationResult, error) {
	record, err := s.tokenRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("look up token: %w", err)
	}
	if record == nil {
		return &ValidationResult{Error: TokenErrNotFound}, nil
	}
	if record.Used {
		return &ValidationResult{Error: TokenErrAlreadyUsed}, nil
	}

	now := s.now()
	if record.IsExpired(now) {
		return &ValidationResult{Error: TokenErrExpired}, nil
	}

	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return &ValidationResult{Error: TokenErrInvalidSignature}, nil
	}
	expected := s.sign(parts[0], record.EntityType, record.EntityID, record.Action)
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return &ValidationResult{Error: TokenErrInvalidSignature}, nil
	}

	affected, err := s.tokenRepo.ConsumeIfUnused(ctx, record.ID, now)
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if affected == 0 {
		return &ValidationResult{Error: TokenErrConcurrentlyConsumed}, nil
	}

	return &ValidationResult{
		Valid: true,
		Payload: &entity.TokenPayload{
			TenantID:   record.TenantID,
			EntityType: record.EntityType,
			EntityID:   record.EntityID,
			Action:     record.Action,
			ApproverID: record.ApproverID,
		},
	}, nil
}

// InvalidateForEntity marks every unused token of an entity used so stale
// chat buttons cannot fire after the request was resolved elsewhere.
func (s *tokenServiceImpl) InvalidateForEntity(ctx context.Context, entityType entity.EntityType, entityID int64) error {
	affected, err := s.tokenRepo.InvalidateForEntity(ctx, entityType, entityID, s.now())
	if err != nil {
		return fmt.Errorf("invalidate tokens: %w", err)
	}
	if affected > 0 {
		s.logger.Info("Action tokens invalidated",
			"entity_type", entityType, "entity_id", entityID, "count", affected)
	}
	return nil
}

// CleanupExpired deletes tokens past expiry and used tokens older than the
// audit retention window.
func (s *tokenServiceImpl) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()
	deleted, err := s.tokenRepo.DeleteExpired(ctx, now, now.Add(-entity.UsedTokenRetention))
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Expired action tokens removed", "count", deleted)
	}
	return deleted, nil
}

// sign computes the truncated hex HMAC-SHA256 over the token's binding
// payload. Truncation to 16 bytes keeps the chat-button payload short while
// leaving the forgery bound far beyond the 15-minute token lifetime.
func (s *tokenServiceImpl) sign(id string, entityType entity.EntityType, entityID int64, action entity.StepAction) string {
	mac := hmac.New(sha256.New, s.signingKey)
	fmt.Fprintf(mac, "%s:%s:%d:%s", id, entityType, entityID, action)
	return hex.EncodeToString(mac.Sum(nil))[:32]
}
