package entity

import "time"

// ActionTokenTTL bounds the exposure window of a leaked or forwarded chat
// message carrying a token.
const ActionTokenTTL = 15 * time.Minute

// UsedTokenRetention is how long consumed tokens are kept for audit before
// the sweeper deletes them.
const UsedTokenRetention = 24 * time.Hour

// ActionToken is a short-lived, single-use signed credential authorizing one
// approve/reject action on one entity from an out-of-band channel.
// The stored Token string has the form "{randomId}:{hmacSignature}".
type ActionToken struct {
	ID         int64
	Token      string
	TenantID   string
	EntityType EntityType
	EntityID   int64
	Action     StepAction
	ApproverID string
	ExpiresAt  time.Time
	Used       bool
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// IsExpired reports whether the token is past its TTL at the given instant
func (t *ActionToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenPair holds the approve/reject tokens issued together for one
// approver on one entity.
type TokenPair struct {
	ApproveToken string
	RejectToken  string
}

// TokenPayload is the decoded identity of a successfully consumed token.
type TokenPayload struct {
	TenantID   string
	EntityType EntityType
	EntityID   int64
	Action     StepAction
	ApproverID string
}
