package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActionToken_IsExpired(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token := &ActionToken{ExpiresAt: issued.Add(ActionTokenTTL)}

	assert.False(t, token.IsExpired(issued))
	assert.False(t, token.IsExpired(issued.Add(ActionTokenTTL)), "boundary instant is still valid")
	assert.True(t, token.IsExpired(issued.Add(ActionTokenTTL+time.Second)))
}

func TestMember_HasCapability(t *testing.T) {
	m := &Member{CanApproveHR: true, CanApproveFinance: false, CanApproveOperations: true}

	assert.True(t, m.HasCapability(RoleHRManager))
	assert.False(t, m.HasCapability(RoleFinanceManager))
	assert.True(t, m.HasCapability(RoleOperationsManager))

	// Org-chart and tenant-role based roles are never capability flags.
	assert.False(t, m.HasCapability(RoleManager))
	assert.False(t, m.HasCapability(RoleDirector))
	assert.False(t, m.HasCapability(RoleAdmin))
}
