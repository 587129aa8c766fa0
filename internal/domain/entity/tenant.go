package entity

import "time"

// Tenant is one account on the platform. PolicyJSON holds the tenant's
// approval routing configuration as stored; the policy package parses it.
type Tenant struct {
	ID             string
	Name           string
	ChannelEnabled bool
	PolicyJSON     string
	CreatedAt      time.Time
}
