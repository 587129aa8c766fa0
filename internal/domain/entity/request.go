package entity

import "time"

// RequestSnapshot carries the attributes of an approvable request that the
// policy resolver routes on. Only the fields relevant to the request's
// entity type are populated.
type RequestSnapshot struct {
	TenantID      string
	EntityType    EntityType
	EntityID      int64
	RequesterID   string
	Title         string
	LeaveCategory string
	LeaveDays     int
	AmountCents   int64
	Currency      string
	AssetCategory string
	SubmittedAt   time.Time
}

// RequestDetails is the rendered view of a request used when composing a
// notification message for an approver.
type RequestDetails struct {
	Title       string
	Requester   string
	Summary     string
	SubmittedAt time.Time
}
