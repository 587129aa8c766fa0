package entity

import "time"

// MessageStatus tracks one notification attempt per recipient. Delivery
// receipts from the channel update the same row keyed by RemoteID.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// MessageLog is one outbound notification record. Failed sends are recorded
// with the channel error for operator visibility; they never propagate to
// the state-changing caller.
type MessageLog struct {
	ID          int64
	TenantID    string
	EntityType  EntityType
	EntityID    int64
	RecipientID string
	Phone       string
	Template    string
	RemoteID    string
	Status      MessageStatus
	ErrorMsg    string
	SentAt      time.Time
	UpdatedAt   time.Time
}
