package port

import (
	"context"

	"github.com/opsdeck/approvalflow/internal/domain/entity"
)

// TemplateComponent is one structured parameter block of a channel template
// message, in the shape the WhatsApp Cloud API expects.
type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters"`
}

// TemplateParameter is one parameter inside a template component.
type TemplateParameter struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// ChannelClient defines the outbound messaging operations the notification
// dispatcher needs. Both calls return the provider's remote message id.
type ChannelClient interface {
	SendTemplateMessage(ctx context.Context, recipient, templateName, languageCode string, components []TemplateComponent) (string, error)
	SendTextMessage(ctx context.Context, recipient, text string) (string, error)
}

// RequestSource fetches the snapshot of an approvable request from the
// surrounding application. The engine treats request records as external.
type RequestSource interface {
	GetSnapshot(ctx context.Context, entityType entity.EntityType, entityID int64) (*entity.RequestSnapshot, error)
}
