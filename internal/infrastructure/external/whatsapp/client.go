package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/pkg/utils"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// Config holds WhatsApp Cloud API client configuration
type Config struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	Timeout       time.Duration
}

// Client is a thin WhatsApp Cloud API client. It implements
// port.ChannelClient.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new WhatsApp client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// SendTemplateMessage sends a pre-approved template message with structured
// components and returns the remote message id.
func (c *Client) SendTemplateMessage(ctx context.Context, recipient, templateName, languageCode string, components []port.TemplateComponent) (string, error) {
	req := sendRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "template",
		Template: &templatePayload{
			Name:       templateName,
			Language:   languageBlock{Code: languageCode},
			Components: components,
		},
	}

	messageID, err := c.send(ctx, &req)
	if err != nil {
		return "", err
	}

	c.logger.Info("Template message sent",
		zap.String("template", templateName),
		zap.String("message_id", messageID))
	return messageID, nil
}

// SendTextMessage sends a plain text message and returns the remote
// message id.
func (c *Client) SendTextMessage(ctx context.Context, recipient, text string) (string, error) {
	req := sendRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "text",
		Text:             &textPayload{Body: text},
	}

	messageID, err := c.send(ctx, &req)
	if err != nil {
		return "", err
	}

	c.logger.Info("Text message sent", zap.String("message_id", messageID))
	return messageID, nil
}

func (c *Client) send(ctx context.Context, payload *sendRequest) (string, error) {
	if err := utils.ValidatePhoneNumber(payload.To); err != nil {
		return "", fmt.Errorf("refusing to send: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.config.BaseURL, c.config.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Failed to send message", zap.Error(err))
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Error != nil {
		c.logger.Error("API returned failure",
			zap.Int("code", result.Error.Code),
			zap.String("msg", result.Error.Message))
		return "", &APIError{
			Code:    result.Error.Code,
			Subcode: result.Error.ErrorSubcode,
			Message: result.Error.Message,
		}
	}

	if len(result.Messages) == 0 {
		return "", fmt.Errorf("API response contained no message id (status %d)", resp.StatusCode)
	}
	return result.Messages[0].ID, nil
}

// Verify interface compliance
var _ port.ChannelClient = (*Client)(nil)
