package whatsapp

import "fmt"

// APIError is a failure response from the WhatsApp Cloud API, carrying the
// provider error code for operator diagnostics.
type APIError struct {
	Code    int
	Subcode int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp API error: code=%d subcode=%d msg=%s", e.Code, e.Subcode, e.Message)
}

// sendRequest is the outbound /messages request body. Only one of Template
// or Text is set depending on the message type.
type sendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         *templatePayload `json:"template,omitempty"`
	Text             *textPayload     `json:"text,omitempty"`
}

type templatePayload struct {
	Name       string        `json:"name"`
	Language   languageBlock `json:"language"`
	Components interface{}   `json:"components,omitempty"`
}

type languageBlock struct {
	Code string `json:"code"`
}

type textPayload struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		Message      string `json:"message"`
	} `json:"error"`
}
