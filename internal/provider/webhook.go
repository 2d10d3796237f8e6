package provider

import "github.com/shopspring/decimal"

// WebhookAction classifies a notification from an external chain monitor.
// The HTTP plumbing for webhooks lives with the host; the engine only maps
// event types onto lifecycle actions.
type WebhookAction string

const (
	WebhookAuthorized   WebhookAction = "authorized"
	WebhookCaptured     WebhookAction = "captured"
	WebhookNotSupported WebhookAction = "not_supported"
)

type WebhookData struct {
	SessionID string
	Amount    decimal.Decimal
}

// ClassifyWebhook maps a raw webhook payload onto an action.
func ClassifyWebhook(payload map[string]any) (WebhookAction, WebhookData) {
	eventType, _ := payload["type"].(string)
	data := WebhookData{}
	if id, ok := payload["session_id"].(string); ok {
		data.SessionID = id
	}
	switch amt := payload["amount"].(type) {
	case string:
		if d, err := decimal.NewFromString(amt); err == nil {
			data.Amount = d
		}
	case float64:
		data.Amount = decimal.NewFromFloat(amt)
	}

	switch eventType {
	case "payment_received":
		return WebhookAuthorized, data
	case "payment_confirmed":
		return WebhookCaptured, data
	default:
		return WebhookNotSupported, WebhookData{}
	}
}
