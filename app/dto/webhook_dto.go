package dto

// WebhookPayload mirrors the WhatsApp Cloud API webhook envelope, trimmed to
// the fields the status reconciler consumes.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Statuses         []WebhookStatus `json:"statuses"`
}

// WebhookStatus is one delivery-status event keyed by the gateway message id
type WebhookStatus struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	RecipientID string         `json:"recipient_id"`
	Timestamp   string         `json:"timestamp"`
	Errors      []WebhookError `json:"errors,omitempty"`
}

type WebhookError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}
