// Package services provides external service integrations and technical concerns like gateway clients
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lmoretti/whatsflow/config"
)

// TemplateMeta describes one approved message template on the gateway
type TemplateMeta struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Language string `json:"language"`
}

// MessageGateway is the dispatcher's only outbound dependency. Sends are
// assumed at-least-once on the gateway's side.
type MessageGateway interface {
	// SendTemplateMessage sends a template message and returns the gateway
	// message id used to correlate later delivery-status events.
	SendTemplateMessage(ctx context.Context, to, templateName, language string, params []string) (string, error)
	// GetTemplates lists the account's approved templates
	GetTemplates(ctx context.Context) ([]TemplateMeta, error)
}

// WhatsAppClient implements MessageGateway against the WhatsApp Cloud API
type WhatsAppClient struct {
	cfg    config.GatewayConfig
	client *http.Client
}

// NewWhatsAppClient creates a new WhatsApp Cloud API client
func NewWhatsAppClient(cfg config.GatewayConfig) *WhatsAppClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhatsAppClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type sendTemplatePayload struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type templatePayload struct {
	Name       string             `json:"name"`
	Language   languagePayload    `json:"language"`
	Components []componentPayload `json:"components,omitempty"`
}

type languagePayload struct {
	Code string `json:"code"`
}

type componentPayload struct {
	Type       string             `json:"type"`
	Parameters []parameterPayload `json:"parameters"`
}

type parameterPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendTemplateMessage sends a template message to a single recipient
func (c *WhatsAppClient) SendTemplateMessage(ctx context.Context, to, templateName, language string, params []string) (string, error) {
	if c.cfg.PhoneNumberID == "" || c.cfg.AccessToken == "" {
		return "", fmt.Errorf("whatsapp gateway not configured")
	}

	payload := sendTemplatePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: templatePayload{
			Name:     templateName,
			Language: languagePayload{Code: language},
		},
	}
	if len(params) > 0 {
		comp := componentPayload{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, parameterPayload{Type: "text", Text: p})
		}
		payload.Template.Components = []componentPayload{comp}
	}

	b, _ := json.Marshal(payload)
	url := fmt.Sprintf("%s/%s/messages", c.baseURL(), c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp send request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode send response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil {
			return "", fmt.Errorf("whatsapp send failed (code %d): %s", out.Error.Code, out.Error.Message)
		}
		return "", fmt.Errorf("whatsapp send http status: %d", resp.StatusCode)
	}

	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp send returned no message id")
	}

	return out.Messages[0].ID, nil
}

// GetTemplates lists the business account's message templates
func (c *WhatsAppClient) GetTemplates(ctx context.Context) ([]TemplateMeta, error) {
	if c.cfg.BusinessAccountID == "" || c.cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp gateway not configured")
	}

	url := fmt.Sprintf("%s/%s/message_templates?fields=name,status,category,language&limit=100", c.baseURL(), c.cfg.BusinessAccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp templates request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whatsapp templates http status: %d", resp.StatusCode)
	}

	var out struct {
		Data []TemplateMeta `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode templates response: %w", err)
	}
	return out.Data, nil
}

func (c *WhatsAppClient) baseURL() string {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL
	}
	return "https://graph.facebook.com/v18.0"
}
