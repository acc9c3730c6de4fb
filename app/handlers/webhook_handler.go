package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/lmoretti/whatsflow/app/dto"
	"github.com/lmoretti/whatsflow/app/scheduler"
)

// WebhookHandlerInterface defines the contract for gateway webhook handlers
type WebhookHandlerInterface interface {
	Verify(c fiber.Ctx) error
	Receive(c fiber.Ctx) error
}

// WebhookHandler terminates the WhatsApp Cloud API webhook: the GET
// subscription handshake and the POST delivery-status events.
type WebhookHandler struct {
	reconciler  *scheduler.StatusReconciler
	verifyToken string
	logger      scheduler.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler *scheduler.StatusReconciler, verifyToken string, logger scheduler.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler:  reconciler,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// Verify answers the gateway's subscription handshake by echoing
// hub.challenge when the verify token matches.
func (h *WebhookHandler) Verify(c fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		return c.Status(fiber.StatusOK).SendString(challenge)
	}

	return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
		Success: false,
		Message: "Webhook verification failed",
		Error:   dto.ErrorDetail{Code: "VERIFICATION_FAILED"},
	})
}

// Receive folds a batch of delivery-status events into the dispatch logs.
// The gateway retries on non-200 responses, so per-event problems are
// swallowed after logging; only an unreadable body is rejected.
func (h *WebhookHandler) Receive(c fiber.Ctx) error {
	var payload dto.WebhookPayload
	if err := c.Bind().JSON(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid webhook payload",
			Error:   dto.ErrorDetail{Code: "INVALID_PAYLOAD", Details: err.Error()},
		})
	}

	ctx := c.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, status := range change.Value.Statuses {
				detail := webhookErrorDetail(status.Errors)
				if err := h.reconciler.Apply(ctx, status.ID, status.Status, detail); err != nil {
					h.logger.Printf("webhook: message %s: %v", status.ID, err)
				}
			}
		}
	}

	return c.Status(fiber.StatusOK).SendString("EVENT_RECEIVED")
}

// webhookErrorDetail flattens the event's error list into one line
func webhookErrorDetail(errs []dto.WebhookError) *string {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	detail := fmt.Sprintf("%d %s", first.Code, first.Title)
	if first.Message != "" {
		detail = fmt.Sprintf("%d %s: %s", first.Code, first.Title, first.Message)
	}
	return &detail
}
