package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/lmoretti/whatsflow/app/dto"
	"github.com/lmoretti/whatsflow/app/scheduler"
)

// TemplateHandlerInterface defines the contract for template catalog handlers
type TemplateHandlerInterface interface {
	List(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
}

// TemplateHandler serves the gateway's approved template catalog through the
// TTL cache, so campaign authors can pick templates without hammering the
// management API.
type TemplateHandler struct {
	cache *scheduler.TemplateCache
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(cache *scheduler.TemplateCache) *TemplateHandler {
	return &TemplateHandler{cache: cache}
}

// List returns the cached template catalog
func (h *TemplateHandler) List(c fiber.Ctx) error {
	templates, err := h.cache.Get(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.APIResponse{
			Success: false,
			Message: "Failed to fetch templates from gateway",
			Error:   dto.ErrorDetail{Code: "GATEWAY_ERROR"},
		})
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Templates retrieved",
		Data:    templates,
	})
}

// Refresh drops the cached catalog and fetches a fresh copy
func (h *TemplateHandler) Refresh(c fiber.Ctx) error {
	h.cache.Invalidate()
	return h.List(c)
}
