// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/lmoretti/whatsflow/app/dto"
	businessflow "github.com/lmoretti/whatsflow/business_flow"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	Create(c fiber.Ctx) error
	Schedule(c fiber.Ctx) error
	Dispatch(c fiber.Ctx) error
	Abort(c fiber.Ctx) error
	List(c fiber.Ctx) error
	Logs(c fiber.Ctx) error
	ExportLogs(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	flow      businessflow.CampaignFlow
	validator *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(flow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// businessErrorStatus maps business error codes to HTTP status codes
func businessErrorStatus(code string) int {
	switch code {
	case "CAMPAIGN_NOT_FOUND":
		return fiber.StatusNotFound
	case "INVALID_STATE_TRANSITION", "ABORT_NOT_ALLOWED":
		return fiber.StatusConflict
	case "EMPTY_AUDIENCE":
		return fiber.StatusUnprocessableEntity
	case "CAMPAIGN_VALIDATION_FAILED", "SCHEDULE_IN_PAST", "INVALID_PAGINATION",
		"INVALID_STATUS", "CAMPAIGN_UUID_REQUIRED":
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// handleFlowError renders a business error with its mapped status, or a
// generic 500 for anything else.
func (h *CampaignHandler) handleFlowError(c fiber.Ctx, err error) error {
	var bizErr *businessflow.BusinessError
	if errors.As(err, &bizErr) {
		return h.ErrorResponse(c, businessErrorStatus(bizErr.Code), bizErr.Message, bizErr.Code, nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR", nil)
}

// Create handles draft campaign creation
func (h *CampaignHandler) Create(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	result, err := h.flow.CreateCampaign(h.requestContext(c), &req)
	if err != nil {
		return h.handleFlowError(c, err)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created", result)
}

// Schedule handles scheduling a draft campaign for a future time
func (h *CampaignHandler) Schedule(c fiber.Ctx) error {
	var req dto.ScheduleCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	if err := h.flow.ScheduleCampaign(h.requestContext(c), c.Params("uuid"), req.ScheduledAt); err != nil {
		return h.handleFlowError(c, err)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign scheduled", nil)
}

// Dispatch handles the manual "send now" path. The drain itself runs in the
// background; a lost claim race is not an error, the winner is draining.
func (h *CampaignHandler) Dispatch(c fiber.Ctx) error {
	if err := h.flow.DispatchCampaign(h.requestContext(c), c.Params("uuid")); err != nil {
		return h.handleFlowError(c, err)
	}

	return h.SuccessResponse(c, fiber.StatusAccepted, "Campaign dispatch started", nil)
}

// Abort handles pausing an in-flight campaign
func (h *CampaignHandler) Abort(c fiber.Ctx) error {
	if err := h.flow.AbortCampaign(h.requestContext(c), c.Params("uuid")); err != nil {
		return h.handleFlowError(c, err)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign aborted", nil)
}

// List handles paged campaign listing with per-status log counts
func (h *CampaignHandler) List(c fiber.Ctx) error {
	req := dto.ListCampaignsRequest{
		Page:     fiber.Query(c, "page", 0),
		PageSize: fiber.Query(c, "page_size", 0),
		Status:   c.Query("status"),
	}

	result, err := h.flow.ListCampaigns(h.requestContext(c), &req)
	if err != nil {
		return h.handleFlowError(c, err)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved", result)
}

// Logs handles paged dispatch log listing for one campaign
func (h *CampaignHandler) Logs(c fiber.Ctx) error {
	req := dto.ListLogsRequest{
		Page:     fiber.Query(c, "page", 0),
		PageSize: fiber.Query(c, "page_size", 0),
		Status:   c.Query("status"),
	}

	result, err := h.flow.ListLogs(h.requestContext(c), c.Params("uuid"), &req)
	if err != nil {
		return h.handleFlowError(c, err)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Dispatch logs retrieved", result)
}

// ExportLogs streams a campaign's dispatch logs as an XLSX workbook
func (h *CampaignHandler) ExportLogs(c fiber.Ctx) error {
	content, filename, err := h.flow.ExportLogs(h.requestContext(c), c.Params("uuid"))
	if err != nil {
		return h.handleFlowError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(content)
}

type requestValueKey string

// requestContext derives a bounded context for the business call and attaches
// request-scoped values for observability.
func (h *CampaignHandler) requestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, requestValueKey("request_id"), c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, requestValueKey("ip_address"), c.IP())
	ctx = context.WithValue(ctx, requestValueKey("cancel_func"), cancel)
	return ctx
}

// validationMessages flattens validator errors into client-facing strings
func validationMessages(err error) []string {
	var messages []string
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			messages = append(messages, fmt.Sprintf("%s is too short", fe.Field()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s is too long", fe.Field()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return messages
}
