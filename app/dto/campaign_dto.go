package dto

import "time"

// CreateCampaignRequest creates a new draft campaign. A future scheduled_at
// moves it straight to scheduled.
type CreateCampaignRequest struct {
	Name             string     `json:"name" validate:"required,min=1,max=200"`
	TemplateName     string     `json:"template_name" validate:"required,min=1,max=200"`
	TemplateLanguage string     `json:"template_language" validate:"omitempty,max=20"`
	TagName          string     `json:"tag_name" validate:"required,min=1,max=100"`
	Variables        []string   `json:"variables" validate:"omitempty,dive,min=1"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
}

// CreateCampaignResponse returns the created campaign identifiers
type CreateCampaignResponse struct {
	Message   string `json:"message"`
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// ScheduleCampaignRequest schedules a draft campaign for a future time
type ScheduleCampaignRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// CampaignDTO is the campaign representation returned to clients
type CampaignDTO struct {
	UUID             string           `json:"uuid"`
	Name             string           `json:"name"`
	TemplateName     string           `json:"template_name"`
	TemplateLanguage string           `json:"template_language"`
	TagName          string           `json:"tag_name"`
	Status           string           `json:"status"`
	Variables        []string         `json:"variables,omitempty"`
	ScheduledAt      *time.Time       `json:"scheduled_at,omitempty"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Counts           map[string]int64 `json:"counts,omitempty"`
}

// ListCampaignsRequest pages through campaigns
type ListCampaignsRequest struct {
	Page     int    `json:"page" validate:"omitempty,min=1"`
	PageSize int    `json:"page_size" validate:"omitempty,min=1,max=100"`
	Status   string `json:"status" validate:"omitempty"`
}

// ListCampaignsResponse returns a page of campaigns with aggregated log counts
type ListCampaignsResponse struct {
	Items      []CampaignDTO `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// DispatchLogDTO is the per-recipient log representation returned to clients
type DispatchLogDTO struct {
	ID          uint    `json:"id"`
	ContactID   uint    `json:"contact_id"`
	PhoneNumber string  `json:"phone_number"`
	WAMessageID *string `json:"wa_message_id,omitempty"`
	Status      string  `json:"status"`
	ErrorDetail *string `json:"error_detail,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// ListLogsRequest pages through a campaign's dispatch logs
type ListLogsRequest struct {
	Page     int    `json:"page" validate:"omitempty,min=1"`
	PageSize int    `json:"page_size" validate:"omitempty,min=1,max=100"`
	Status   string `json:"status" validate:"omitempty"`
}

// ListLogsResponse returns a page of dispatch logs
type ListLogsResponse struct {
	Items      []DispatchLogDTO `json:"items"`
	Pagination Pagination       `json:"pagination"`
}
