// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lmoretti/whatsflow/app/dto"
	"github.com/lmoretti/whatsflow/models"
	"github.com/lmoretti/whatsflow/repository"
	"github.com/lmoretti/whatsflow/utils"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Dispatcher is the background drain loop the flow hands claimed campaigns
// to. It runs as an independent unit of work per campaign, never on the
// caller's request path.
type Dispatcher interface {
	Start(campaignID uint)
}

// CampaignFlow handles the campaign dispatch business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CreateCampaignResponse, error)
	ScheduleCampaign(ctx context.Context, campaignUUID string, at time.Time) error
	// DispatchCampaign is the manual "send now" path. It shares the guarded
	// activation sequence with the scheduler's promotion path.
	DispatchCampaign(ctx context.Context, campaignUUID string) error
	// ActivateCampaign claims, materializes and starts dispatch for a
	// campaign by id. A lost claim race is not an error; activated
	// reports whether this caller won the claim.
	ActivateCampaign(ctx context.Context, campaignID uint) (activated bool, err error)
	AbortCampaign(ctx context.Context, campaignUUID string) error
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	ListLogs(ctx context.Context, campaignUUID string, req *dto.ListLogsRequest) (*dto.ListLogsResponse, error)
	ExportLogs(ctx context.Context, campaignUUID string) ([]byte, string, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	logRepo      repository.DispatchLogRepository
	contactRepo  repository.ContactRepository
	dispatcher   Dispatcher
	db           *gorm.DB

	rc        *redis.Client
	keyPrefix string
	countsTTL time.Duration
}

// NewCampaignFlow creates a new campaign flow instance. rc may be nil when
// the counts cache is disabled.
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	logRepo repository.DispatchLogRepository,
	contactRepo repository.ContactRepository,
	dispatcher Dispatcher,
	db *gorm.DB,
	rc *redis.Client,
	keyPrefix string,
	countsTTL time.Duration,
) CampaignFlow {
	if countsTTL <= 0 {
		countsTTL = 30 * time.Second
	}
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		logRepo:      logRepo,
		contactRepo:  contactRepo,
		dispatcher:   dispatcher,
		db:           db,
		rc:           rc,
		keyPrefix:    keyPrefix,
		countsTTL:    countsTTL,
	}
}

// CreateCampaign creates a draft campaign; a future scheduled_at moves it to
// scheduled immediately.
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CreateCampaignResponse, error) {
	if err := s.validateCreateCampaignRequest(req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	language := req.TemplateLanguage
	if language == "" {
		language = "es_AR"
	}

	campaign := &models.Campaign{
		Name:             strings.TrimSpace(req.Name),
		TemplateName:     req.TemplateName,
		TemplateLanguage: language,
		TagName:          req.TagName,
		Variables:        req.Variables,
		Status:           models.CampaignStatusDraft,
	}
	if req.ScheduledAt != nil {
		if utils.IsExpired(*req.ScheduledAt) {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", ErrScheduleTimeInPast)
		}
		at := req.ScheduledAt.UTC()
		campaign.ScheduledAt = &at
		campaign.Status = models.CampaignStatusScheduled
	}

	if err := s.campaignRepo.Save(ctx, campaign); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	return &dto.CreateCampaignResponse{
		Message:   "Campaign created successfully",
		UUID:      campaign.UUID.String(),
		Status:    string(campaign.Status),
		CreatedAt: campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// ScheduleCampaign moves a draft campaign to scheduled for a future time
func (s *CampaignFlowImpl) ScheduleCampaign(ctx context.Context, campaignUUID string, at time.Time) error {
	if utils.IsExpired(at) {
		return NewBusinessError("SCHEDULE_IN_PAST", "Schedule time must be in the future", ErrScheduleTimeInPast)
	}

	campaign, err := s.lookupCampaign(ctx, campaignUUID)
	if err != nil {
		return err
	}

	at = at.UTC()
	return repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.campaignRepo.UpdateStatus(txCtx, campaign.ID, models.CampaignStatusScheduled); err != nil {
			if errors.Is(err, repository.ErrInvalidStateTransition) {
				return NewBusinessError("INVALID_STATE_TRANSITION", "Campaign cannot be scheduled in its current status", err)
			}
			return err
		}
		return s.campaignRepo.UpdateScheduledAt(txCtx, campaign.ID, at)
	})
}

// DispatchCampaign is the manual activation path
func (s *CampaignFlowImpl) DispatchCampaign(ctx context.Context, campaignUUID string) error {
	campaign, err := s.lookupCampaign(ctx, campaignUUID)
	if err != nil {
		return err
	}
	_, err = s.ActivateCampaign(ctx, campaign.ID)
	return err
}

// ActivateCampaign runs the guarded activation sequence: resolve audience,
// claim the sending transition under a row lock, materialize logs, start the
// background dispatcher. Losing the claim race is a no-op, not an error;
// activated is false in that case so callers do not report a promotion that
// never happened.
func (s *CampaignFlowImpl) ActivateCampaign(ctx context.Context, campaignID uint) (bool, error) {
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if campaign == nil {
		return false, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}

	audience, err := s.contactRepo.ListByTag(ctx, campaign.TagName)
	if err != nil {
		return false, fmt.Errorf("resolve audience: %w", err)
	}
	if len(audience) == 0 {
		// Expected business condition, terminal for this activation attempt.
		if err := s.campaignRepo.UpdateStatus(ctx, campaignID, models.CampaignStatusFailed); err != nil && !errors.Is(err, repository.ErrInvalidStateTransition) {
			return false, err
		}
		return false, NewBusinessError("EMPTY_AUDIENCE", "Audience resolved empty, campaign failed", ErrEmptyAudience)
	}

	claimed, err := s.campaignRepo.ClaimSending(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if !claimed {
		// Another caller (scheduler tick or manual dispatch) won the race.
		return false, nil
	}

	if _, err := s.Materialize(ctx, campaignID, audience); err != nil {
		return false, fmt.Errorf("materialize logs: %w", err)
	}

	s.dispatcher.Start(campaignID)
	return true, nil
}

// Materialize idempotently expands the audience into one pending dispatch
// log per contact, snapshotting the phone number. Duplicate (campaign,
// contact) pairs are silently absorbed by the unique constraint.
func (s *CampaignFlowImpl) Materialize(ctx context.Context, campaignID uint, audience []*models.Contact) (int64, error) {
	logs := make([]*models.DispatchLog, 0, len(audience))
	now := utils.UTCNow()
	for _, contact := range audience {
		if contact == nil || contact.PhoneNumber == "" {
			continue
		}
		logs = append(logs, &models.DispatchLog{
			CampaignID:  campaignID,
			ContactID:   contact.ID,
			PhoneNumber: contact.PhoneNumber,
			Status:      models.DispatchStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return s.logRepo.BulkInsertPending(ctx, logs)
}

// AbortCampaign pauses an in-flight campaign. The still-pending logs are
// bulk-moved to paused inside the same transaction that flips the campaign,
// so the dispatcher's next page fetch comes back empty and its loop exits.
func (s *CampaignFlowImpl) AbortCampaign(ctx context.Context, campaignUUID string) error {
	campaign, err := s.lookupCampaign(ctx, campaignUUID)
	if err != nil {
		return err
	}

	return repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.campaignRepo.UpdateStatus(txCtx, campaign.ID, models.CampaignStatusPaused); err != nil {
			if errors.Is(err, repository.ErrInvalidStateTransition) {
				return NewBusinessError("ABORT_NOT_ALLOWED", "Campaign is not sending", ErrAbortNotAllowed)
			}
			return err
		}
		_, err := s.logRepo.PauseAllPending(txCtx, campaign.ID)
		return err
	})
}

// ListCampaigns returns a page of campaigns with aggregated per-status log
// counts, read through the Redis cache when available.
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	page, pageSize, err := normalizePage(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}

	filter := models.CampaignFilter{}
	if req.Status != "" {
		status := models.CampaignStatus(req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("INVALID_STATUS", fmt.Sprintf("Unknown campaign status %q", req.Status), nil)
		}
		filter.Status = &status
	}

	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]dto.CampaignDTO, 0, len(campaigns))
	for _, c := range campaigns {
		counts, err := s.logCounts(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, toCampaignDTO(c, counts))
	}

	return &dto.ListCampaignsResponse{
		Items: items,
		Pagination: dto.Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	}, nil
}

// ListLogs pages through a campaign's dispatch logs
func (s *CampaignFlowImpl) ListLogs(ctx context.Context, campaignUUID string, req *dto.ListLogsRequest) (*dto.ListLogsResponse, error) {
	campaign, err := s.lookupCampaign(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	page, pageSize, err := normalizePage(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}

	filter := models.DispatchLogFilter{CampaignID: &campaign.ID}
	if req.Status != "" {
		status := models.DispatchStatus(req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("INVALID_STATUS", fmt.Sprintf("Unknown dispatch status %q", req.Status), nil)
		}
		filter.Status = &status
	}

	total, err := s.logRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	logs, err := s.logRepo.ByFilter(ctx, filter, "id ASC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]dto.DispatchLogDTO, 0, len(logs))
	for _, l := range logs {
		items = append(items, dto.DispatchLogDTO{
			ID:          l.ID,
			ContactID:   l.ContactID,
			PhoneNumber: l.PhoneNumber,
			WAMessageID: l.WAMessageID,
			Status:      string(l.Status),
			ErrorDetail: l.ErrorDetail,
			CreatedAt:   l.CreatedAt.Format(time.RFC3339),
		})
	}

	return &dto.ListLogsResponse{
		Items: items,
		Pagination: dto.Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	}, nil
}

// ExportLogs renders every dispatch log of a campaign into an XLSX workbook
func (s *CampaignFlowImpl) ExportLogs(ctx context.Context, campaignUUID string) ([]byte, string, error) {
	campaign, err := s.lookupCampaign(ctx, campaignUUID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	headers := []string{"Log ID", "Contact ID", "Phone Number", "Status", "Gateway Message ID", "Error Detail", "Created At", "Updated At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, "", err
		}
	}

	const exportPage = 1000
	filter := models.DispatchLogFilter{CampaignID: &campaign.ID}
	row := 2
	for offset := 0; ; offset += exportPage {
		logs, err := s.logRepo.ByFilter(ctx, filter, "id ASC", exportPage, offset)
		if err != nil {
			return nil, "", err
		}
		if len(logs) == 0 {
			break
		}
		for _, l := range logs {
			values := []any{
				l.ID,
				l.ContactID,
				l.PhoneNumber,
				string(l.Status),
				deref(l.WAMessageID),
				deref(l.ErrorDetail),
				l.CreatedAt.Format(time.RFC3339),
				l.UpdatedAt.Format(time.RFC3339),
			}
			for i, v := range values {
				cell, _ := excelize.CoordinatesToCellName(i+1, row)
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return nil, "", err
				}
			}
			row++
		}
		if len(logs) < exportPage {
			break
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("campaign_%s_logs.xlsx", campaign.UUID.String())
	return buf.Bytes(), filename, nil
}

// logCounts reads per-status counts through the Redis cache when configured
func (s *CampaignFlowImpl) logCounts(ctx context.Context, campaignID uint) (map[models.DispatchStatus]int64, error) {
	if s.rc == nil {
		return s.logRepo.CountByStatus(ctx, campaignID)
	}

	key := fmt.Sprintf("%s:campaign:%d:counts", s.keyPrefix, campaignID)
	if cached, err := s.rc.Get(ctx, key).Result(); err == nil {
		var counts map[models.DispatchStatus]int64
		if err := json.Unmarshal([]byte(cached), &counts); err == nil {
			return counts, nil
		}
	}

	counts, err := s.logRepo.CountByStatus(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(counts); err == nil {
		// Best effort; a cache write failure never fails the read path.
		_ = s.rc.Set(ctx, key, data, s.countsTTL).Err()
	}
	return counts, nil
}

func (s *CampaignFlowImpl) lookupCampaign(ctx context.Context, campaignUUID string) (*models.Campaign, error) {
	if campaignUUID == "" {
		return nil, NewBusinessError("CAMPAIGN_UUID_REQUIRED", "Campaign UUID is required", ErrCampaignUUIDRequired)
	}
	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	return campaign, nil
}

func (s *CampaignFlowImpl) validateCreateCampaignRequest(req *dto.CreateCampaignRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return ErrCampaignNameRequired
	}
	if strings.TrimSpace(req.TemplateName) == "" {
		return ErrCampaignTemplateRequired
	}
	if strings.TrimSpace(req.TagName) == "" {
		return ErrCampaignTagRequired
	}
	return nil
}

func toCampaignDTO(c *models.Campaign, counts map[models.DispatchStatus]int64) dto.CampaignDTO {
	out := dto.CampaignDTO{
		UUID:             c.UUID.String(),
		Name:             c.Name,
		TemplateName:     c.TemplateName,
		TemplateLanguage: c.TemplateLanguage,
		TagName:          c.TagName,
		Status:           string(c.Status),
		Variables:        c.Variables,
		ScheduledAt:      c.ScheduledAt,
		StartedAt:        c.StartedAt,
		CompletedAt:      c.CompletedAt,
		CreatedAt:        c.CreatedAt,
	}
	if len(counts) > 0 {
		out.Counts = make(map[string]int64, len(counts))
		for k, v := range counts {
			out.Counts[string(k)] = v
		}
	}
	return out
}

func normalizePage(page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = 20
	}
	if page < 1 {
		return 0, 0, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > 100 {
		return 0, 0, ErrInvalidPageSize
	}
	return page, pageSize, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
