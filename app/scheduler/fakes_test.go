package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lmoretti/whatsflow/app/services"
	"github.com/lmoretti/whatsflow/models"
	"github.com/lmoretti/whatsflow/repository"
	"github.com/lmoretti/whatsflow/utils"
)

// In-memory fakes for the repository interfaces. They honor the same
// guarded-transition semantics as the Postgres implementations so the worker
// loops can be exercised without a database.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign
}

func newFakeCampaignRepo(campaigns ...*models.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: make(map[uint]*models.Campaign)}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.UUID.String() == uuid {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = uint(len(r.campaigns) + 1)
	}
	r.campaigns[c.ID] = c
	return nil
}

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, cs []*models.Campaign) error {
	for _, c := range cs {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.campaigns)), nil
}

func (r *fakeCampaignRepo) UpdateStatus(ctx context.Context, id uint, newStatus models.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign %d not found", id)
	}
	if !c.CanTransitionTo(newStatus) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidStateTransition, c.Status, newStatus)
	}
	c.Status = newStatus
	switch newStatus {
	case models.CampaignStatusSending:
		c.StartedAt = utils.UTCNowPtr()
	case models.CampaignStatusCompleted:
		c.CompletedAt = utils.UTCNowPtr()
	}
	return nil
}

func (r *fakeCampaignRepo) UpdateScheduledAt(ctx context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.ScheduledAt = &at
	}
	return nil
}

func (r *fakeCampaignRepo) ClaimSending(ctx context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return false, fmt.Errorf("campaign %d not found", id)
	}
	switch c.Status {
	case models.CampaignStatusDraft, models.CampaignStatusScheduled, models.CampaignStatusPaused:
		c.Status = models.CampaignStatusSending
		if c.StartedAt == nil {
			c.StartedAt = utils.UTCNowPtr()
		}
		return true, nil
	default:
		return false, nil
	}
}

func (r *fakeCampaignRepo) ListDueScheduledIDs(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint
	for id, c := range r.campaigns {
		if c.Status == models.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (r *fakeCampaignRepo) status(id uint) models.CampaignStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id].Status
}

type fakeLogRepo struct {
	mu      sync.Mutex
	nextID  uint
	logs    []*models.DispatchLog
	markErr error
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{nextID: 1}
}

func (r *fakeLogRepo) seedPending(campaignID uint, phoneNumbers ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, phone := range phoneNumbers {
		r.logs = append(r.logs, &models.DispatchLog{
			ID:          r.nextID,
			CampaignID:  campaignID,
			ContactID:   uint(i + 1),
			PhoneNumber: phone,
			Status:      models.DispatchStatusPending,
		})
		r.nextID++
	}
}

func (r *fakeLogRepo) ByID(ctx context.Context, id uint) (*models.DispatchLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeLogRepo) ByFilter(ctx context.Context, filter models.DispatchLogFilter, orderBy string, limit, offset int) ([]*models.DispatchLog, error) {
	return nil, nil
}

func (r *fakeLogRepo) Save(ctx context.Context, l *models.DispatchLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = r.nextID
	r.nextID++
	r.logs = append(r.logs, l)
	return nil
}

func (r *fakeLogRepo) SaveBatch(ctx context.Context, ls []*models.DispatchLog) error {
	for _, l := range ls {
		if err := r.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeLogRepo) Count(ctx context.Context, filter models.DispatchLogFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.logs)), nil
}

func (r *fakeLogRepo) BulkInsertPending(ctx context.Context, logs []*models.DispatchLog) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted int64
	for _, l := range logs {
		dup := false
		for _, existing := range r.logs {
			if existing.CampaignID == l.CampaignID && existing.ContactID == l.ContactID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		l.ID = r.nextID
		r.nextID++
		r.logs = append(r.logs, l)
		inserted++
	}
	return inserted, nil
}

func (r *fakeLogRepo) ListPending(ctx context.Context, campaignID uint, limit int) ([]*models.DispatchLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DispatchLog
	for _, l := range r.logs {
		if l.CampaignID == campaignID && l.Status == models.DispatchStatusPending {
			cp := *l
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeLogRepo) MarkSent(ctx context.Context, logID uint, waMessageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	for _, l := range r.logs {
		if l.ID == logID && l.Status == models.DispatchStatusPending {
			l.Status = models.DispatchStatusSent
			l.WAMessageID = &waMessageID
		}
	}
	return nil
}

func (r *fakeLogRepo) MarkFailed(ctx context.Context, logID uint, errorDetail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	for _, l := range r.logs {
		if l.ID == logID && l.Status == models.DispatchStatusPending {
			l.Status = models.DispatchStatusFailed
			l.ErrorDetail = &errorDetail
		}
	}
	return nil
}

func (r *fakeLogRepo) AdvanceByWAMessageID(ctx context.Context, waMessageID string, newStatus models.DispatchStatus, errorDetail *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.WAMessageID != nil && *l.WAMessageID == waMessageID {
			if !l.Status.CanAdvanceTo(newStatus) {
				return false, nil
			}
			l.Status = newStatus
			if errorDetail != nil {
				l.ErrorDetail = errorDetail
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeLogRepo) PauseAllPending(ctx context.Context, campaignID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.logs {
		if l.CampaignID == campaignID && l.Status == models.DispatchStatusPending {
			l.Status = models.DispatchStatusPaused
			n++
		}
	}
	return n, nil
}

func (r *fakeLogRepo) CountByStatus(ctx context.Context, campaignID uint) (map[models.DispatchStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.DispatchStatus]int64)
	for _, l := range r.logs {
		if l.CampaignID == campaignID {
			counts[l.Status]++
		}
	}
	return counts, nil
}

func (r *fakeLogRepo) statusOf(logID uint) models.DispatchStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.ID == logID {
			return l.Status
		}
	}
	return ""
}

func (r *fakeLogRepo) countWithStatus(campaignID uint, status models.DispatchStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.logs {
		if l.CampaignID == campaignID && l.Status == status {
			n++
		}
	}
	return n
}

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[uint]*models.Contact
}

func newFakeContactRepo(contacts ...*models.Contact) *fakeContactRepo {
	r := &fakeContactRepo{contacts: make(map[uint]*models.Contact)}
	for _, c := range contacts {
		r.contacts[c.ID] = c
	}
	return r
}

func (r *fakeContactRepo) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeContactRepo) ListByTag(ctx context.Context, tagName string) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Contact
	for _, c := range r.contacts {
		for _, tag := range c.Tags {
			if tag.Name == tagName && tag.IsActive {
				cp := *c
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*models.Message
}

func (r *fakeMessageRepo) ByID(ctx context.Context, id uint) (*models.Message, error) {
	return nil, nil
}

func (r *fakeMessageRepo) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	return nil, nil
}

func (r *fakeMessageRepo) Save(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = uint(len(r.messages) + 1)
	r.messages = append(r.messages, m)
	return nil
}

func (r *fakeMessageRepo) SaveBatch(ctx context.Context, ms []*models.Message) error {
	for _, m := range ms {
		if err := r.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.messages)), nil
}

func (r *fakeMessageRepo) ByWAMessageID(ctx context.Context, waMessageID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.WAMessageID != nil && *m.WAMessageID == waMessageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// fakeGateway records send calls and fails configured phone numbers.
type fakeGateway struct {
	mu        sync.Mutex
	failFor   map[string]bool
	sendTimes []time.Time
	sent      []string
	params    [][]string
	nextID    int

	templates     []services.TemplateMeta
	templateErr   error
	templateCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failFor: make(map[string]bool)}
}

func (g *fakeGateway) SendTemplateMessage(ctx context.Context, to, templateName, language string, params []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendTimes = append(g.sendTimes, time.Now())
	g.params = append(g.params, params)
	if g.failFor[to] {
		return "", fmt.Errorf("gateway rejected recipient %s", to)
	}
	g.nextID++
	id := fmt.Sprintf("wamid.%d", g.nextID)
	g.sent = append(g.sent, to)
	return id, nil
}

func (g *fakeGateway) GetTemplates(ctx context.Context) ([]services.TemplateMeta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.templateCalls++
	if g.templateErr != nil {
		return nil, g.templateErr
	}
	return g.templates, nil
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type testLogger struct{}

func (testLogger) Printf(format string, v ...any) {}
