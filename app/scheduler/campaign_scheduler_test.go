package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lmoretti/whatsflow/app/dto"
	businessflow "github.com/lmoretti/whatsflow/business_flow"
	"github.com/lmoretti/whatsflow/models"
	"github.com/lmoretti/whatsflow/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFlow records activation calls and returns a configured error per id.
// Ids in lostFor report a lost claim race (activated false, nil error).
type fakeFlow struct {
	mu        sync.Mutex
	activated []uint
	errFor    map[uint]error
	lostFor   map[uint]bool
}

func newFakeFlow() *fakeFlow {
	return &fakeFlow{errFor: make(map[uint]error), lostFor: make(map[uint]bool)}
}

func (f *fakeFlow) ActivateCampaign(ctx context.Context, campaignID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, campaignID)
	if err := f.errFor[campaignID]; err != nil {
		return false, err
	}
	return !f.lostFor[campaignID], nil
}

func (f *fakeFlow) activatedIDs() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.activated...)
}

func (f *fakeFlow) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CreateCampaignResponse, error) {
	return nil, nil
}

func (f *fakeFlow) ScheduleCampaign(ctx context.Context, campaignUUID string, at time.Time) error {
	return nil
}

func (f *fakeFlow) DispatchCampaign(ctx context.Context, campaignUUID string) error { return nil }

func (f *fakeFlow) AbortCampaign(ctx context.Context, campaignUUID string) error { return nil }

func (f *fakeFlow) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	return nil, nil
}

func (f *fakeFlow) ListLogs(ctx context.Context, campaignUUID string, req *dto.ListLogsRequest) (*dto.ListLogsResponse, error) {
	return nil, nil
}

func (f *fakeFlow) ExportLogs(ctx context.Context, campaignUUID string) ([]byte, string, error) {
	return nil, "", nil
}

func scheduledCampaign(id uint, at time.Time) *models.Campaign {
	return &models.Campaign{
		ID:          id,
		Name:        "Scheduled Promo",
		Status:      models.CampaignStatusScheduled,
		ScheduledAt: &at,
	}
}

func TestSchedulerPromotesDueCampaigns(t *testing.T) {
	past := utils.UTCNowAdd(-time.Minute)
	future := utils.UTCNowAdd(time.Hour)

	campaignRepo := newFakeCampaignRepo(
		scheduledCampaign(1, past),
		scheduledCampaign(2, future),
	)
	flow := newFakeFlow()

	s := NewCampaignScheduler(campaignRepo, flow, time.Minute, 20, testLogger{})
	s.runOnce(context.Background())

	assert.Equal(t, []uint{1}, flow.activatedIDs())
}

func TestSchedulerLostClaimIsNotCountedAsPromotion(t *testing.T) {
	past := utils.UTCNowAdd(-time.Minute)
	campaignRepo := newFakeCampaignRepo(
		scheduledCampaign(1, past),
		scheduledCampaign(2, past),
	)
	flow := newFakeFlow()
	flow.lostFor[1] = true

	before := testutil.ToFloat64(campaignsPromotedTotal)
	s := NewCampaignScheduler(campaignRepo, flow, time.Minute, 20, testLogger{})
	s.runOnce(context.Background())

	// both due campaigns are attempted, only the won claim counts
	assert.ElementsMatch(t, []uint{1, 2}, flow.activatedIDs())
	assert.Equal(t, before+1, testutil.ToFloat64(campaignsPromotedTotal))
}

func TestSchedulerActivationFailureDoesNotBlockThePage(t *testing.T) {
	past := utils.UTCNowAdd(-time.Minute)
	campaignRepo := newFakeCampaignRepo(
		scheduledCampaign(1, past),
		scheduledCampaign(2, past),
	)
	flow := newFakeFlow()
	flow.errFor[1] = businessflow.NewBusinessError("EMPTY_AUDIENCE", "Audience resolved empty, campaign failed", businessflow.ErrEmptyAudience)
	flow.errFor[2] = errors.New("database unavailable")

	s := NewCampaignScheduler(campaignRepo, flow, time.Minute, 20, testLogger{})
	s.runOnce(context.Background())

	assert.ElementsMatch(t, []uint{1, 2}, flow.activatedIDs())
}

func TestSchedulerStartStop(t *testing.T) {
	past := utils.UTCNowAdd(-time.Minute)
	campaignRepo := newFakeCampaignRepo(scheduledCampaign(1, past))
	flow := newFakeFlow()

	s := NewCampaignScheduler(campaignRepo, flow, time.Hour, 20, testLogger{})
	stop := s.Start(context.Background())

	// the initial tick runs immediately
	require.Eventually(t, func() bool {
		return len(flow.activatedIDs()) == 1
	}, time.Second, 10*time.Millisecond)

	stop()
}
