package scheduler

import (
	"context"
	"errors"
	"time"

	businessflow "github.com/lmoretti/whatsflow/business_flow"
	"github.com/lmoretti/whatsflow/repository"
	"github.com/lmoretti/whatsflow/utils"
)

// CampaignScheduler polls for scheduled campaigns whose time has come and
// hands them to the activation flow. The selection query uses SKIP LOCKED,
// so running several instances only costs redundant polling, never a
// double activation.
type CampaignScheduler struct {
	campaignRepo repository.CampaignRepository
	flow         businessflow.CampaignFlow
	logger       Logger
	interval     time.Duration
	pageSize     int
}

// NewCampaignScheduler creates the polling scheduler.
func NewCampaignScheduler(
	campaignRepo repository.CampaignRepository,
	flow businessflow.CampaignFlow,
	interval time.Duration,
	pageSize int,
	logger Logger,
) *CampaignScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &CampaignScheduler{
		campaignRepo: campaignRepo,
		flow:         flow,
		logger:       logger,
		interval:     interval,
		pageSize:     pageSize,
	}
}

// Start launches the polling loop and returns a stop function that blocks
// until the loop has exited.
func (s *CampaignScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.logger.Printf("scheduler started (interval=%s)", s.interval)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger.Printf("scheduler stopped")
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// runOnce promotes one page of due campaigns. Each activation runs to the
// point where the campaign is claimed and its dispatcher goroutine spawned;
// a failure on one campaign does not block the rest of the page.
func (s *CampaignScheduler) runOnce(ctx context.Context) {
	ids, err := s.campaignRepo.ListDueScheduledIDs(ctx, utils.UTCNow(), s.pageSize)
	if err != nil {
		s.logger.Printf("scheduler: list due campaigns: %v", err)
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		activated, err := s.flow.ActivateCampaign(ctx, id)
		if err != nil {
			var bizErr *businessflow.BusinessError
			if errors.As(err, &bizErr) {
				s.logger.Printf("scheduler: campaign %d not activated: %s", id, bizErr.Message)
				continue
			}
			s.logger.Printf("scheduler: campaign %d: activation failed: %v", id, err)
			continue
		}
		if !activated {
			s.logger.Printf("scheduler: campaign %d already claimed elsewhere", id)
			continue
		}
		campaignsPromotedTotal.Inc()
		s.logger.Printf("scheduler: campaign %d promoted to sending", id)
	}
}
