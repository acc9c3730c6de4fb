package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lmoretti/whatsflow/app/services"
	"github.com/lmoretti/whatsflow/config"
	"github.com/lmoretti/whatsflow/models"
	"github.com/lmoretti/whatsflow/repository"
	"github.com/lmoretti/whatsflow/utils"
	"golang.org/x/time/rate"
)

// Dispatcher drains the pending dispatch logs of a campaign, one gateway
// send at a time. Each campaign is drained by exactly one goroutine; the
// FOR UPDATE claim on the campaign row guarantees Start is only reached
// once per activation.
type Dispatcher struct {
	campaignRepo repository.CampaignRepository
	logRepo      repository.DispatchLogRepository
	contactRepo  repository.ContactRepository
	messageRepo  repository.MessageRepository
	gateway      services.MessageGateway
	logger       Logger

	baseCtx     context.Context
	batchSize   int
	sendDelay   time.Duration
	sendTimeout time.Duration
}

// Logger is the minimal logging surface the background workers need.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// maxStalledPages bounds how many consecutive pages the drain loop retries
// when none of their outcomes can be written back.
const maxStalledPages = 3

// NewDispatcher creates a dispatcher bound to baseCtx. Cancelling baseCtx
// stops every in-flight campaign drain after the current send finishes.
func NewDispatcher(
	baseCtx context.Context,
	campaignRepo repository.CampaignRepository,
	logRepo repository.DispatchLogRepository,
	contactRepo repository.ContactRepository,
	messageRepo repository.MessageRepository,
	gateway services.MessageGateway,
	cfg config.DispatchConfig,
	sendTimeout time.Duration,
	logger Logger,
) *Dispatcher {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Dispatcher{
		campaignRepo: campaignRepo,
		logRepo:      logRepo,
		contactRepo:  contactRepo,
		messageRepo:  messageRepo,
		gateway:      gateway,
		logger:       logger,
		baseCtx:      baseCtx,
		batchSize:    batch,
		sendDelay:    cfg.SendDelay,
		sendTimeout:  sendTimeout,
	}
}

// Start launches the drain loop for a campaign in its own goroutine.
func (d *Dispatcher) Start(campaignID uint) {
	go func() {
		if err := d.Dispatch(d.baseCtx, campaignID); err != nil {
			d.logger.Printf("campaign %d: dispatch aborted: %v", campaignID, err)
		}
	}()
}

// Dispatch runs the drain loop until the campaign has no pending logs left
// or ctx is cancelled. A failed send never stops the loop; the failure is
// recorded on the log row and the next recipient is attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID uint) error {
	campaign, err := d.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if campaign == nil {
		return fmt.Errorf("campaign %d not found", campaignID)
	}

	d.logger.Printf("campaign %d (%s): dispatch started", campaignID, campaign.Name)

	limiter := rate.NewLimiter(rate.Every(d.sendDelay), 1)
	if d.sendDelay <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	var sent, failed, stalledPages int
	for {
		logs, err := d.logRepo.ListPending(ctx, campaignID, d.batchSize)
		if err != nil {
			return fmt.Errorf("list pending logs: %w", err)
		}
		if len(logs) == 0 {
			return d.finish(ctx, campaignID, sent, failed)
		}

		persisted := 0
		for _, entry := range logs {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			delivered, recorded := d.sendOne(ctx, campaign, entry)
			if delivered {
				sent++
			} else {
				failed++
			}
			if recorded {
				persisted++
			}
		}

		// A page whose outcomes all failed to persist comes back verbatim
		// on the next fetch. Stop before re-sending to the same recipients
		// indefinitely.
		if persisted == 0 {
			stalledPages++
			if stalledPages >= maxStalledPages {
				return fmt.Errorf("campaign %d: no outcomes persisted across %d consecutive pages, stopping drain", campaignID, stalledPages)
			}
		} else {
			stalledPages = 0
		}
	}
}

// sendOne delivers a single template message and persists the outcome on
// the log row before the next recipient is touched. delivered reports a
// successful gateway send, recorded that the outcome reached the log row.
func (d *Dispatcher) sendOne(ctx context.Context, campaign *models.Campaign, entry *models.DispatchLog) (delivered, recorded bool) {
	params := d.resolveParams(ctx, campaign, entry)

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	started := time.Now()
	waMessageID, err := d.gateway.SendTemplateMessage(sendCtx, entry.PhoneNumber, campaign.TemplateName, campaign.TemplateLanguage, params)
	cancel()
	dispatchDurationSeconds.Observe(time.Since(started).Seconds())

	if err != nil {
		messagesDispatchedTotal.WithLabelValues("failed").Inc()
		d.logger.Printf("campaign %d: send to %s failed: %v", campaign.ID, entry.PhoneNumber, err)
		recorded = true
		if markErr := d.logRepo.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
			d.logger.Printf("campaign %d: log %d: record failure: %v", campaign.ID, entry.ID, markErr)
			recorded = false
		}
		return false, recorded
	}

	messagesDispatchedTotal.WithLabelValues("sent").Inc()
	recorded = true
	if markErr := d.logRepo.MarkSent(ctx, entry.ID, waMessageID); markErr != nil {
		d.logger.Printf("campaign %d: log %d: record send: %v", campaign.ID, entry.ID, markErr)
		recorded = false
	}
	d.recordOutbound(ctx, campaign, entry, waMessageID, params)
	return true, recorded
}

// resolveParams builds the template parameter list from the contact's
// current attributes. The phone number was snapshotted at materialization
// time but attributes are read fresh, so edits made while the campaign is
// draining are honored. A deleted contact yields empty parameters.
func (d *Dispatcher) resolveParams(ctx context.Context, campaign *models.Campaign, entry *models.DispatchLog) []string {
	if len(campaign.Variables) == 0 {
		return nil
	}

	contact, err := d.contactRepo.ByID(ctx, entry.ContactID)
	if err != nil {
		d.logger.Printf("campaign %d: contact %d: load attributes: %v", campaign.ID, entry.ContactID, err)
	}

	params := make([]string, len(campaign.Variables))
	if contact == nil {
		return params
	}
	for i, name := range campaign.Variables {
		params[i] = contact.Attribute(name)
	}
	return params
}

// recordOutbound appends the send to the message history. History is
// best-effort; a failure here never affects the dispatch log.
func (d *Dispatcher) recordOutbound(ctx context.Context, campaign *models.Campaign, entry *models.DispatchLog, waMessageID string, params []string) {
	content := campaign.TemplateName
	if len(params) > 0 {
		content = campaign.TemplateName + " [" + strings.Join(params, ", ") + "]"
	}
	msg := &models.Message{
		WAMessageID: &waMessageID,
		PhoneNumber: entry.PhoneNumber,
		Direction:   models.MessageDirectionOutbound,
		MessageType: "template",
		Content:     &content,
		Timestamp:   utils.UTCNow(),
	}
	if err := d.messageRepo.Save(ctx, msg); err != nil {
		d.logger.Printf("campaign %d: log %d: record message history: %v", campaign.ID, entry.ID, err)
	}
}

// finish transitions the campaign to completed once the pending queue is
// empty. An aborted campaign reaches here too (abort flips pending logs to
// paused, so the next page is empty); its sending->completed transition is
// no longer legal and the paused status is left untouched.
func (d *Dispatcher) finish(ctx context.Context, campaignID uint, sent, failed int) error {
	err := d.campaignRepo.UpdateStatus(ctx, campaignID, models.CampaignStatusCompleted)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidStateTransition) {
			d.logger.Printf("campaign %d: drain stopped, campaign no longer sending (sent=%d failed=%d)", campaignID, sent, failed)
			return nil
		}
		return fmt.Errorf("complete campaign: %w", err)
	}
	campaignsCompletedTotal.Inc()
	d.logger.Printf("campaign %d: dispatch completed (sent=%d failed=%d)", campaignID, sent, failed)
	return nil
}
