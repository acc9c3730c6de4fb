// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/lmoretti/whatsflow/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// CampaignRepository defines operations for campaigns, including the two
// row-locking primitives the dispatch engine's correctness depends on.
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	// UpdateStatus performs a guarded transition: the current status must be
	// a legal predecessor of newStatus or ErrInvalidStateTransition is
	// returned and nothing is written. started_at/completed_at are stamped
	// on entry into sending/completed respectively.
	UpdateStatus(ctx context.Context, id uint, newStatus models.CampaignStatus) error
	// UpdateScheduledAt stamps the scheduled time on a campaign
	UpdateScheduledAt(ctx context.Context, id uint, at time.Time) error
	// ClaimSending locks the campaign row (SELECT ... FOR UPDATE), verifies
	// the status is still draft or scheduled, and flips it to sending.
	// Returns false when another caller already claimed the campaign.
	ClaimSending(ctx context.Context, id uint) (bool, error)
	// ListDueScheduledIDs returns ids of scheduled campaigns whose
	// scheduled_at is due, skipping rows locked by a concurrent claimer
	// (FOR UPDATE SKIP LOCKED).
	ListDueScheduledIDs(ctx context.Context, now time.Time, limit int) ([]uint, error)
}

// DispatchLogRepository defines operations for dispatch logs
type DispatchLogRepository interface {
	Repository[models.DispatchLog, models.DispatchLogFilter]
	// BulkInsertPending inserts pending logs, silently skipping rows that
	// violate the (campaign_id, contact_id) unique constraint. Returns the
	// number of rows actually inserted.
	BulkInsertPending(ctx context.Context, logs []*models.DispatchLog) (int64, error)
	// ListPending returns the next bounded page of pending logs for a campaign
	ListPending(ctx context.Context, campaignID uint, limit int) ([]*models.DispatchLog, error)
	// MarkSent records a successful gateway send along with the returned message id
	MarkSent(ctx context.Context, logID uint, waMessageID string) error
	// MarkFailed records a failed send attempt with its error detail
	MarkFailed(ctx context.Context, logID uint, errorDetail string) error
	// AdvanceByWAMessageID applies newStatus to the log carrying the gateway
	// message id only if it is a forward move. Returns false when no log
	// matched or the move was ignored.
	AdvanceByWAMessageID(ctx context.Context, waMessageID string, newStatus models.DispatchStatus, errorDetail *string) (bool, error)
	// PauseAllPending bulk-updates a campaign's still-pending logs to paused
	PauseAllPending(ctx context.Context, campaignID uint) (int64, error)
	// CountByStatus returns per-status log counts for a campaign
	CountByStatus(ctx context.Context, campaignID uint) (map[models.DispatchStatus]int64, error)
}

// ContactRepository defines read-only operations for contacts and tags
type ContactRepository interface {
	ByID(ctx context.Context, id uint) (*models.Contact, error)
	// ListByTag resolves the audience: every contact currently carrying the
	// active tag with the given name.
	ListByTag(ctx context.Context, tagName string) ([]*models.Contact, error)
}

// MessageRepository defines operations for the message history
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	ByWAMessageID(ctx context.Context, waMessageID string) (*models.Message, error)
}
