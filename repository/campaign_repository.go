package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lmoretti/whatsflow/models"
	"github.com/lmoretti/whatsflow/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidStateTransition is returned when a campaign status update is not
// a legal transition from the current status. Nothing is written.
var ErrInvalidStateTransition = errors.New("invalid campaign state transition")

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// inTx joins the caller's transaction when one travels in the context,
// otherwise opens a new one. Locking primitives must not begin a nested
// transaction on the bare connection.
func (r *CampaignRepositoryImpl) inTx(ctx context.Context, fn func(context.Context) error) error {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}
	return WithTransaction(ctx, r.DB, fn)
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.CampaignFilter{UUID: &parsedUUID}
	campaigns, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}

	if len(campaigns) == 0 {
		return nil, nil
	}

	return campaigns[0], nil
}

// UpdateStatus performs a guarded status transition. The campaign row is
// locked, the transition validated against the state machine, and the
// lifecycle timestamps stamped on entry into sending/completed.
func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, id uint, newStatus models.CampaignStatus) error {
	return r.inTx(ctx, func(txCtx context.Context) error {
		db := r.getDB(txCtx)

		var campaign models.Campaign
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("campaign %d not found", id)
			}
			return err
		}

		if !campaign.CanTransitionTo(newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, campaign.Status, newStatus)
		}

		now := utils.UTCNow()
		updates := map[string]any{
			"status":     newStatus,
			"updated_at": now,
		}
		switch newStatus {
		case models.CampaignStatusSending:
			if campaign.StartedAt == nil {
				updates["started_at"] = now
			}
		case models.CampaignStatusCompleted:
			if campaign.CompletedAt == nil {
				updates["completed_at"] = now
			}
		}

		return db.Model(&models.Campaign{}).Where("id = ?", id).Updates(updates).Error
	})
}

// UpdateScheduledAt stamps the scheduled time on a campaign
func (r *CampaignRepositoryImpl) UpdateScheduledAt(ctx context.Context, id uint, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"scheduled_at": at,
			"updated_at":   utils.UTCNow(),
		}).Error
}

// ClaimSending serializes the one truly racy transition (draft/scheduled ->
// sending). The row lock guarantees that of two racing callers only one
// observes a pre-sending status; the other returns false and must no-op.
func (r *CampaignRepositoryImpl) ClaimSending(ctx context.Context, id uint) (bool, error) {
	claimed := false
	err := r.inTx(ctx, func(txCtx context.Context) error {
		db := r.getDB(txCtx)

		var campaign models.Campaign
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("campaign %d not found", id)
			}
			return err
		}

		if campaign.Status != models.CampaignStatusDraft &&
			campaign.Status != models.CampaignStatusScheduled &&
			campaign.Status != models.CampaignStatusPaused {
			return nil // already claimed or terminal
		}

		now := utils.UTCNow()
		updates := map[string]any{
			"status":     models.CampaignStatusSending,
			"updated_at": now,
		}
		if campaign.StartedAt == nil {
			updates["started_at"] = now
		}
		if err := db.Model(&models.Campaign{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		claimed = true
		return nil
	})
	return claimed, err
}

// ListDueScheduledIDs selects due scheduled campaigns with FOR UPDATE SKIP
// LOCKED so a slow scheduler tick never double-reads a campaign another tick
// or a concurrent manual dispatch already holds.
func (r *CampaignRepositoryImpl) ListDueScheduledIDs(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := r.inTx(ctx, func(txCtx context.Context) error {
		db := r.getDB(txCtx)

		var campaigns []*models.Campaign
		query := db.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.CampaignStatusScheduled).
			Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", now).
			Order("scheduled_at ASC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		if err := query.Find(&campaigns).Error; err != nil {
			return err
		}

		for _, c := range campaigns {
			ids = append(ids, c.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		db = db.Where("name ILIKE ?", "%"+*filter.Name+"%")
	}
	if filter.TagName != nil {
		db = db.Where("tag_name = ?", *filter.TagName)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.ScheduledAfter != nil {
		db = db.Where("scheduled_at > ?", *filter.ScheduledAfter)
	}
	if filter.ScheduledBefore != nil {
		db = db.Where("scheduled_at < ?", *filter.ScheduledBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
