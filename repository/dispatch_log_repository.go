package repository

import (
	"context"

	"github.com/lmoretti/whatsflow/models"
	"github.com/lmoretti/whatsflow/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DispatchLogRepositoryImpl implements DispatchLogRepository
type DispatchLogRepositoryImpl struct {
	*BaseRepository[models.DispatchLog, models.DispatchLogFilter]
}

// NewDispatchLogRepository creates a new dispatch log repository
func NewDispatchLogRepository(db *gorm.DB) DispatchLogRepository {
	return &DispatchLogRepositoryImpl{BaseRepository: NewBaseRepository[models.DispatchLog, models.DispatchLogFilter](db)}
}

// BulkInsertPending materializes pending logs in batches. Conflicts on the
// (campaign_id, contact_id) unique constraint are silently skipped, which is
// what makes materialization safe to re-run.
func (r *DispatchLogRepositoryImpl) BulkInsertPending(ctx context.Context, logs []*models.DispatchLog) (int64, error) {
	if len(logs) == 0 {
		return 0, nil
	}

	db := r.getDB(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "contact_id"}},
		DoNothing: true,
	}).CreateInBatches(logs, 500)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListPending returns the next page of pending logs for a campaign in
// insertion order.
func (r *DispatchLogRepositoryImpl) ListPending(ctx context.Context, campaignID uint, limit int) ([]*models.DispatchLog, error) {
	db := r.getDB(ctx)

	var rows []*models.DispatchLog
	query := db.
		Where("campaign_id = ? AND status = ?", campaignID, models.DispatchStatusPending).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkSent records a successful send. Only a pending log can move to sent
// through this path; a log the reconciler already advanced keeps its status
// but still receives the gateway message id.
func (r *DispatchLogRepositoryImpl) MarkSent(ctx context.Context, logID uint, waMessageID string) error {
	db := r.getDB(ctx)
	res := db.Model(&models.DispatchLog{}).
		Where("id = ? AND status = ?", logID, models.DispatchStatusPending).
		Updates(map[string]any{
			"status":        models.DispatchStatusSent,
			"wa_message_id": waMessageID,
			"updated_at":    utils.UTCNow(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Log left pending already; just attach the message id so later
		// status events can correlate.
		return db.Model(&models.DispatchLog{}).
			Where("id = ? AND wa_message_id IS NULL", logID).
			Update("wa_message_id", waMessageID).Error
	}
	return nil
}

// MarkFailed records a failed send attempt with its error detail
func (r *DispatchLogRepositoryImpl) MarkFailed(ctx context.Context, logID uint, errorDetail string) error {
	db := r.getDB(ctx)
	return db.Model(&models.DispatchLog{}).
		Where("id = ? AND status = ?", logID, models.DispatchStatusPending).
		Updates(map[string]any{
			"status":       models.DispatchStatusFailed,
			"error_detail": errorDetail,
			"updated_at":   utils.UTCNow(),
		}).Error
}

// AdvanceByWAMessageID applies the forward-only rule as a single guarded
// UPDATE: the row is touched only when its current status is one that
// newStatus may legally overwrite. A zero row count means the event was
// either not campaign-relevant or a late out-of-order arrival.
func (r *DispatchLogRepositoryImpl) AdvanceByWAMessageID(ctx context.Context, waMessageID string, newStatus models.DispatchStatus, errorDetail *string) (bool, error) {
	overwritable := models.OverwritableBy(newStatus)
	if len(overwritable) == 0 {
		return false, nil
	}

	updates := map[string]any{
		"status":     newStatus,
		"updated_at": utils.UTCNow(),
	}
	if errorDetail != nil {
		updates["error_detail"] = *errorDetail
	}

	db := r.getDB(ctx)
	res := db.Model(&models.DispatchLog{}).
		Where("wa_message_id = ? AND status IN ?", waMessageID, overwritable).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PauseAllPending is the cooperative abort: once the campaign's pending logs
// are paused, the dispatcher's next page fetch comes back empty and its loop
// exits naturally. Logs already sent/delivered/read/failed are not touched.
func (r *DispatchLogRepositoryImpl) PauseAllPending(ctx context.Context, campaignID uint) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.DispatchLog{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.DispatchStatusPending).
		Updates(map[string]any{
			"status":     models.DispatchStatusPaused,
			"updated_at": utils.UTCNow(),
		})
	return res.RowsAffected, res.Error
}

// CountByStatus returns per-status log counts for a campaign
func (r *DispatchLogRepositoryImpl) CountByStatus(ctx context.Context, campaignID uint) (map[models.DispatchStatus]int64, error) {
	type row struct {
		Status models.DispatchStatus
		Total  int64
	}
	var rows []row

	db := r.getDB(ctx)
	if err := db.Model(&models.DispatchLog{}).
		Select("status, COUNT(*) AS total").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[models.DispatchStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

// ByFilter retrieves dispatch logs based on filter criteria
func (r *DispatchLogRepositoryImpl) ByFilter(ctx context.Context, filter models.DispatchLogFilter, orderBy string, limit, offset int) ([]*models.DispatchLog, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DispatchLog{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.DispatchLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of dispatch logs matching the filter
func (r *DispatchLogRepositoryImpl) Count(ctx context.Context, filter models.DispatchLogFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.DispatchLog{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DispatchLogRepositoryImpl) applyFilter(db *gorm.DB, f models.DispatchLogFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.ContactID != nil {
		db = db.Where("contact_id = ?", *f.ContactID)
	}
	if f.PhoneNumber != nil {
		db = db.Where("phone_number = ?", *f.PhoneNumber)
	}
	if f.WAMessageID != nil {
		db = db.Where("wa_message_id = ?", *f.WAMessageID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}
