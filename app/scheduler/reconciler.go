package scheduler

import (
	"context"
	"fmt"

	"github.com/lmoretti/whatsflow/models"
	"github.com/lmoretti/whatsflow/repository"
)

// StatusReconciler folds delivery status events from the gateway webhook
// into the dispatch logs. Events arrive in no particular order and may be
// duplicated; the guarded update in the repository makes applying them
// idempotent and forward-only.
type StatusReconciler struct {
	logRepo repository.DispatchLogRepository
	logger  Logger
}

// NewStatusReconciler creates a reconciler over the dispatch log repository.
func NewStatusReconciler(logRepo repository.DispatchLogRepository, logger Logger) *StatusReconciler {
	return &StatusReconciler{logRepo: logRepo, logger: logger}
}

// gatewayStatuses maps the status strings the gateway emits to log statuses.
var gatewayStatuses = map[string]models.DispatchStatus{
	"sent":      models.DispatchStatusSent,
	"delivered": models.DispatchStatusDelivered,
	"read":      models.DispatchStatusRead,
	"failed":    models.DispatchStatusFailed,
}

// Apply records one status event. Unknown statuses and message ids with no
// matching log are skipped without error so a single odd event never makes
// the webhook endpoint reject a whole batch.
func (r *StatusReconciler) Apply(ctx context.Context, waMessageID, status string, errorDetail *string) error {
	newStatus, ok := gatewayStatuses[status]
	if !ok {
		statusEventsTotal.WithLabelValues(status, "unknown").Inc()
		r.logger.Printf("reconciler: message %s: unknown status %q skipped", waMessageID, status)
		return nil
	}
	if waMessageID == "" {
		statusEventsTotal.WithLabelValues(status, "skipped").Inc()
		return nil
	}

	advanced, err := r.logRepo.AdvanceByWAMessageID(ctx, waMessageID, newStatus, errorDetail)
	if err != nil {
		statusEventsTotal.WithLabelValues(status, "error").Inc()
		return fmt.Errorf("advance log for message %s: %w", waMessageID, err)
	}
	if !advanced {
		// either no log carries this id or the move was backward
		statusEventsTotal.WithLabelValues(status, "ignored").Inc()
		return nil
	}

	statusEventsTotal.WithLabelValues(status, "applied").Inc()
	return nil
}
