package scheduler

import (
	"context"
	"testing"

	"github.com/lmoretti/whatsflow/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSentLog(t *testing.T, logRepo *fakeLogRepo, campaignID uint, waMessageID string) {
	t.Helper()
	logRepo.seedPending(campaignID, "+5491111111111")
	require.NoError(t, logRepo.MarkSent(context.Background(), 1, waMessageID))
}

func TestReconcilerAppliesForwardMoves(t *testing.T) {
	logRepo := newFakeLogRepo()
	seedSentLog(t, logRepo, 1, "wamid.1")
	r := NewStatusReconciler(logRepo, testLogger{})

	require.NoError(t, r.Apply(context.Background(), "wamid.1", "delivered", nil))
	assert.Equal(t, models.DispatchStatusDelivered, logRepo.statusOf(1))

	require.NoError(t, r.Apply(context.Background(), "wamid.1", "read", nil))
	assert.Equal(t, models.DispatchStatusRead, logRepo.statusOf(1))
}

func TestReconcilerIgnoresBackwardMoves(t *testing.T) {
	logRepo := newFakeLogRepo()
	seedSentLog(t, logRepo, 1, "wamid.1")
	r := NewStatusReconciler(logRepo, testLogger{})

	require.NoError(t, r.Apply(context.Background(), "wamid.1", "read", nil))

	// late delivered event after read must not regress the log
	require.NoError(t, r.Apply(context.Background(), "wamid.1", "delivered", nil))
	assert.Equal(t, models.DispatchStatusRead, logRepo.statusOf(1))

	// and a late failure never overwrites read
	require.NoError(t, r.Apply(context.Background(), "wamid.1", "failed", nil))
	assert.Equal(t, models.DispatchStatusRead, logRepo.statusOf(1))
}

func TestReconcilerDuplicateEventIsIdempotent(t *testing.T) {
	logRepo := newFakeLogRepo()
	seedSentLog(t, logRepo, 1, "wamid.1")
	r := NewStatusReconciler(logRepo, testLogger{})

	require.NoError(t, r.Apply(context.Background(), "wamid.1", "delivered", nil))
	require.NoError(t, r.Apply(context.Background(), "wamid.1", "delivered", nil))
	assert.Equal(t, models.DispatchStatusDelivered, logRepo.statusOf(1))
}

func TestReconcilerRecordsFailureDetail(t *testing.T) {
	logRepo := newFakeLogRepo()
	seedSentLog(t, logRepo, 1, "wamid.1")
	r := NewStatusReconciler(logRepo, testLogger{})

	detail := "131026 Message undeliverable"
	require.NoError(t, r.Apply(context.Background(), "wamid.1", "failed", &detail))

	entry, err := logRepo.ByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.DispatchStatusFailed, entry.Status)
	require.NotNil(t, entry.ErrorDetail)
	assert.Equal(t, detail, *entry.ErrorDetail)
}

func TestReconcilerSkipsUnknownStatusAndMessageID(t *testing.T) {
	logRepo := newFakeLogRepo()
	seedSentLog(t, logRepo, 1, "wamid.1")
	r := NewStatusReconciler(logRepo, testLogger{})

	assert.NoError(t, r.Apply(context.Background(), "wamid.1", "warmed_up", nil))
	assert.NoError(t, r.Apply(context.Background(), "wamid.unknown", "delivered", nil))
	assert.NoError(t, r.Apply(context.Background(), "", "delivered", nil))
	assert.Equal(t, models.DispatchStatusSent, logRepo.statusOf(1))
}
