package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCampaignStatusValid(t *testing.T) {
	valid := []CampaignStatus{
		CampaignStatusDraft,
		CampaignStatusScheduled,
		CampaignStatusSending,
		CampaignStatusCompleted,
		CampaignStatusFailed,
		CampaignStatusPaused,
	}
	for _, s := range valid {
		assert.True(t, s.Valid(), "expected %s to be valid", s)
	}

	assert.False(t, CampaignStatus("archived").Valid())
	assert.False(t, CampaignStatus("").Valid())
}

func TestCampaignCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    CampaignStatus
		to      CampaignStatus
		allowed bool
	}{
		{"draft to scheduled", CampaignStatusDraft, CampaignStatusScheduled, true},
		{"draft to sending", CampaignStatusDraft, CampaignStatusSending, true},
		{"draft to failed", CampaignStatusDraft, CampaignStatusFailed, true},
		{"draft to completed", CampaignStatusDraft, CampaignStatusCompleted, false},
		{"draft to paused", CampaignStatusDraft, CampaignStatusPaused, false},

		{"scheduled to sending", CampaignStatusScheduled, CampaignStatusSending, true},
		{"scheduled to failed", CampaignStatusScheduled, CampaignStatusFailed, true},
		{"scheduled back to draft", CampaignStatusScheduled, CampaignStatusDraft, true},
		{"scheduled to completed", CampaignStatusScheduled, CampaignStatusCompleted, false},

		{"sending to completed", CampaignStatusSending, CampaignStatusCompleted, true},
		{"sending to failed", CampaignStatusSending, CampaignStatusFailed, true},
		{"sending to paused", CampaignStatusSending, CampaignStatusPaused, true},
		{"sending back to draft", CampaignStatusSending, CampaignStatusDraft, false},
		{"sending back to scheduled", CampaignStatusSending, CampaignStatusScheduled, false},

		{"paused resumes to sending", CampaignStatusPaused, CampaignStatusSending, true},
		{"paused to completed", CampaignStatusPaused, CampaignStatusCompleted, false},
		{"paused to failed", CampaignStatusPaused, CampaignStatusFailed, false},

		{"completed is terminal", CampaignStatusCompleted, CampaignStatusSending, false},
		{"failed is terminal", CampaignStatusFailed, CampaignStatusSending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{Status: tt.from}
			assert.Equal(t, tt.allowed, c.CanTransitionTo(tt.to))
		})
	}
}

func TestCampaignCannotSelfTransition(t *testing.T) {
	for _, s := range []CampaignStatus{
		CampaignStatusDraft,
		CampaignStatusScheduled,
		CampaignStatusSending,
		CampaignStatusCompleted,
		CampaignStatusFailed,
		CampaignStatusPaused,
	} {
		c := &Campaign{Status: s}
		assert.False(t, c.CanTransitionTo(s), "self transition from %s should be rejected", s)
	}
}
