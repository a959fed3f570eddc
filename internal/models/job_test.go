package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{name: "pending to active", from: JobStatusPending, to: JobStatusActive, allowed: true},
		{name: "pending to failed", from: JobStatusPending, to: JobStatusFailed, allowed: true},
		{name: "pending to cancelled", from: JobStatusPending, to: JobStatusCancelled, allowed: true},
		{name: "pending to completed skips active", from: JobStatusPending, to: JobStatusCompleted, allowed: false},
		{name: "active to completed", from: JobStatusActive, to: JobStatusCompleted, allowed: true},
		{name: "active to failed", from: JobStatusActive, to: JobStatusFailed, allowed: true},
		{name: "active to cancelled", from: JobStatusActive, to: JobStatusCancelled, allowed: true},
		{name: "active back to pending", from: JobStatusActive, to: JobStatusPending, allowed: false},
		{name: "completed is terminal", from: JobStatusCompleted, to: JobStatusActive, allowed: false},
		{name: "cancelled is terminal", from: JobStatusCancelled, to: JobStatusCompleted, allowed: false},
		{name: "failed is terminal", from: JobStatusFailed, to: JobStatusActive, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPriorStatuses(t *testing.T) {
	require.ElementsMatch(t, []JobStatus{JobStatusActive}, PriorStatuses(JobStatusCompleted))
	require.ElementsMatch(t, []JobStatus{JobStatusPending}, PriorStatuses(JobStatusActive))
	require.ElementsMatch(t, []JobStatus{JobStatusPending, JobStatusActive}, PriorStatuses(JobStatusFailed))
	require.ElementsMatch(t, []JobStatus{JobStatusPending, JobStatusActive}, PriorStatuses(JobStatusCancelled))
	require.Empty(t, PriorStatuses(JobStatusPending))
}

func TestTerminal(t *testing.T) {
	require.False(t, JobStatusPending.Terminal())
	require.False(t, JobStatusActive.Terminal())
	require.True(t, JobStatusCompleted.Terminal())
	require.True(t, JobStatusFailed.Terminal())
	require.True(t, JobStatusCancelled.Terminal())
}

func TestJobTypeValid(t *testing.T) {
	require.True(t, JobTypeMaterialEnhance.Valid())
	require.True(t, JobTypeTemplateRender.Valid())
	require.False(t, JobType("FROBNICATE").Valid())
	require.False(t, JobType("").Valid())
}
