package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetTransitions(t *testing.T) {
	legal := []struct{ from, to TargetStatus }{
		{TargetStatusPending, TargetStatusEnriched},
		{TargetStatusPending, TargetStatusFailed},
		{TargetStatusEnriched, TargetStatusComplete},
		{TargetStatusEnriched, TargetStatusFailed},
	}
	for _, tc := range legal {
		assert.True(t, ValidTargetTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	illegal := []struct{ from, to TargetStatus }{
		{TargetStatusPending, TargetStatusComplete},
		{TargetStatusEnriched, TargetStatusPending},
		{TargetStatusComplete, TargetStatusEnriched},
		{TargetStatusComplete, TargetStatusFailed},
		{TargetStatusFailed, TargetStatusPending},
		{TargetStatusFailed, TargetStatusEnriched},
	}
	for _, tc := range illegal {
		assert.False(t, ValidTargetTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTargetTransitionSameStatusIsNoOp(t *testing.T) {
	for _, s := range []TargetStatus{TargetStatusPending, TargetStatusEnriched, TargetStatusComplete, TargetStatusFailed} {
		require.NoError(t, CheckTargetTransition(s, s))
	}
}

func TestCheckTargetTransitionError(t *testing.T) {
	err := CheckTargetTransition(TargetStatusComplete, TargetStatusPending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal target transition")
}

func TestSourceStatusSettled(t *testing.T) {
	assert.True(t, SourceStatusMined.Settled())
	assert.True(t, SourceStatusFailed.Settled())
	assert.False(t, SourceStatusPending.Settled())
	assert.False(t, SourceStatusProcessing.Settled())
}

func TestValidPretextStatus(t *testing.T) {
	assert.True(t, ValidPretextStatus(PretextStatusDraft))
	assert.True(t, ValidPretextStatus(PretextStatusApproved))
	assert.True(t, ValidPretextStatus(PretextStatusRejected))
	assert.False(t, ValidPretextStatus(PretextStatus("sent")))
}
