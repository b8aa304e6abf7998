package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
)

const (
	alice int64 = 1
	bob   int64 = 2
	carol int64 = 3
	dave  int64 = 4
)

func pendingAlert() *models.AlertTransaction {
	return &models.AlertTransaction{
		ID:         "alert-1",
		ApprovedBy: models.NewVoteSet(),
		RejectedBy: models.NewVoteSet(),
	}
}

func TestCastVote_UnanimousApprovalInAnyOrder(t *testing.T) {
	roster := []int64{alice, bob, carol}
	orders := [][]int64{
		{alice, bob, carol},
		{carol, alice, bob},
		{bob, carol, alice},
	}
	for _, order := range orders {
		alert := pendingAlert()
		for i, voter := range order {
			require.NoError(t, CastVote(alert, roster, voter, Approve))
			if i < len(order)-1 {
				assert.False(t, alert.IsApproved, "proper subset %v must not approve", order[:i+1])
			}
		}
		assert.True(t, alert.IsApproved)
		assert.False(t, alert.IsRejected)
		assert.Equal(t, models.AlertApproved, alert.Status())
	}
}

func TestCastVote_SingleApprover(t *testing.T) {
	alert := pendingAlert()
	require.NoError(t, CastVote(alert, []int64{alice}, alice, Approve))
	assert.True(t, alert.IsApproved)
}

func TestCastVote_VoteExclusivity(t *testing.T) {
	roster := []int64{alice, bob}
	alert := pendingAlert()

	require.NoError(t, CastVote(alert, roster, alice, Approve))
	require.NoError(t, CastVote(alert, roster, alice, Reject))
	assert.False(t, alert.ApprovedBy.Has(alice))
	assert.True(t, alert.RejectedBy.Has(alice))

	require.NoError(t, CastVote(alert, roster, alice, Approve))
	assert.True(t, alert.ApprovedBy.Has(alice))
	assert.False(t, alert.RejectedBy.Has(alice))
	assert.False(t, alert.IsApproved && alert.IsRejected)
}

func TestCastVote_SingleRejectDoesNotTerminate(t *testing.T) {
	roster := []int64{alice, bob}
	alert := pendingAlert()

	require.NoError(t, CastVote(alert, roster, alice, Reject))
	assert.False(t, alert.IsRejected)
	assert.True(t, alert.IsPending())

	require.NoError(t, CastVote(alert, roster, bob, Reject))
	assert.True(t, alert.IsRejected)
	assert.False(t, alert.IsApproved)
}

func TestCastVote_FlipMovesAggregateBack(t *testing.T) {
	roster := []int64{alice, bob}
	alert := pendingAlert()
	require.NoError(t, CastVote(alert, roster, alice, Approve))
	require.NoError(t, CastVote(alert, roster, bob, Approve))
	require.True(t, alert.IsApproved)

	require.NoError(t, CastVote(alert, roster, bob, Reject))
	assert.False(t, alert.IsApproved)
	assert.False(t, alert.IsRejected)
	assert.Equal(t, models.AlertPending, alert.Status())
}

func TestCastVote_DuplicateVoteIsConflict(t *testing.T) {
	roster := []int64{alice, bob}
	alert := pendingAlert()
	require.NoError(t, CastVote(alert, roster, alice, Approve))

	err := CastVote(alert, roster, alice, Approve)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, CastVote(alert, roster, bob, Reject))
	err = CastVote(alert, roster, bob, Reject)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCastVote_NonApproverForbidden(t *testing.T) {
	alert := pendingAlert()
	err := CastVote(alert, []int64{alice, bob}, dave, Approve)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Empty(t, alert.ApprovedBy)
}

func TestCastVote_RosterShrinkIgnoresStaleVotes(t *testing.T) {
	alert := pendingAlert()
	require.NoError(t, CastVote(alert, []int64{alice, bob, carol}, carol, Reject))
	require.NoError(t, CastVote(alert, []int64{alice, bob, carol}, alice, Approve))

	// carol is removed from the roster; her stale reject no longer matters.
	require.NoError(t, CastVote(alert, []int64{alice, bob}, bob, Approve))
	assert.True(t, alert.IsApproved)
	assert.True(t, alert.RejectedBy.Has(carol))
}

func TestCastVote_RosterGrowthRequiresNewApprover(t *testing.T) {
	alert := pendingAlert()
	require.NoError(t, CastVote(alert, []int64{alice}, alice, Reject))
	require.NoError(t, CastVote(alert, []int64{alice, bob}, bob, Approve))
	assert.False(t, alert.IsApproved)
	require.NoError(t, CastVote(alert, []int64{alice, bob}, alice, Approve))
	assert.True(t, alert.IsApproved)
}
