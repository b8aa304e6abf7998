package engine

import (
	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
)

// Decision is one approver's vote.
type Decision int

const (
	Approve Decision = iota
	Reject
)

func (d Decision) String() string {
	if d == Reject {
		return "reject"
	}
	return "approve"
}

// CastVote applies voter's decision to alert in place and recomputes the
// aggregate flags against the current roster.
//
// Quorum is unanimous in both directions: the alert is approved only once
// every rostered approver has approved, and rejected only once every one has
// rejected. An approve always clears isRejected and a reject always clears
// isApproved. Votes left by approvers no longer on the roster stay in the
// sets but never count, since quorum enumerates the roster.
func CastVote(alert *models.AlertTransaction, roster []int64, voter int64, d Decision) error {
	if !contains(roster, voter) {
		return apperr.Forbidden("user %d is not an approver for alert %s", voter, alert.ID)
	}
	if alert.ApprovedBy == nil {
		alert.ApprovedBy = models.NewVoteSet()
	}
	if alert.RejectedBy == nil {
		alert.RejectedBy = models.NewVoteSet()
	}

	switch d {
	case Approve:
		if alert.ApprovedBy.Has(voter) {
			return apperr.Conflict("user already approved this transaction")
		}
		alert.ApprovedBy.Add(voter)
		alert.RejectedBy.Remove(voter)
		alert.IsApproved = alert.ApprovedBy.ContainsAll(roster)
		alert.IsRejected = false
	case Reject:
		if alert.RejectedBy.Has(voter) {
			return apperr.Conflict("user already rejected this transaction")
		}
		alert.RejectedBy.Add(voter)
		alert.ApprovedBy.Remove(voter)
		alert.IsRejected = alert.RejectedBy.ContainsAll(roster)
		alert.IsApproved = false
	default:
		return apperr.Validation("unknown decision %d", d)
	}
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
