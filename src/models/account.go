package models

import "time"

// Role is the caller's relationship to an account.
type Role string

const (
	RolePrimary  Role = "primary"
	RoleApprover Role = "approver"
)

type Account struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Name        string    `json:"name"`
	Institution string    `json:"institution"`
	Approvers   []User    `json:"approvers"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ApproverIDs returns the current approver roster.
func (a *Account) ApproverIDs() []int64 {
	ids := make([]int64, 0, len(a.Approvers))
	for _, u := range a.Approvers {
		ids = append(ids, u.ID)
	}
	return ids
}

func (a *Account) IsApprover(userID int64) bool {
	for _, u := range a.Approvers {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// RoleOf reports how userID relates to the account; ok is false for strangers.
func (a *Account) RoleOf(userID int64) (role Role, ok bool) {
	if a.UserID == userID {
		return RolePrimary, true
	}
	if a.IsApprover(userID) {
		return RoleApprover, true
	}
	return "", false
}

// AccountSummary is an account as seen by one user.
type AccountSummary struct {
	Account
	UserRole Role `json:"userRole"`
}
