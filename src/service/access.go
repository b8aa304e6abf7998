package service

import (
	"context"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
)

// requireOwner loads the account and checks userID is its primary user.
// Strangers get Forbidden, which the HTTP layer reports as not found.
func requireOwner(ctx context.Context, accounts AccountRepository, accountID string, userID int64) (*models.Account, error) {
	acc, err := accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.UserID != userID {
		return nil, apperr.Forbidden("user %d does not own account %s", userID, accountID)
	}
	return acc, nil
}

// requireMember loads the account and checks userID is its owner or one of
// its approvers.
func requireMember(ctx context.Context, accounts AccountRepository, accountID string, userID int64) (*models.Account, models.Role, error) {
	acc, err := accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	role, ok := acc.RoleOf(userID)
	if !ok {
		return nil, "", apperr.Forbidden("user %d has no access to account %s", userID, accountID)
	}
	return acc, role, nil
}

func requireAccountID(accountID string) error {
	if accountID == "" {
		return apperr.Validation("accountId is required")
	}
	return nil
}
