package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
	"dualauth-server/src/plaid"
	"dualauth-server/src/util"
)

// AccountInput creates an account with its initial approver roster.
type AccountInput struct {
	Name           string   `json:"name"`
	Institution    string   `json:"institution"`
	ApproverEmails []string `json:"approverEmails"`
}

// AccountDetails is an account as shown to one of its members.
type AccountDetails struct {
	models.AccountSummary
	BankAccount *models.BankAccount `json:"bankAccount"`
}

// AccountService manages accounts, approver rosters and bank linking.
type AccountService struct {
	store  Store
	linker plaid.Linker
	cipher TokenCipher
	logger *slog.Logger
}

func NewAccountService(store Store, linker plaid.Linker, cipher TokenCipher) *AccountService {
	return &AccountService{
		store:  store,
		linker: linker,
		cipher: cipher,
		logger: slog.Default().With("component", "accounts"),
	}
}

// EnsureUser records the authenticated user so they can own accounts and be
// named as an approver.
func (s *AccountService) EnsureUser(ctx context.Context, userID int64, email string) (*models.User, error) {
	if userID <= 0 {
		return nil, apperr.Auth("invalid user id")
	}
	email = util.NormalizeEmail(email)
	if !util.ValidateEmail(email) {
		return nil, apperr.Auth("session carries no valid email")
	}
	return s.store.UpsertUser(ctx, &models.User{ID: userID, Email: email})
}

// Profile returns the session user's record.
func (s *AccountService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// UpdateProfile sets the display name shown to co-approvers.
func (s *AccountService) UpdateProfile(ctx context.Context, userID int64, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Name = name
	return s.store.UpsertUser(ctx, u)
}

func (s *AccountService) Create(ctx context.Context, ownerID int64, in AccountInput) (*models.Account, error) {
	details := map[string]any{}
	if util.Blank(in.Name) {
		details["name"] = "required"
	}
	if util.Blank(in.Institution) {
		details["institution"] = "required"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("missing required account fields").WithDetails(details)
	}

	approverIDs := make([]int64, 0, len(in.ApproverEmails))
	for _, raw := range in.ApproverEmails {
		email := util.NormalizeEmail(raw)
		if !util.ValidateEmail(email) {
			return nil, apperr.Validation("invalid approver email %q", raw)
		}
		u, err := s.store.GetUserByEmail(ctx, email)
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation("approver %s is not a registered user", email)
		}
		if err != nil {
			return nil, err
		}
		if u.ID == ownerID {
			return nil, apperr.Validation("the account owner cannot be an approver")
		}
		approverIDs = append(approverIDs, u.ID)
	}

	acc, err := s.store.CreateAccount(ctx, &models.Account{
		UserID:      ownerID,
		Name:        strings.TrimSpace(in.Name),
		Institution: strings.TrimSpace(in.Institution),
	}, approverIDs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Created account", "account_id", acc.ID, "user_id", ownerID, "approvers", len(approverIDs))
	return acc, nil
}

func (s *AccountService) List(ctx context.Context, userID int64) ([]models.AccountSummary, error) {
	return s.store.ListAccountsForUser(ctx, userID)
}

func (s *AccountService) Get(ctx context.Context, userID int64, accountID string) (*AccountDetails, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	acc, role, err := requireMember(ctx, s.store, accountID, userID)
	if err != nil {
		return nil, err
	}
	details := &AccountDetails{AccountSummary: models.AccountSummary{Account: *acc, UserRole: role}}

	bank, err := s.store.GetBankAccountForAccount(ctx, accountID)
	switch {
	case err == nil:
		details.BankAccount = bank
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, err
	}
	return details, nil
}

func (s *AccountService) ListApprovers(ctx context.Context, userID int64, accountID string) ([]models.User, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	acc, _, err := requireMember(ctx, s.store, accountID, userID)
	if err != nil {
		return nil, err
	}
	return acc.Approvers, nil
}

// AddApprover puts the user with the given email on the roster.
func (s *AccountService) AddApprover(ctx context.Context, userID int64, accountID, email string) (*models.Account, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	email = util.NormalizeEmail(email)
	if !util.ValidateEmail(email) {
		return nil, apperr.Validation("a valid email is required")
	}
	if _, err := requireOwner(ctx, s.store, accountID, userID); err != nil {
		return nil, err
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddApprover(ctx, accountID, u.ID); err != nil {
		return nil, err
	}
	s.logger.Info("Added approver", "account_id", accountID, "approver_id", u.ID)
	return s.store.GetAccount(ctx, accountID)
}

func (s *AccountService) RemoveApprover(ctx context.Context, userID int64, accountID, approverID string) (*models.Account, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(approverID, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid approverId %q", approverID)
	}
	if _, err := requireOwner(ctx, s.store, accountID, userID); err != nil {
		return nil, err
	}
	if err := s.store.RemoveApprover(ctx, accountID, id); err != nil {
		return nil, err
	}
	s.logger.Info("Removed approver", "account_id", accountID, "approver_id", id)
	return s.store.GetAccount(ctx, accountID)
}

func (s *AccountService) CreateLinkToken(ctx context.Context, userID int64) (string, error) {
	return s.linker.CreateLinkToken(ctx, strconv.FormatInt(userID, 10))
}

// LinkBankAccount exchanges a Link public token and stores the encrypted
// credential. Re-linking replaces the previous credential and sync cursor.
func (s *AccountService) LinkBankAccount(ctx context.Context, userID int64, accountID, publicToken string) (*models.BankAccount, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	if util.Blank(publicToken) {
		return nil, apperr.Validation("public_token is required")
	}
	acc, err := requireOwner(ctx, s.store, accountID, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.linker.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}
	sealed, err := s.cipher.Encrypt(item.AccessToken)
	if err != nil {
		return nil, apperr.Internal(err, "encrypt access token")
	}

	name := item.AccountName
	if name == "" {
		name = acc.Name
	}
	bank, err := s.store.SaveBankAccount(ctx, &models.BankAccount{
		AccountID:      accountID,
		ItemID:         item.ItemID,
		AccessToken:    sealed,
		Name:           name,
		Institution:    acc.Institution,
		Mask:           item.Mask,
		CurrentBalance: item.CurrentBalance,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Linked bank account", "account_id", accountID, "bank_account_id", bank.ID, "item_id", bank.ItemID)
	return bank, nil
}
