// Package memory is an in-process Store. A single mutex serializes every
// write, which gives it the same atomicity the PostgreSQL store gets from
// transactions and row locks.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dualauth-server/src/apperr"
	"dualauth-server/src/engine"
	"dualauth-server/src/models"
)

type account struct {
	models.Account
	approvers []int64
}

type alertKey struct {
	bankAccountID string
	upstreamID    string
}

type Store struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time

	users        map[int64]*models.User
	accounts     map[string]*account
	rules        map[string]*models.Rule
	alerts       map[string]*models.AlertTransaction
	alertIndex   map[alertKey]string
	bankAccounts map[string]*models.BankAccount
}

func New() *Store {
	return &Store{
		now:          time.Now,
		users:        make(map[int64]*models.User),
		accounts:     make(map[string]*account),
		rules:        make(map[string]*models.Rule),
		alerts:       make(map[string]*models.AlertTransaction),
		alertIndex:   make(map[alertKey]string),
		bankAccounts: make(map[string]*models.BankAccount),
	}
}

// SetClock overrides the timestamp source for created_at values.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// stamp returns a creation time strictly after the previous one so that
// newest-first listings are stable. Must be called with mu held.
func (s *Store) stamp() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// Users

func (s *Store) UpsertUser(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	for id, u := range s.users {
		if id != user.ID && u.Email == email {
			return nil, apperr.Conflict("email %s belongs to another user", email)
		}
	}
	existing, ok := s.users[user.ID]
	if !ok {
		existing = &models.User{ID: user.ID, CreatedAt: s.stamp()}
		s.users[user.ID] = existing
	}
	existing.Email = email
	if user.Name != "" {
		existing.Name = user.Name
	}
	cp := *existing
	return &cp, nil
}

func (s *Store) GetUserByID(_ context.Context, userID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, apperr.NotFound("user %d not found", userID)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("no user with email %s", email)
}

// Accounts

func (s *Store) CreateAccount(_ context.Context, acc *models.Account, approverIDs []int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[acc.UserID]; !ok {
		return nil, apperr.NotFound("user %d not found", acc.UserID)
	}
	seen := make(map[int64]bool, len(approverIDs))
	roster := make([]int64, 0, len(approverIDs))
	for _, id := range approverIDs {
		if id == acc.UserID {
			return nil, apperr.Validation("the account owner cannot be an approver")
		}
		if _, ok := s.users[id]; !ok {
			return nil, apperr.Validation("approver %d does not exist", id)
		}
		if !seen[id] {
			seen[id] = true
			roster = append(roster, id)
		}
	}

	row := &account{Account: *acc, approvers: roster}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if _, exists := s.accounts[row.ID]; exists {
		return nil, apperr.Conflict("account %s already exists", row.ID)
	}
	row.CreatedAt = s.stamp()
	row.Approvers = nil
	s.accounts[row.ID] = row
	return s.loadAccount(row), nil
}

// loadAccount must be called with mu held.
func (s *Store) loadAccount(row *account) *models.Account {
	out := row.Account
	out.Approvers = make([]models.User, 0, len(row.approvers))
	for _, id := range row.approvers {
		if u, ok := s.users[id]; ok {
			out.Approvers = append(out.Approvers, *u)
		}
	}
	return &out
}

func (s *Store) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.accounts[accountID]
	if !ok {
		return nil, apperr.NotFound("account %s not found", accountID)
	}
	return s.loadAccount(row), nil
}

func (s *Store) ListAccountsForUser(_ context.Context, userID int64) ([]models.AccountSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AccountSummary, 0)
	for _, row := range s.accounts {
		acc := s.loadAccount(row)
		if role, ok := acc.RoleOf(userID); ok {
			out = append(out, models.AccountSummary{Account: *acc, UserRole: role})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddApprover(_ context.Context, accountID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.accounts[accountID]
	if !ok {
		return apperr.NotFound("account %s not found", accountID)
	}
	if _, ok := s.users[userID]; !ok {
		return apperr.NotFound("user %d not found", userID)
	}
	if row.UserID == userID {
		return apperr.Validation("the account owner cannot be an approver")
	}
	for _, id := range row.approvers {
		if id == userID {
			return apperr.Conflict("user is already an approver")
		}
	}
	row.approvers = append(row.approvers, userID)
	return nil
}

func (s *Store) RemoveApprover(_ context.Context, accountID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.accounts[accountID]
	if !ok {
		return apperr.NotFound("account %s not found", accountID)
	}
	for i, id := range row.approvers {
		if id == userID {
			row.approvers = append(row.approvers[:i:i], row.approvers[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("user %d is not an approver", userID)
}

// Rules

// deactivateOthers must be called with mu held.
func (s *Store) deactivateOthers(accountID, keepID string) {
	for id, r := range s.rules {
		if r.AccountID == accountID && id != keepID {
			r.IsActive = false
		}
	}
}

func (s *Store) CreateRule(_ context.Context, rule *models.Rule) (*models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[rule.AccountID]; !ok {
		return nil, apperr.NotFound("account %s not found", rule.AccountID)
	}
	r := *rule
	r.ID = uuid.NewString()
	r.CreatedAt = s.stamp()
	if r.IsActive {
		s.deactivateOthers(r.AccountID, r.ID)
	}
	s.rules[r.ID] = &r
	cp := r
	return &cp, nil
}

func (s *Store) GetRule(_ context.Context, ruleID string) (*models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return nil, apperr.NotFound("rule %s not found", ruleID)
	}
	cp := *r
	return &cp, nil
}

func (s *Store) SetRuleActive(_ context.Context, accountID, ruleID string, active bool) (*models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID]
	if !ok || r.AccountID != accountID {
		return nil, apperr.NotFound("rule %s not found for account %s", ruleID, accountID)
	}
	if active {
		s.deactivateOthers(accountID, ruleID)
	}
	r.IsActive = active
	cp := *r
	return &cp, nil
}

func (s *Store) UpdateRule(_ context.Context, rule *models.Rule) (*models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[rule.ID]
	if !ok || (rule.AccountID != "" && r.AccountID != rule.AccountID) {
		return nil, apperr.NotFound("rule %s not found", rule.ID)
	}
	r.Name = rule.Name
	r.Description = rule.Description
	r.Threshold = rule.Threshold
	cp := *r
	return &cp, nil
}

func (s *Store) DeleteRule(_ context.Context, accountID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID]
	if !ok || r.AccountID != accountID {
		return apperr.NotFound("rule %s not found for account %s", ruleID, accountID)
	}
	delete(s.rules, ruleID)
	for _, a := range s.alerts {
		if a.ViolatedRuleID != nil && *a.ViolatedRuleID == ruleID {
			a.ViolatedRuleID = nil
		}
	}
	return nil
}

func (s *Store) ListRules(_ context.Context, accountID string) ([]models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Rule, 0)
	for _, r := range s.rules {
		if r.AccountID == accountID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetActiveRule(_ context.Context, accountID string) (*models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.AccountID == accountID && r.IsActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

// Alerts

func cloneAlert(a *models.AlertTransaction) *models.AlertTransaction {
	cp := *a
	cp.ApprovedBy = a.ApprovedBy.Clone()
	cp.RejectedBy = a.RejectedBy.Clone()
	if a.ViolatedRuleID != nil {
		id := *a.ViolatedRuleID
		cp.ViolatedRuleID = &id
	}
	return &cp
}

func (s *Store) RecordAlertIfNew(_ context.Context, alert *models.AlertTransaction) (*models.AlertTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bankAccounts[alert.BankAccountID]; !ok {
		return nil, apperr.NotFound("bank account %s not found", alert.BankAccountID)
	}
	key := alertKey{bankAccountID: alert.BankAccountID, upstreamID: alert.UpstreamTransactionID}
	if _, exists := s.alertIndex[key]; exists {
		return nil, nil
	}

	a := cloneAlert(alert)
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.stamp()
	}
	s.alerts[a.ID] = a
	s.alertIndex[key] = a.ID
	return cloneAlert(a), nil
}

func (s *Store) GetAlert(_ context.Context, alertID string) (*models.AlertTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return nil, apperr.NotFound("alert %s not found", alertID)
	}
	return cloneAlert(a), nil
}

func (s *Store) ListAlerts(_ context.Context, accountID string, filter models.AlertFilter) ([]models.AlertTransaction, int, error) {
	s.mu.Lock()
	matched := make([]models.AlertTransaction, 0)
	for _, a := range s.alerts {
		if a.AccountID == accountID && engine.MatchesFilter(a, filter) {
			matched = append(matched, *cloneAlert(a))
		}
	}
	s.mu.Unlock()

	engine.SortAlerts(matched)
	total := len(matched)

	start := filter.Offset()
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < total {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (s *Store) CountPendingAlerts(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if a.AccountID == accountID && a.IsPending() {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateAlertVotes(_ context.Context, alertID string, mutate func(*models.AlertTransaction, []int64) error) (*models.AlertTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return nil, apperr.NotFound("alert %s not found", alertID)
	}
	row, ok := s.accounts[a.AccountID]
	if !ok {
		return nil, apperr.NotFound("account %s not found", a.AccountID)
	}

	working := cloneAlert(a)
	roster := append([]int64(nil), row.approvers...)
	if err := mutate(working, roster); err != nil {
		return nil, err
	}
	if working.IsApproved && working.IsRejected {
		return nil, apperr.Internal(nil, "alert %s cannot be both approved and rejected", alertID)
	}
	s.alerts[alertID] = working
	return cloneAlert(working), nil
}

// Bank accounts

func (s *Store) SaveBankAccount(_ context.Context, ba *models.BankAccount) (*models.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[ba.AccountID]; !ok {
		return nil, apperr.NotFound("account %s not found", ba.AccountID)
	}
	var existing *models.BankAccount
	for _, b := range s.bankAccounts {
		if b.ItemID == ba.ItemID && b.AccountID != ba.AccountID {
			return nil, apperr.Conflict("item %s is linked to another account", ba.ItemID)
		}
		if b.AccountID == ba.AccountID {
			existing = b
		}
	}

	saved := *ba
	saved.SyncCursor = ""
	if existing != nil {
		saved.ID = existing.ID
		saved.CreatedAt = existing.CreatedAt
	} else {
		saved.ID = uuid.NewString()
		saved.CreatedAt = s.stamp()
	}
	s.bankAccounts[saved.ID] = &saved
	cp := saved
	return &cp, nil
}

func (s *Store) GetBankAccount(_ context.Context, bankAccountID string) (*models.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bankAccounts[bankAccountID]
	if !ok {
		return nil, apperr.NotFound("bank account %s not found", bankAccountID)
	}
	cp := *b
	return &cp, nil
}

func (s *Store) GetBankAccountByItemID(_ context.Context, itemID string) (*models.BankAccount, error) {
	return s.findBankAccount(func(b *models.BankAccount) bool { return b.ItemID == itemID }, "item "+itemID)
}

func (s *Store) GetBankAccountForAccount(_ context.Context, accountID string) (*models.BankAccount, error) {
	return s.findBankAccount(func(b *models.BankAccount) bool { return b.AccountID == accountID }, "account "+accountID)
}

func (s *Store) findBankAccount(match func(*models.BankAccount) bool, what string) (*models.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bankAccounts {
		if match(b) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("no bank account linked for %s", what)
}

func (s *Store) UpdateSyncCursor(_ context.Context, bankAccountID, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bankAccounts[bankAccountID]
	if !ok {
		return apperr.NotFound("bank account %s not found", bankAccountID)
	}
	b.SyncCursor = cursor
	return nil
}
