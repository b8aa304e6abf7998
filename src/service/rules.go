package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"dualauth-server/src/apperr"
	"dualauth-server/src/models"
)

// RuleInput is the writable part of a rule. Threshold is a pointer so a
// missing value can be told apart from zero.
type RuleInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Threshold   *decimal.Decimal `json:"threshold"`
	IsActive    bool             `json:"isActive"`
}

// Validate reports every missing or invalid field at once.
func (in RuleInput) Validate() error {
	details := map[string]any{}
	if strings.TrimSpace(in.Name) == "" {
		details["name"] = "required"
	}
	if strings.TrimSpace(in.Description) == "" {
		details["description"] = "required"
	}
	switch {
	case in.Threshold == nil:
		details["threshold"] = "required"
	case in.Threshold.IsNegative():
		details["threshold"] = "must be zero or greater"
	}
	if len(details) > 0 {
		return apperr.Validation("missing or invalid rule fields").WithDetails(details)
	}
	return nil
}

// RuleService is the rule store as seen by callers: ownership checks and
// input validation around the repository.
type RuleService struct {
	accounts AccountRepository
	rules    RuleRepository
	logger   *slog.Logger
}

func NewRuleService(store Store) *RuleService {
	return &RuleService{
		accounts: store,
		rules:    store,
		logger:   slog.Default().With("component", "rules"),
	}
}

// List returns the account's rules, newest first. Approvers may read them.
func (s *RuleService) List(ctx context.Context, userID int64, accountID string) ([]models.Rule, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	if _, _, err := requireMember(ctx, s.accounts, accountID, userID); err != nil {
		return nil, err
	}
	return s.rules.ListRules(ctx, accountID)
}

func (s *RuleService) Create(ctx context.Context, userID int64, accountID string, in RuleInput) (*models.Rule, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := requireOwner(ctx, s.accounts, accountID, userID); err != nil {
		return nil, err
	}

	rule, err := s.rules.CreateRule(ctx, &models.Rule{
		AccountID:   accountID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Threshold:   *in.Threshold,
		IsActive:    in.IsActive,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Created rule", "rule_id", rule.ID, "account_id", accountID, "active", rule.IsActive)
	return rule, nil
}

// Update changes name, description and threshold. The active flag is left
// alone.
func (s *RuleService) Update(ctx context.Context, userID int64, ruleID string, in RuleInput) (*models.Rule, error) {
	if ruleID == "" {
		return nil, apperr.Validation("ruleId is required")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if _, err := requireOwner(ctx, s.accounts, existing.AccountID, userID); err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(in.Name)
	existing.Description = strings.TrimSpace(in.Description)
	existing.Threshold = *in.Threshold
	rule, err := s.rules.UpdateRule(ctx, existing)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Updated rule", "rule_id", rule.ID, "account_id", rule.AccountID)
	return rule, nil
}

// SetActive activates or deactivates ruleID. Activation deactivates every
// other rule of the account in the same write.
func (s *RuleService) SetActive(ctx context.Context, userID int64, accountID, ruleID string, active bool) (*models.Rule, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	if ruleID == "" {
		return nil, apperr.Validation("ruleId is required")
	}
	if _, err := requireOwner(ctx, s.accounts, accountID, userID); err != nil {
		return nil, err
	}
	rule, err := s.rules.SetRuleActive(ctx, accountID, ruleID, active)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Set rule active flag", "rule_id", ruleID, "account_id", accountID, "active", active)
	return rule, nil
}

func (s *RuleService) Delete(ctx context.Context, userID int64, accountID, ruleID string) error {
	if err := requireAccountID(accountID); err != nil {
		return err
	}
	if ruleID == "" {
		return apperr.Validation("ruleId is required")
	}
	if _, err := requireOwner(ctx, s.accounts, accountID, userID); err != nil {
		return err
	}
	if err := s.rules.DeleteRule(ctx, accountID, ruleID); err != nil {
		return err
	}
	s.logger.Info("Deleted rule", "rule_id", ruleID, "account_id", accountID)
	return nil
}

// ActiveRule returns the account's active rule or nil. It always reads the
// store, so every server process sees a rule change as soon as it commits.
func (s *RuleService) ActiveRule(ctx context.Context, accountID string) (*models.Rule, error) {
	return s.rules.GetActiveRule(ctx, accountID)
}
