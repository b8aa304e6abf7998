package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"dualauth-server/src/apperr"
	"dualauth-server/src/engine"
	"dualauth-server/src/models"
)

const (
	defaultPage      = 1
	defaultPageLimit = 10
	maxPageLimit     = 100
	defaultLookback  = 7 * 24 * time.Hour
)

// ListParams are the raw query parameters of an alert listing.
type ListParams struct {
	Search    string
	Severity  string
	StartDate string
	EndDate   string
	Page      string
	Limit     string
}

// AlertPage is one page of an account's alerts.
type AlertPage struct {
	Transactions []models.AlertTransaction `json:"transactions"`
	Pagination   models.Pagination         `json:"pagination"`
}

// AlertService serves the alert ledger and the approve/reject votes.
type AlertService struct {
	accounts AccountRepository
	alerts   AlertRepository
	now      func() time.Time
	logger   *slog.Logger
}

func NewAlertService(store Store) *AlertService {
	return &AlertService{
		accounts: store,
		alerts:   store,
		now:      time.Now,
		logger:   slog.Default().With("component", "alerts"),
	}
}

// parseDate accepts YYYY-MM-DD or RFC 3339. A bare date used as an end bound
// covers the whole day.
func parseDate(name, value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid %s %q", name, value).
			WithDetails(map[string]any{name: "expected YYYY-MM-DD or RFC 3339"})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parsePositive(name, value string, fallback int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, apperr.Validation("invalid %s %q", name, value).
			WithDetails(map[string]any{name: "must be an integer"})
	}
	if n < 1 {
		return fallback, nil
	}
	return n, nil
}

// Filter turns raw parameters into a filter, applying the defaults: page 1,
// 10 per page (at most 100) and the last seven days.
func (p ListParams) Filter(now time.Time) (models.AlertFilter, error) {
	var f models.AlertFilter
	var err error

	if f.Page, err = parsePositive("page", p.Page, defaultPage); err != nil {
		return f, err
	}
	if f.Limit, err = parsePositive("limit", p.Limit, defaultPageLimit); err != nil {
		return f, err
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}

	sev, err := engine.ParseSeverity(p.Severity)
	if err != nil {
		return f, apperr.Validation("%s", err.Error()).
			WithDetails(map[string]any{"severity": "one of all, high, medium, low"})
	}
	f.Severity = sev
	f.Search = strings.TrimSpace(p.Search)

	f.EndDate = now
	if p.EndDate != "" {
		if f.EndDate, err = parseDate("endDate", p.EndDate, true); err != nil {
			return f, err
		}
	}
	f.StartDate = f.EndDate.Add(-defaultLookback)
	if p.StartDate != "" {
		if f.StartDate, err = parseDate("startDate", p.StartDate, false); err != nil {
			return f, err
		}
	}
	if f.StartDate.After(f.EndDate) {
		return f, apperr.Validation("startDate must not be after endDate")
	}
	return f, nil
}

// List returns a filtered page of the account's alerts. Owner and approvers
// may read.
func (s *AlertService) List(ctx context.Context, userID int64, accountID string, params ListParams) (*AlertPage, error) {
	if err := requireAccountID(accountID); err != nil {
		return nil, err
	}
	filter, err := params.Filter(s.now())
	if err != nil {
		return nil, err
	}
	if _, _, err := requireMember(ctx, s.accounts, accountID, userID); err != nil {
		return nil, err
	}

	alerts, total, err := s.alerts.ListAlerts(ctx, accountID, filter)
	if err != nil {
		return nil, err
	}
	return &AlertPage{
		Transactions: alerts,
		Pagination:   models.NewPagination(total, filter.Page, filter.Limit),
	}, nil
}

func (s *AlertService) Get(ctx context.Context, userID int64, alertID string) (*models.AlertTransaction, error) {
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if _, _, err := requireMember(ctx, s.accounts, alert.AccountID, userID); err != nil {
		return nil, err
	}
	return alert, nil
}

// CountPending is the number of alerts neither approved nor rejected.
func (s *AlertService) CountPending(ctx context.Context, userID int64, accountID string) (int, error) {
	if err := requireAccountID(accountID); err != nil {
		return 0, err
	}
	if _, _, err := requireMember(ctx, s.accounts, accountID, userID); err != nil {
		return 0, err
	}
	return s.alerts.CountPendingAlerts(ctx, accountID)
}

func (s *AlertService) Approve(ctx context.Context, userID int64, alertID string) (*models.AlertTransaction, error) {
	return s.vote(ctx, userID, alertID, engine.Approve)
}

func (s *AlertService) Reject(ctx context.Context, userID int64, alertID string) (*models.AlertTransaction, error) {
	return s.vote(ctx, userID, alertID, engine.Reject)
}

func (s *AlertService) vote(ctx context.Context, userID int64, alertID string, d engine.Decision) (*models.AlertTransaction, error) {
	if alertID == "" {
		return nil, apperr.Validation("alert id is required")
	}
	alert, err := s.alerts.UpdateAlertVotes(ctx, alertID, func(a *models.AlertTransaction, roster []int64) error {
		return engine.CastVote(a, roster, userID, d)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Recorded vote",
		"alert_id", alertID,
		"user_id", userID,
		"decision", d.String(),
		"status", alert.Status())
	return alert, nil
}
