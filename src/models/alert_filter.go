package models

import "time"

// Severity buckets an alert amount against its rule threshold.
type Severity string

const (
	SeverityAll    Severity = "all"
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// AlertFilter selects a page of alerts for one account.
type AlertFilter struct {
	StartDate time.Time
	EndDate   time.Time
	Search    string
	Severity  Severity
	Page      int
	Limit     int
}

// Offset is the number of matching rows skipped before the page.
func (f AlertFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Limit: limit, TotalPages: pages}
}
