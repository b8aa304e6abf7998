package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dualauth-server/src/models"
	"dualauth-server/src/service"
)

func ListAlerts(svc *service.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		params := service.ListParams{
			Search:    q.Get("search"),
			Severity:  q.Get("severity"),
			StartDate: q.Get("startDate"),
			EndDate:   q.Get("endDate"),
			Page:      q.Get("page"),
			Limit:     q.Get("limit"),
		}
		page, err := svc.List(r.Context(), userID, q.Get("accountId"), params)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func CountPendingAlerts(svc *service.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		count, err := svc.CountPending(r.Context(), userID, queryParam(r, "accountId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": count})
	}
}

func GetAlert(svc *service.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		alert, err := svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, alert)
	}
}

func ApproveAlert(svc *service.AlertService) http.HandlerFunc {
	return castVote(svc.Approve)
}

func RejectAlert(svc *service.AlertService) http.HandlerFunc {
	return castVote(svc.Reject)
}

type voteFunc func(ctx context.Context, userID int64, alertID string) (*models.AlertTransaction, error)

func castVote(vote voteFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		alert, err := vote(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, alert)
	}
}
