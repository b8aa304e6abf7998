package handlers

import (
	"net/http"

	"dualauth-server/src/service"
)

func ListAccounts(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		accounts, err := svc.List(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func CreateAccount(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req service.AccountInput
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		account, err := svc.Create(r.Context(), userID, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}

func GetAccount(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		details, err := svc.Get(r.Context(), userID, queryParam(r, "accountId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	}
}

func ListApprovers(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		approvers, err := svc.ListApprovers(r.Context(), userID, queryParam(r, "accountId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, approvers)
	}
}

func AddApprover(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req struct {
			Email string `json:"email"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		account, err := svc.AddApprover(r.Context(), userID, queryParam(r, "accountId"), req.Email)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func RemoveApprover(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		account, err := svc.RemoveApprover(r.Context(), userID, queryParam(r, "accountId"), queryParam(r, "approverId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func SyncAccount(svc *service.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		result, err := svc.SyncAccount(r.Context(), userID, queryParam(r, "accountId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
