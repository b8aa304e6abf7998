package handlers

import (
	"net/http"

	"dualauth-server/src/service"
)

func CreateLinkToken(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		token, err := svc.CreateLinkToken(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"link_token": token})
	}
}

func ExchangePublicToken(svc *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req struct {
			PublicToken string `json:"public_token"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		bank, err := svc.LinkBankAccount(r.Context(), userID, queryParam(r, "accountId"), req.PublicToken)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, bank)
	}
}
