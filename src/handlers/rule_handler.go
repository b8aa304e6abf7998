package handlers

import (
	"net/http"

	"dualauth-server/src/apperr"
	"dualauth-server/src/service"
)

func ListRules(svc *service.RuleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rules, err := svc.List(r.Context(), userID, queryParam(r, "accountId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rules)
	}
}

func CreateRule(svc *service.RuleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req service.RuleInput
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		created, err := svc.Create(r.Context(), userID, queryParam(r, "accountId"), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func UpdateRule(svc *service.RuleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req service.RuleInput
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		updated, err := svc.Update(r.Context(), userID, queryParam(r, "ruleId"), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func SetRuleActive(svc *service.RuleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req struct {
			IsActive *bool `json:"isActive"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.IsActive == nil {
			writeError(w, r, apperr.Validation("isActive is required"))
			return
		}
		rule, err := svc.SetActive(r.Context(), userID, queryParam(r, "accountId"), queryParam(r, "ruleId"), *req.IsActive)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

func DeleteRule(svc *service.RuleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := svc.Delete(r.Context(), userID, queryParam(r, "accountId"), queryParam(r, "ruleId")); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
