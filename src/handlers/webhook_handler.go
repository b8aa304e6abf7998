package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"dualauth-server/src/apperr"
	"dualauth-server/src/service"
)

// WebhookVerifier authenticates a webhook body against its headers.
type WebhookVerifier interface {
	Verify(ctx context.Context, body []byte, headers http.Header) error
}

type plaidWebhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

var syncWebhookCodes = map[string]bool{
	"SYNC_UPDATES_AVAILABLE": true,
	"DEFAULT_UPDATE":         true,
	"INITIAL_UPDATE":         true,
	"HISTORICAL_UPDATE":      true,
}

// PlaidWebhook runs a transactions sync for the item named in a
// TRANSACTIONS webhook. verifier may be nil, which skips signature checks.
func PlaidWebhook(svc *service.SyncService, verifier WebhookVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, apperr.Validation("unable to read webhook body"))
			return
		}

		if verifier != nil {
			if err := verifier.Verify(r.Context(), body, r.Header); err != nil {
				slog.Warn("Rejected unverified webhook", "error", err)
				writeError(w, r, apperr.Auth("webhook verification failed"))
				return
			}
		}

		var hook plaidWebhook
		if err := json.Unmarshal(body, &hook); err != nil {
			writeError(w, r, apperr.Validation("invalid webhook payload"))
			return
		}

		logger := slog.With("webhook_type", hook.WebhookType, "webhook_code", hook.WebhookCode, "item_id", hook.ItemID)
		if hook.WebhookType != "TRANSACTIONS" || !syncWebhookCodes[hook.WebhookCode] {
			logger.Debug("Ignoring webhook")
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		result, err := svc.SyncItem(r.Context(), hook.ItemID)
		if err != nil {
			logger.Warn("Webhook sync failed", "error", err)
			writeError(w, r, err)
			return
		}
		logger.Info("Webhook sync complete", "flagged", result.Flagged, "pages", result.Pages)
		writeJSON(w, http.StatusOK, map[string]any{"status": "synced", "result": result})
	}
}
