package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"dualauth-server/src/handlers"
	"dualauth-server/src/middleware"
	"dualauth-server/src/service"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Accounts *service.AccountService
	Rules    *service.RuleService
	Alerts   *service.AlertService
	Sync     *service.SyncService
	// Verifier checks Plaid webhook signatures; nil disables verification.
	Verifier handlers.WebhookVerifier
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	DemoMode       bool
	// Sessions skips re-provisioning users seen recently. Nil upserts on every request.
	Sessions middleware.SessionMemo
}

func NewRouter(svc Services, opts Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	r.Use(middleware.DemoModeMiddleware(opts.DemoMode))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
		r.Post("/plaid/webhook", handlers.PlaidWebhook(svc.Sync, svc.Verifier))

		// Protected routes
		r.With(
			middleware.JWTAuthMiddleware(opts.JWTSecret),
			middleware.ProvisionUserMiddleware(svc.Accounts, opts.Sessions),
		).Group(func(r chi.Router) {
			// User
			r.Get("/user", handlers.GetCurrentUser(svc.Accounts))
			r.Put("/user", handlers.UpdateCurrentUser(svc.Accounts))

			// Plaid
			r.Post("/plaid/create-link-token", handlers.CreateLinkToken(svc.Accounts))
			r.Post("/plaid/exchange-public-token", handlers.ExchangePublicToken(svc.Accounts))

			// Accounts
			r.Get("/accounts", handlers.ListAccounts(svc.Accounts))
			r.Post("/accounts", handlers.CreateAccount(svc.Accounts))
			r.Get("/accounts/details", handlers.GetAccount(svc.Accounts))
			r.Get("/accounts/approver", handlers.ListApprovers(svc.Accounts))
			r.Post("/accounts/approver", handlers.AddApprover(svc.Accounts))
			r.Delete("/accounts/approver", handlers.RemoveApprover(svc.Accounts))
			r.Post("/accounts/sync", handlers.SyncAccount(svc.Sync))

			// Rules
			r.Get("/rules", handlers.ListRules(svc.Rules))
			r.Post("/rules", handlers.CreateRule(svc.Rules))
			r.Put("/rules", handlers.UpdateRule(svc.Rules))
			r.Delete("/rules", handlers.DeleteRule(svc.Rules))
			r.Put("/rules/make-active", handlers.SetRuleActive(svc.Rules))

			// Alerts
			r.Get("/fraud-alert", handlers.ListAlerts(svc.Alerts))
			r.Get("/fraud-alert/unapproved", handlers.CountPendingAlerts(svc.Alerts))
			r.Get("/transactions/alert-transactions/{id}", handlers.GetAlert(svc.Alerts))
			r.Post("/transactions/alert-transactions/{id}/approve", handlers.ApproveAlert(svc.Alerts))
			r.Post("/transactions/alert-transactions/{id}/reject", handlers.RejectAlert(svc.Alerts))
		})
	})

	return r
}
