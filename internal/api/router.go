package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/qrcharge-backend/internal/api/handlers"
	"github.com/baharkarakas/qrcharge-backend/internal/auth"
	"github.com/baharkarakas/qrcharge-backend/internal/config"
	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
	"github.com/baharkarakas/qrcharge-backend/internal/middleware"
	"github.com/baharkarakas/qrcharge-backend/internal/services"
)

type RouterDeps struct {
	Cfg config.Config
	Svc *services.Services
	TM  *auth.TokenManager
	Log *slog.Logger
	// Ready reports whether dependencies (the database) answer.
	Ready func(*http.Request) error
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	authn := middleware.NewAuthMiddleware(d.TM, d.Cfg.DevTokens)
	pay := &handlers.PaymentHandler{Svc: d.Svc, Log: d.Log}
	wal := &handlers.WalletHandler{Svc: d.Svc, Currency: d.Cfg.Currency}
	wd := &handlers.WithdrawalHandler{Svc: d.Svc}
	ah := &handlers.AuthHandler{TM: d.TM, Clients: auth.NewClients(d.Cfg.Clients), DevTokens: d.Cfg.DevTokens}

	r := chi.NewRouter()
	r.Use(chimw.RealIP, middleware.RequestID, middleware.Recover(d.Log), middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(req); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway webhook: no rate limit and no bearer auth.
		r.With(middleware.Signature(d.Cfg.WebhookSecret)).Post("/payments/callback", pay.Callback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.Cfg.RateRPS, d.Cfg.RateBurst))

			r.Post("/auth/token", ah.Token)
			r.Post("/auth/refresh", ah.Refresh)
			r.Get("/payments/sessions/{token}", pay.Session)

			r.Group(func(r chi.Router) {
				r.Use(authn.Auth)

				r.Post("/payments/initiate", pay.Initiate)
				r.With(middleware.RequireRole(auth.RoleAdmin, auth.RoleStation)).
					Post("/payments/sessions/{token}/activate", pay.Activate)
				r.With(middleware.RequireRole(auth.RoleAdmin, auth.RoleStation)).
					Post("/payments/sessions/{token}/complete", pay.Complete)

				r.Get("/wallets/me", wal.Me)
				r.Get("/wallets/me/entries", wal.Entries)
				r.Post("/wallets/me/topup", wal.TopUp)

				r.Post("/payout-methods", wd.AddPayoutMethod)
				r.Post("/withdrawals", wd.Request)
				r.Get("/withdrawals", wd.List)
				r.Get("/withdrawals/{id}", wd.Get)
				r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/withdrawals/{id}/resolve", wd.Resolve)
			})
		})
	})

	return r
}
