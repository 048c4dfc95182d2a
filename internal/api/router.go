package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atmx/adledger/internal/auth"
	"github.com/atmx/adledger/internal/events"
	"github.com/atmx/adledger/internal/metrics"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Hub serves GET /api/v1/ws when set.
	Hub *events.Hub
	// RequestLog enables chi's request logger.
	RequestLog bool
	// Timeout bounds each request; zero means 30s.
	Timeout time.Duration
}

// NewRouter builds the full HTTP surface of the ledger service.
func NewRouter(h *Handler, authn auth.Authenticator, opts RouterOptions) http.Handler {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	if opts.RequestLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"adledger"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(authn))

		// WebSocket endpoint for the live event feed. Registered before the
		// timeout middleware so long-lived connections are not cut.
		if opts.Hub != nil {
			r.Get("/ws", opts.Hub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(opts.Timeout))

			r.Post("/initialize", h.Initialize)
			r.Get("/name", h.GetName)
			r.Get("/access", h.GetAccess)

			// Participants.
			r.Post("/register", h.Register)
			r.Get("/registered/{address}", h.IsRegistered)

			// Bids and settlement.
			r.Get("/bids", h.ListBids)
			r.Post("/bids", h.PlaceBid)
			r.Get("/bids/{bidID}", h.GetBid)
			r.Post("/bids/{bidID}/settle", h.Settle)

			// Balances.
			r.Post("/withdrawals", h.Withdraw)
			r.Get("/balance", h.GetTotalBalance)
			r.Get("/balances/{address}", h.GetBalance)

			// Administration.
			r.Put("/trusted-service", h.SetTrustedService)
			r.Put("/owner", h.TransferOwnership)

			r.Get("/events", h.ListEvents)
		})
	})

	return r
}

// cors allows browser clients from any origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, X-Caller, X-Public-Key, X-Signature, X-Timestamp")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
