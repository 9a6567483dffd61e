package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dayshift/backend/internal/auth"
	"github.com/dayshift/backend/internal/bookings"
	"github.com/dayshift/backend/internal/compliance"
	"github.com/dayshift/backend/internal/disputes"
	"github.com/dayshift/backend/internal/handlers"
	"github.com/dayshift/backend/internal/ledger"
	"github.com/dayshift/backend/internal/release"
	"github.com/dayshift/backend/internal/router"
)

type routeDeps struct {
	pool       *pgxpool.Pool
	auth       auth.Service
	bookings   *bookings.Service
	scheduler  *release.Scheduler
	disputes   *disputes.Service
	compliance *compliance.Service
	ledger     *ledger.Service
	logger     *slog.Logger
}

// RegisterRoutes mounts the API under /api/, plus /metrics and /healthz.
func RegisterRoutes(mux *http.ServeMux, d routeDeps) {
	api := router.New(router.Handlers{
		Auth:       auth.NewHandler(d.auth, d.logger),
		Bookings:   &handlers.BookingHandler{Bookings: d.bookings, Releases: d.scheduler, Logger: d.logger},
		Disputes:   &handlers.DisputeHandler{Disputes: d.disputes, Logger: d.logger},
		Compliance: &handlers.ComplianceHandler{Compliance: d.compliance, Logger: d.logger},
		Wallets:    &handlers.WalletHandler{Ledger: d.ledger, Logger: d.logger},
	}, d.auth)

	mux.Handle("/api/", api)
	mux.Handle("GET /metrics", promhttp.Handler())

	// GET /healthz: database reachability
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.pool.Ping(ctx); err != nil {
			d.logger.Warn("health check failed", "error", err)
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
}
