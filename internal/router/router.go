package router

import (
	"net/http"
	"strconv"

	"github.com/dayshift/backend/internal/auth"
	"github.com/dayshift/backend/internal/handlers"
	"github.com/dayshift/backend/internal/metrics"
	"github.com/dayshift/backend/internal/middleware"
)

// Handlers groups the endpoint handlers served under /api/v1.
type Handlers struct {
	Auth       *auth.Handler
	Bookings   *handlers.BookingHandler
	Disputes   *handlers.DisputeHandler
	Compliance *handlers.ComplianceHandler
	Wallets    *handlers.WalletHandler
}

// New returns an http.Handler that serves API under /api/v1.
func New(h Handlers, tokens middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.BearerAuth(tokens)
	worker := chain(authed, middleware.RequireRole(auth.RoleWorker))
	business := chain(authed, middleware.RequireRole(auth.RoleBusiness))
	party := chain(authed, middleware.RequireRole(auth.RoleWorker, auth.RoleBusiness))
	admin := chain(authed, middleware.RequireRole(auth.RoleAdmin))
	anyone := chain(authed, middleware.RequireRole(auth.RoleWorker, auth.RoleBusiness, auth.RoleAdmin))

	route := func(pattern string, wrap func(http.Handler) http.Handler, fn http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, wrap(fn)))
	}
	open := func(next http.Handler) http.Handler { return next }

	route("POST "+base+"/auth/register", open, h.Auth.Register)
	route("POST "+base+"/auth/login", open, h.Auth.Login)

	route("POST "+base+"/jobs/{id}/apply", worker, h.Bookings.Apply)
	route("GET "+base+"/bookings/{id}", anyone, h.Bookings.Get)
	route("POST "+base+"/bookings/{id}/accept", business, h.Bookings.Accept)
	route("POST "+base+"/bookings/{id}/reject", business, h.Bookings.Reject)
	route("POST "+base+"/bookings/{id}/cancel", party, h.Bookings.Cancel)
	route("POST "+base+"/bookings/{id}/start", worker, h.Bookings.Start)
	route("POST "+base+"/bookings/{id}/checkout", worker, h.Bookings.Checkout)
	route("POST "+base+"/bookings/{id}/payout", worker, h.Bookings.Payout)
	route("POST "+base+"/bookings/{id}/release", admin, h.Bookings.Release)
	route("POST "+base+"/admin/release-due", admin, h.Bookings.RunReleases)

	route("POST "+base+"/bookings/{id}/disputes", party, h.Disputes.Raise)
	route("GET "+base+"/disputes/{id}", admin, h.Disputes.Get)
	route("POST "+base+"/disputes/{id}/investigate", admin, h.Disputes.Investigate)
	route("POST "+base+"/disputes/{id}/resolve", admin, h.Disputes.Resolve)
	route("POST "+base+"/disputes/{id}/reject", admin, h.Disputes.Reject)

	route("GET "+base+"/compliance/workers/{id}", business, h.Compliance.Status)
	route("GET "+base+"/compliance/alternatives", business, h.Compliance.Alternatives)

	route("GET "+base+"/wallet", party, h.Wallets.Get)
	route("GET "+base+"/wallet/transactions", party, h.Wallets.Transactions)
	route("POST "+base+"/wallet/withdraw", party, h.Wallets.Withdraw)
	route("GET "+base+"/wallets/{id}/reconcile", admin, h.Wallets.Reconcile)
	route("POST "+base+"/wallets/{id}/deactivate", admin, h.Wallets.Deactivate)

	return mux
}

func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument counts requests per route pattern and status class.
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.IncHTTP(route, strconv.Itoa(rec.status/100)+"xx")
	})
}
