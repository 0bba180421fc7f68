package handler

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/auth"
	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/ratelimit"
	"github.com/riteshkumar/bank-payments/internal/service"
)

type RouterDeps struct {
	Auth           service.AuthService
	Accounts       service.AccountService
	Transactions   service.TransactionService
	Approvals      service.ApprovalService
	Verifier       auth.Verifier
	IPLimiter      ratelimit.Limiter
	TrustedProxies []netip.Prefix
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires every route behind its role guard. CORS wraps the whole
// router so preflight requests are answered before route matching.
func NewRouter(deps RouterDeps) http.Handler {
	router := mux.NewRouter()
	router.Use(RequestID, Logging(deps.Logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	public := router.NewRoute().Subrouter()

	login := router.NewRoute().Subrouter()
	login.Use(RateLimit(deps.IPLimiter, deps.TrustedProxies, deps.Logger))

	authenticated := router.NewRoute().Subrouter()
	authenticated.Use(Authenticate(deps.Verifier, deps.Logger))

	customer := authenticated.NewRoute().Subrouter()
	customer.Use(RequireRole(models.RoleCustomer))

	employee := authenticated.NewRoute().Subrouter()
	employee.Use(RequireRole(models.RoleEmployee))

	NewAuthHandler(deps.Auth, deps.Logger).RegisterRoutes(public, login)
	NewAccountHandler(deps.Accounts, deps.Logger).RegisterRoutes(customer)
	NewTransactionHandler(deps.Transactions, deps.Logger).RegisterRoutes(customer, authenticated)
	NewApprovalHandler(deps.Approvals, deps.Logger).RegisterRoutes(employee)

	return cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})(router)
}
