package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/service"
	u "github.com/riteshkumar/bank-payments/internal/utils"
)

type AccountHandler struct {
	accountService service.AccountService
	logger         *zap.Logger
}

func NewAccountHandler(accountService service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

func (h *AccountHandler) RegisterRoutes(customer *mux.Router) {
	customer.HandleFunc("/Home", h.Home).Methods(http.MethodGet)
}

// Home returns the caller's profile, balance and transaction history.
func (h *AccountHandler) Home(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.accountService.Dashboard(r.Context(), identityFrom(r))
	if err != nil {
		handleServiceError(w, h.logger, err, "dashboard")
		return
	}
	u.WriteJSON(w, http.StatusOK, dashboard)
}
