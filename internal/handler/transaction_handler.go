package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/service"
	u "github.com/riteshkumar/bank-payments/internal/utils"
)

const idempotencyHeader = "Idempotency-Key"

type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *zap.Logger
}

func NewTransactionHandler(transactionService service.TransactionService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

func (h *TransactionHandler) RegisterRoutes(customer, authenticated *mux.Router) {
	customer.HandleFunc("/payment", h.Payment).Methods(http.MethodPost)
	authenticated.HandleFunc("/transactions/{id}", h.GetTransaction).Methods(http.MethodGet)
}

// Payment submits a transfer from the caller's own account. A replayed
// Idempotency-Key answers 200 with the original transaction.
func (h *TransactionHandler) Payment(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := u.ReadJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid payment request", zap.Error(err))
		writeBadRequest(w, "invalid request payload")
		return
	}

	receipt, err := h.transactionService.SubmitTransfer(r.Context(), identityFrom(r), &req, r.Header.Get(idempotencyHeader))
	if err != nil {
		handleServiceError(w, h.logger, err, "payment")
		return
	}

	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	u.WriteJSON(w, status, receipt)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeBadRequest(w, "id is required")
		return
	}

	transaction, err := h.transactionService.GetTransaction(r.Context(), identityFrom(r), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "get transaction")
		return
	}
	u.WriteJSON(w, http.StatusOK, transaction)
}
