package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/repository"
	"github.com/riteshkumar/bank-payments/internal/service"
	u "github.com/riteshkumar/bank-payments/internal/utils"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	logger          *zap.Logger
}

func NewApprovalHandler(approvalService service.ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		approvalService: approvalService,
		logger:          logger,
	}
}

func (h *ApprovalHandler) RegisterRoutes(employee *mux.Router) {
	employee.HandleFunc("/employeeHome", h.EmployeeHome).Methods(http.MethodGet)
	employee.HandleFunc("/verify", h.Verify).Methods(http.MethodGet)
	employee.HandleFunc("/ProcessPay", h.ProcessPay).Methods(http.MethodPost)
	employee.HandleFunc("/rejectPay", h.RejectPay).Methods(http.MethodPost)
}

// EmployeeHome lists pending international transactions, oldest first.
func (h *ApprovalHandler) EmployeeHome(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r)
	if !ok {
		return
	}

	transactions, err := h.approvalService.ListPending(r.Context(), identityFrom(r), page)
	if err != nil {
		handleServiceError(w, h.logger, err, "list pending")
		return
	}
	if transactions == nil {
		transactions = []*models.Transaction{}
	}

	normalized := repository.NormalizePage(page)
	u.WriteJSON(w, http.StatusOK, models.PendingResponse{
		Message:      "Pending international payments",
		Transactions: transactions,
		Limit:        normalized.Limit,
		Offset:       normalized.Offset,
	})
}

// Verify checks one claimed field. When claimedValue is absent the value is
// read from the query parameter named after the field.
func (h *ApprovalHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := models.VerificationField(q.Get("field"))

	claimed := q.Get("claimedValue")
	if !q.Has("claimedValue") && field != "" {
		claimed = q.Get(string(field))
	}

	resp, err := h.approvalService.VerifyField(r.Context(), identityFrom(r), &models.VerifyFieldRequest{
		TransactionID: q.Get("transactionId"),
		AccountNumber: q.Get("accountNumber"),
		Sender:        q.Get("sender"),
		Field:         field,
		ClaimedValue:  claimed,
	})
	if err != nil {
		handleServiceError(w, h.logger, err, "verify")
		return
	}
	u.WriteJSON(w, http.StatusOK, resp)
}

func (h *ApprovalHandler) ProcessPay(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := u.ReadJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request payload")
		return
	}
	if req.TransactionID == "" {
		writeBadRequest(w, "transactionId is required")
		return
	}

	transaction, err := h.approvalService.Approve(r.Context(), identityFrom(r), req.TransactionID)
	if err != nil {
		handleServiceError(w, h.logger, err, "approve")
		return
	}
	u.WriteJSON(w, http.StatusOK, models.ResolveResponse{
		Message:     "Payment processed successfully",
		Transaction: transaction,
	})
}

func (h *ApprovalHandler) RejectPay(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := u.ReadJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request payload")
		return
	}
	if req.TransactionID == "" {
		writeBadRequest(w, "transactionId is required")
		return
	}

	transaction, err := h.approvalService.Reject(r.Context(), identityFrom(r), req.TransactionID, req.Reason)
	if err != nil {
		handleServiceError(w, h.logger, err, "reject")
		return
	}
	u.WriteJSON(w, http.StatusOK, models.ResolveResponse{
		Message:     "Payment rejected",
		Transaction: transaction,
	})
}

func pageFromQuery(w http.ResponseWriter, r *http.Request) (models.Page, bool) {
	var page models.Page
	q := r.URL.Query()
	params := []struct {
		name string
		dst  *int
	}{{"limit", &page.Limit}, {"offset", &page.Offset}}
	for _, p := range params {
		name, dst := p.name, p.dst
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return models.Page{}, false
		}
		*dst = n
	}
	return page, true
}
