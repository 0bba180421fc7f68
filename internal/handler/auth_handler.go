package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/service"
	u "github.com/riteshkumar/bank-payments/internal/utils"
)

type AuthHandler struct {
	authService service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// RegisterRoutes mounts registration on public and the login endpoints on
// login, which the router wraps with per-IP throttling.
func (h *AuthHandler) RegisterRoutes(public, login *mux.Router) {
	public.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	login.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	login.HandleFunc("/employeeLogin", h.EmployeeLogin).Methods(http.MethodPost)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := u.ReadJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		writeBadRequest(w, "invalid request payload")
		return
	}

	account, err := h.authService.RegisterCustomer(r.Context(), &req)
	if err != nil {
		handleServiceError(w, h.logger, err, "register")
		return
	}

	u.WriteJSON(w, http.StatusCreated, models.RegisterResponse{
		Message: "User registered successfully",
		Account: models.AccountResponse{
			AccountNumber: account.AccountNumber,
			FirstName:     account.FirstName,
			LastName:      account.LastName,
			Email:         account.Email,
			Balance:       account.Balance,
		},
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := u.ReadJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request payload")
		return
	}

	resp, err := h.authService.LoginCustomer(r.Context(), &req)
	if err != nil {
		handleServiceError(w, h.logger, err, "login")
		return
	}
	u.WriteJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) EmployeeLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := u.ReadJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request payload")
		return
	}

	resp, err := h.authService.LoginEmployee(r.Context(), &req)
	if err != nil {
		handleServiceError(w, h.logger, err, "employee login")
		return
	}
	u.WriteJSON(w, http.StatusOK, resp)
}
