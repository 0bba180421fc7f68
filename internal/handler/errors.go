package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/errors"
	u "github.com/riteshkumar/bank-payments/internal/utils"
)

// handleServiceError maps every taxonomy error onto its own status and code.
// Only infrastructure failures reach the 5xx branches.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error, operation string) {
	var validationErr *errors.ValidationError

	switch {
	case errors.As(err, &validationErr):
		u.WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.Is(err, errors.ErrInvalidAmount):
		u.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.IsNotFound(err):
		u.WriteError(w, http.StatusNotFound, "account_not_found", err.Error())
	case errors.IsTransactionNotFound(err):
		u.WriteError(w, http.StatusNotFound, "transaction_not_found", err.Error())
	case errors.Is(err, errors.ErrRecipientNotFound):
		u.WriteError(w, http.StatusNotFound, "recipient_not_found", err.Error())
	case errors.IsInsufficientFunds(err):
		u.WriteError(w, http.StatusUnprocessableEntity, "insufficient_funds", "sender does not have enough funds for this payment")
	case errors.IsAlreadyResolved(err):
		u.WriteError(w, http.StatusConflict, "already_resolved", err.Error())
	case errors.Is(err, errors.ErrVerificationIncomplete):
		u.WriteError(w, http.StatusConflict, "verification_incomplete", err.Error())
	case errors.IsAlreadyExists(err):
		u.WriteError(w, http.StatusConflict, "account_exists", err.Error())
	case errors.Is(err, errors.ErrUsernameTaken):
		u.WriteError(w, http.StatusConflict, "username_taken", err.Error())
	case errors.Is(err, errors.ErrInvalidCredentials):
		u.WriteError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, errors.ErrUnauthorized):
		u.WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, errors.ErrForbidden):
		u.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, errors.ErrTooManyAttempts):
		u.WriteError(w, http.StatusTooManyRequests, "too_many_attempts", "too many attempts, try again later")
	case errors.IsStoreUnavailable(err):
		logger.Error("store unavailable during "+operation, zap.Error(err))
		u.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "service temporarily unavailable")
	default:
		logger.Error("internal server error during "+operation, zap.Error(err))
		u.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	u.WriteError(w, http.StatusBadRequest, "validation_error", message)
}
