// Package validation holds the field predicates shared by registration and
// payment submission. Each predicate checks one field and nothing else.
package validation

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/models"
)

var (
	recipientNamePattern = regexp.MustCompile(`^[A-Za-z\s]+$`)
	personNamePattern    = regexp.MustCompile(`^[a-zA-Z\s-]+$`)
	emailPattern         = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.(com|co\.za)$`)
	accountNumberPattern = regexp.MustCompile(`^\d{6,11}$`)
	branchCodePattern    = regexp.MustCompile(`^[0-9A-Z]{3,5}$`)
	swiftCodePattern     = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	currencyPattern      = regexp.MustCompile(`^[A-Z]{3}$`)
	idNumberPattern      = regexp.MustCompile(`^\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])\d{4}[01]\d{2}$`)
	passwordCharset      = regexp.MustCompile(`^[A-Za-z\d@$!%*?&]{12,}$`)
)

const passwordSpecials = "@$!%*?&"

func IsRecipientName(s string) bool { return recipientNamePattern.MatchString(s) }

func IsBankName(s string) bool { return recipientNamePattern.MatchString(s) }

func IsPersonName(s string) bool { return personNamePattern.MatchString(s) }

func IsEmail(s string) bool { return emailPattern.MatchString(s) }

func IsAccountNumber(s string) bool { return accountNumberPattern.MatchString(s) }

func IsBranchCode(s string) bool { return branchCodePattern.MatchString(s) }

func IsSwiftCode(s string) bool { return swiftCodePattern.MatchString(s) }

func IsCurrency(s string) bool { return currencyPattern.MatchString(s) }

// IsSouthAfricanID checks the 13 digit YYMMDD SSSS C A Z layout.
func IsSouthAfricanID(s string) bool { return idNumberPattern.MatchString(s) }

func IsPositiveAmount(d decimal.Decimal) bool { return d.IsPositive() }

// IsStrongPassword requires at least 12 characters drawn from letters, digits
// and @$!%*?&, with at least one of each class.
func IsStrongPassword(s string) bool {
	if !passwordCharset.MatchString(s) {
		return false
	}
	return strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") &&
		strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") &&
		strings.ContainsAny(s, "0123456789") &&
		strings.ContainsAny(s, passwordSpecials)
}

// Transfer validates a payment request before any store access.
func Transfer(req *models.TransferRequest) error {
	if req.Type != models.TransactionTypeLocal && req.Type != models.TransactionTypeInternational {
		return errors.NewValidationError("type", "must be 'local' or 'international'")
	}
	if req.RecipientName == "" || !IsRecipientName(req.RecipientName) {
		return errors.NewValidationError("recName", "recipient name must contain only letters and spaces")
	}
	if req.RecipientBank == "" || !IsBankName(req.RecipientBank) {
		return errors.NewValidationError("recBank", "bank name must contain only letters and spaces")
	}
	if !IsAccountNumber(req.RecipientAccountNumber) {
		return errors.NewValidationError("recAccNo", "account number must be between 6 and 11 digits")
	}
	if !IsPositiveAmount(req.Amount) {
		return errors.NewValidationError("amount", "payment amount must be greater than zero")
	}
	if !req.Amount.Equal(req.Amount.Truncate(2)) {
		return errors.NewValidationError("amount", "payment amount cannot have more than two decimal places")
	}

	if req.Type == models.TransactionTypeLocal {
		if req.BranchCode == "" {
			return errors.NewValidationError("branch", "branch code is required for local payments")
		}
		if !IsBranchCode(req.BranchCode) {
			return errors.NewValidationError("branch", "branch code must be 3 to 5 uppercase alphanumeric characters")
		}
		return nil
	}

	if !IsSwiftCode(req.SwiftCode) {
		return errors.NewValidationError("swift", "SWIFT code must be 8 or 11 characters of the form AAAABBCC[DDD]")
	}
	if req.Currency == "" {
		return errors.NewValidationError("currency", "currency is required for international payments")
	}
	if !IsCurrency(req.Currency) {
		return errors.NewValidationError("currency", "currency must be a three letter code")
	}
	return nil
}

// Registration validates a customer sign-up request.
func Registration(req *models.RegisterRequest) error {
	if !IsPersonName(req.FirstName) {
		return errors.NewValidationError("firstName", "only letters, spaces, and hyphens are allowed")
	}
	if !IsPersonName(req.LastName) {
		return errors.NewValidationError("lastName", "only letters, spaces, and hyphens are allowed")
	}
	if !IsPersonName(req.UserName) {
		return errors.NewValidationError("userName", "only letters, spaces, and hyphens are allowed")
	}
	if !IsEmail(req.Email) {
		return errors.NewValidationError("email", "invalid email format")
	}
	if !IsAccountNumber(req.AccountNumber) {
		return errors.NewValidationError("accountNumber", "account number must be between 6 and 11 digits")
	}
	if !IsSouthAfricanID(req.IDNumber) {
		return errors.NewValidationError("idNumber", "invalid South African ID number")
	}
	if !IsStrongPassword(req.Password) {
		return errors.NewValidationError("password", "must be at least 12 characters and include upper, lower, digit and one of @$!%*?&")
	}
	if req.Password != req.ConfirmPassword {
		return errors.NewValidationError("confirmPassword", "passwords do not match")
	}
	return nil
}
