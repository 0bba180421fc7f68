package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	UserName        string `json:"userName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	AccountNumber   string `json:"accountNumber"`
	IDNumber        string `json:"idNumber"`
}

type LoginRequest struct {
	Username      string `json:"username"`
	AccountNumber string `json:"accountNumber"`
	Password      string `json:"password"`
}

type LoginResponse struct {
	Message       string `json:"message"`
	Token         string `json:"token"`
	Username      string `json:"username"`
	AccountNumber string `json:"account_number,omitempty"`
	Role          Role   `json:"role"`
}

// TransferRequest mirrors the payment form fields.
type TransferRequest struct {
	Type                   TransactionType `json:"type"`
	RecipientName          string          `json:"recName"`
	RecipientBank          string          `json:"recBank"`
	RecipientAccountNumber string          `json:"recAccNo"`
	Amount                 decimal.Decimal `json:"amount"`
	SwiftCode              string          `json:"swift,omitempty"`
	BranchCode             string          `json:"branch,omitempty"`
	Currency               string          `json:"currency,omitempty"`
}

type TransferOutcome string

const (
	OutcomeSettled                  TransferOutcome = "settled"
	OutcomeSettledNoRecipientCredit TransferOutcome = "settled_no_recipient_credit"
	OutcomePending                  TransferOutcome = "pending"
)

type BalanceChange struct {
	AccountNumber string          `json:"account_number"`
	Before        decimal.Decimal `json:"before"`
	After         decimal.Decimal `json:"after"`
}

type TransferResult struct {
	Outcome   TransferOutcome `json:"outcome"`
	Sender    BalanceChange   `json:"sender"`
	Recipient *BalanceChange  `json:"recipient,omitempty"`
}

type TransferReceipt struct {
	Message             string           `json:"message"`
	Outcome             TransferOutcome  `json:"outcome"`
	Transaction         *Transaction     `json:"transaction"`
	SenderNewBalance    *decimal.Decimal `json:"sender_new_balance,omitempty"`
	RecipientNewBalance *decimal.Decimal `json:"recipient_new_balance,omitempty"`
	SenderBalance       *decimal.Decimal `json:"sender_balance,omitempty"`
	Replayed            bool             `json:"replayed,omitempty"`
}

type VerifyFieldRequest struct {
	TransactionID string            `json:"transactionId,omitempty"`
	AccountNumber string            `json:"accountNumber,omitempty"`
	Sender        string            `json:"sender,omitempty"`
	Field         VerificationField `json:"field"`
	ClaimedValue  string            `json:"claimedValue"`
}

type VerificationResult string

const (
	VerificationMatched    VerificationResult = "matched"
	VerificationMismatched VerificationResult = "mismatched"
)

type VerifyFieldResponse struct {
	Field   VerificationField  `json:"field"`
	Result  VerificationResult `json:"result"`
	Message string             `json:"message"`
}

type ResolveRequest struct {
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason,omitempty"`
}

type ResolveResponse struct {
	Message     string       `json:"message"`
	Transaction *Transaction `json:"transaction"`
}

type AccountResponse struct {
	AccountNumber string          `json:"account_number"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Email         string          `json:"email"`
	Balance       decimal.Decimal `json:"balance"`
}

type DashboardResponse struct {
	Message      string          `json:"message"`
	User         AccountResponse `json:"user"`
	Transactions []*Transaction  `json:"transactions"`
}

type PendingResponse struct {
	Message      string         `json:"message"`
	Transactions []*Transaction `json:"transactions"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type TransactionEvent struct {
	EventType     string            `json:"event_type"`
	TransactionID string            `json:"transaction_id"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Sender        string            `json:"sender"`
	Recipient     string            `json:"recipient"`
	Amount        decimal.Decimal   `json:"amount"`
	Actor         string            `json:"actor,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

type RegisterResponse struct {
	Message string          `json:"message"`
	Account AccountResponse `json:"account"`
}
