package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
)

type Account struct {
	AccountNumber string          `json:"account_number"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	IDNumber      string          `json:"id_number,omitempty"`
	PasswordHash  string          `json:"-"`
	Balance       decimal.Decimal `json:"balance"`
	Role          Role            `json:"role"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type TransactionType string

const (
	TransactionTypeLocal         TransactionType = "local"
	TransactionTypeInternational TransactionType = "international"
)

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusSettled  TransactionStatus = "settled"
	StatusRejected TransactionStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSettled || s == StatusRejected
}

// CanTransition reports whether a stored transaction may move from one status
// to another. Statuses only move forward out of pending.
func CanTransition(from, to TransactionStatus) bool {
	return from == StatusPending && (to == StatusSettled || to == StatusRejected)
}

type Recipient struct {
	Name          string `json:"name"`
	Bank          string `json:"bank"`
	AccountNumber string `json:"account_number"`
	SwiftCode     string `json:"swift_code,omitempty"`
	BranchCode    string `json:"branch_code,omitempty"`
	Currency      string `json:"currency,omitempty"`
}

type Transaction struct {
	ID                  string            `json:"id"`
	Type                TransactionType   `json:"type"`
	SenderAccountNumber string            `json:"sender_account_number"`
	Recipient           Recipient         `json:"recipient"`
	Amount              decimal.Decimal   `json:"amount"`
	Status              TransactionStatus `json:"status"`
	IdempotencyKey      string            `json:"-"`
	ResolvedBy          string            `json:"resolved_by,omitempty"`
	ResolvedAt          *time.Time        `json:"resolved_at,omitempty"`
	RejectionReason     string            `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// InternationalRecipient is an entry of the read-only registry used to verify
// the details an international sender claimed.
type InternationalRecipient struct {
	AccountNumber string `json:"account_number"`
	Name          string `json:"name"`
	Bank          string `json:"bank"`
	SwiftCode     string `json:"swift_code"`
}

type VerificationField string

const (
	FieldRecipientName     VerificationField = "recipientName"
	FieldRecipientBank     VerificationField = "recipientBank"
	FieldAccountNumber     VerificationField = "accountNumber"
	FieldSwiftCode         VerificationField = "swiftCode"
	FieldTransactionAmount VerificationField = "transactionAmount"
)

// RequiredVerificationFields must all be matched before an international
// transaction can be approved.
var RequiredVerificationFields = []VerificationField{
	FieldRecipientName,
	FieldRecipientBank,
	FieldAccountNumber,
	FieldSwiftCode,
	FieldTransactionAmount,
}

func (f VerificationField) Valid() bool {
	for _, field := range RequiredVerificationFields {
		if f == field {
			return true
		}
	}
	return false
}

type Verification struct {
	TransactionID string            `json:"transaction_id"`
	Field         VerificationField `json:"field"`
	Matched       bool              `json:"matched"`
	VerifiedBy    string            `json:"verified_by"`
	VerifiedAt    time.Time         `json:"verified_at"`
}

type AuditLog struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor,omitempty"`
	OldValue   json.RawMessage `json:"old_value"`
	NewValue   json.RawMessage `json:"new_value"`
	CreatedAt  time.Time       `json:"created_at"`
}

const (
	AuditActionCreate  = "CREATE"
	AuditActionDebit   = "DEBIT"
	AuditActionCredit  = "CREDIT"
	AuditActionSubmit  = "SUBMIT"
	AuditActionApprove = "APPROVE"
	AuditActionReject  = "REJECT"
)

const (
	EntityTypeAccount     = "ACCOUNT"
	EntityTypeTransaction = "TRANSACTION"
)

type AccountBalanceSnapshot struct {
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

type TransactionSnapshot struct {
	ID     string            `json:"id"`
	Type   TransactionType   `json:"type"`
	Sender string            `json:"sender"`
	Amount decimal.Decimal   `json:"amount"`
	Status TransactionStatus `json:"status"`
}

func (t *Transaction) Snapshot() TransactionSnapshot {
	return TransactionSnapshot{
		ID:     t.ID,
		Type:   t.Type,
		Sender: t.SenderAccountNumber,
		Amount: t.Amount,
		Status: t.Status,
	}
}

// Page bounds a listing. A zero Limit means the store default.
type Page struct {
	Limit  int
	Offset int
}
