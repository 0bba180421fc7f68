package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/models"
)

var errReadOnly = fmt.Errorf("write attempted in read-only view")

// MemoryStore keeps the ledger in process memory. A unit of work holds the
// writer lock for its whole duration and stages its writes, so concurrent
// readers see either all of a commit or none of it.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]models.Account
	usernames     map[string]string
	transactions  map[string]models.Transaction
	order         []string
	idempotency   map[string]string
	audit         []models.AuditLog
	verifications map[string]map[models.VerificationField]models.Verification
	now           func() time.Time

	// the registry has its own lock so it can be read inside a unit of work
	recipientsMu sync.RWMutex
	recipients   map[string]models.InternationalRecipient
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]models.Account),
		usernames:     make(map[string]string),
		transactions:  make(map[string]models.Transaction),
		idempotency:   make(map[string]string),
		verifications: make(map[string]map[models.VerificationField]models.Verification),
		recipients:    make(map[string]models.InternationalRecipient),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin(false)
	if err := fn(tx); err != nil {
		return err
	}

	// cancelled before commit: drop the staged writes
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(s.begin(true))
}

func (s *MemoryStore) Recipients() RecipientRepository {
	return &memRecipientRepository{store: s}
}

func (s *MemoryStore) Close() error {
	return nil
}

// SeedRecipients loads international registry entries.
func (s *MemoryStore) SeedRecipients(recipients ...models.InternationalRecipient) {
	s.recipientsMu.Lock()
	defer s.recipientsMu.Unlock()

	for _, r := range recipients {
		s.recipients[r.AccountNumber] = r
	}
}

// LoadRecipientsFile seeds the registry from a JSON array of recipients.
func (s *MemoryStore) LoadRecipientsFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read recipient registry: %w", err)
	}

	var recipients []models.InternationalRecipient
	if err := json.Unmarshal(b, &recipients); err != nil {
		return 0, fmt.Errorf("failed to parse recipient registry: %w", err)
	}

	s.SeedRecipients(recipients...)
	return len(recipients), nil
}

func (s *MemoryStore) begin(readOnly bool) *memTx {
	return &memTx{
		store:         s,
		readOnly:      readOnly,
		accounts:      make(map[string]models.Account),
		usernames:     make(map[string]string),
		transactions:  make(map[string]models.Transaction),
		idempotency:   make(map[string]string),
		verifications: make(map[string]map[models.VerificationField]models.Verification),
	}
}

func (s *MemoryStore) commit(tx *memTx) {
	for k, v := range tx.accounts {
		s.accounts[k] = v
	}
	for k, v := range tx.usernames {
		s.usernames[k] = v
	}
	for k, v := range tx.transactions {
		s.transactions[k] = v
	}
	s.order = append(s.order, tx.newIDs...)
	for k, v := range tx.idempotency {
		s.idempotency[k] = v
	}
	s.audit = append(s.audit, tx.audit...)
	for id, fields := range tx.verifications {
		if s.verifications[id] == nil {
			s.verifications[id] = make(map[models.VerificationField]models.Verification)
		}
		for f, v := range fields {
			s.verifications[id][f] = v
		}
	}
}

type memTx struct {
	store         *MemoryStore
	readOnly      bool
	accounts      map[string]models.Account
	usernames     map[string]string
	transactions  map[string]models.Transaction
	newIDs        []string
	idempotency   map[string]string
	audit         []models.AuditLog
	verifications map[string]map[models.VerificationField]models.Verification
}

func (t *memTx) Accounts() AccountRepository {
	return &memAccountRepository{tx: t}
}

func (t *memTx) Transactions() TransactionRepository {
	return &memTransactionRepository{tx: t}
}

func (t *memTx) Audit() AuditRepository {
	return &memAuditRepository{tx: t}
}

func (t *memTx) Verifications() VerificationRepository {
	return &memVerificationRepository{tx: t}
}

func (t *memTx) account(accountNumber string) (models.Account, bool) {
	if a, ok := t.accounts[accountNumber]; ok {
		return a, true
	}
	a, ok := t.store.accounts[accountNumber]
	return a, ok
}

func (t *memTx) transaction(id string) (models.Transaction, bool) {
	if tr, ok := t.transactions[id]; ok {
		return tr, true
	}
	tr, ok := t.store.transactions[id]
	return tr, ok
}

func (t *memTx) allTransactionIDs() []string {
	ids := make([]string, 0, len(t.store.order)+len(t.newIDs))
	ids = append(ids, t.store.order...)
	return append(ids, t.newIDs...)
}

type memAccountRepository struct {
	tx *memTx
}

func (r *memAccountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	if r.tx.readOnly {
		return errReadOnly
	}
	if _, ok := r.tx.account(account.AccountNumber); ok {
		return errors.ErrAccountAlreadyExists
	}
	if _, ok := r.tx.usernames[account.Username]; ok {
		return errors.ErrUsernameTaken
	}
	if _, ok := r.tx.store.usernames[account.Username]; ok {
		return errors.ErrUsernameTaken
	}

	now := r.tx.store.now()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.tx.accounts[account.AccountNumber] = *account
	r.tx.usernames[account.Username] = account.AccountNumber
	return nil
}

func (r *memAccountRepository) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	a, ok := r.tx.account(accountNumber)
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return &a, nil
}

// GetAccountByNumberForUpdate needs no extra locking: the unit of work
// already holds the store writer lock.
func (r *memAccountRepository) GetAccountByNumberForUpdate(ctx context.Context, accountNumber string) (*models.Account, error) {
	return r.GetAccountByNumber(ctx, accountNumber)
}

func (r *memAccountRepository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	accountNumber, ok := r.tx.usernames[username]
	if !ok {
		accountNumber, ok = r.tx.store.usernames[username]
	}
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return r.GetAccountByNumber(ctx, accountNumber)
}

func (r *memAccountRepository) UpdateAccountBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal) error {
	if r.tx.readOnly {
		return errReadOnly
	}
	a, ok := r.tx.account(accountNumber)
	if !ok {
		return errors.ErrAccountNotFound
	}
	if newBalance.IsNegative() {
		return fmt.Errorf("balance check constraint violated for account %s", accountNumber)
	}
	a.Balance = newBalance
	a.UpdatedAt = r.tx.store.now()
	r.tx.accounts[accountNumber] = a
	return nil
}

type memTransactionRepository struct {
	tx *memTx
}

func idempotencyIndex(sender, key string) string {
	return sender + "\x00" + key
}

func (r *memTransactionRepository) Create(ctx context.Context, transaction *models.Transaction) error {
	if r.tx.readOnly {
		return errReadOnly
	}
	if _, ok := r.tx.transaction(transaction.ID); ok {
		return fmt.Errorf("transaction %s already exists", transaction.ID)
	}
	if _, ok := r.tx.account(transaction.SenderAccountNumber); !ok {
		return fmt.Errorf("sender %s violates foreign key", transaction.SenderAccountNumber)
	}
	if transaction.IdempotencyKey != "" {
		idx := idempotencyIndex(transaction.SenderAccountNumber, transaction.IdempotencyKey)
		_, staged := r.tx.idempotency[idx]
		_, stored := r.tx.store.idempotency[idx]
		if staged || stored {
			return errors.ErrDuplicateSubmission
		}
		r.tx.idempotency[idx] = transaction.ID
	}

	now := r.tx.store.now()
	transaction.CreatedAt = now
	transaction.UpdatedAt = now
	r.tx.transactions[transaction.ID] = *transaction
	r.tx.newIDs = append(r.tx.newIDs, transaction.ID)
	return nil
}

func (r *memTransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	tr, ok := r.tx.transaction(id)
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return &tr, nil
}

func (r *memTransactionRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *memTransactionRepository) GetByIdempotencyKey(ctx context.Context, sender, key string) (*models.Transaction, error) {
	idx := idempotencyIndex(sender, key)
	id, ok := r.tx.idempotency[idx]
	if !ok {
		id, ok = r.tx.store.idempotency[idx]
	}
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memTransactionRepository) GetByAccountNumber(ctx context.Context, accountNumber string) ([]*models.Transaction, error) {
	ids := r.tx.allTransactionIDs()
	transactions := []*models.Transaction{}
	for i := len(ids) - 1; i >= 0; i-- {
		tr, _ := r.tx.transaction(ids[i])
		if tr.SenderAccountNumber == accountNumber || tr.Recipient.AccountNumber == accountNumber {
			transactions = append(transactions, &tr)
		}
	}
	return transactions, nil
}

func (r *memTransactionRepository) ListByStatus(ctx context.Context, status models.TransactionStatus, page models.Page) ([]*models.Transaction, error) {
	page = NormalizePage(page)
	transactions := []*models.Transaction{}
	skipped := 0
	for _, id := range r.tx.allTransactionIDs() {
		tr, _ := r.tx.transaction(id)
		if tr.Status != status {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		transactions = append(transactions, &tr)
		if len(transactions) == page.Limit {
			break
		}
	}
	return transactions, nil
}

func (r *memTransactionRepository) Resolve(ctx context.Context, transaction *models.Transaction) error {
	if r.tx.readOnly {
		return errReadOnly
	}
	stored, ok := r.tx.transaction(transaction.ID)
	if !ok || stored.Status != models.StatusPending {
		return errors.ErrAlreadyResolved
	}

	stored.Status = transaction.Status
	stored.ResolvedBy = transaction.ResolvedBy
	stored.ResolvedAt = transaction.ResolvedAt
	stored.RejectionReason = transaction.RejectionReason
	stored.UpdatedAt = r.tx.store.now()
	transaction.UpdatedAt = stored.UpdatedAt
	r.tx.transactions[transaction.ID] = stored
	return nil
}

type memAuditRepository struct {
	tx *memTx
}

func (r *memAuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if r.tx.readOnly {
		return errReadOnly
	}
	log.ID = uuid.NewString()
	log.CreatedAt = r.tx.store.now()
	r.tx.audit = append(r.tx.audit, *log)
	return nil
}

func (r *memAuditRepository) GetByEntityID(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error) {
	all := make([]models.AuditLog, 0, len(r.tx.store.audit)+len(r.tx.audit))
	all = append(all, r.tx.store.audit...)
	all = append(all, r.tx.audit...)

	var logs []*models.AuditLog
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].EntityType == entityType && all[i].EntityID == entityID {
			l := all[i]
			logs = append(logs, &l)
		}
	}
	return logs, nil
}

type memVerificationRepository struct {
	tx *memTx
}

func (r *memVerificationRepository) Upsert(ctx context.Context, v *models.Verification) error {
	if r.tx.readOnly {
		return errReadOnly
	}
	if _, ok := r.tx.transaction(v.TransactionID); !ok {
		return fmt.Errorf("transaction %s violates foreign key", v.TransactionID)
	}
	v.VerifiedAt = r.tx.store.now()
	if r.tx.verifications[v.TransactionID] == nil {
		r.tx.verifications[v.TransactionID] = make(map[models.VerificationField]models.Verification)
	}
	r.tx.verifications[v.TransactionID][v.Field] = *v
	return nil
}

func (r *memVerificationRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*models.Verification, error) {
	merged := make(map[models.VerificationField]models.Verification)
	for f, v := range r.tx.store.verifications[transactionID] {
		merged[f] = v
	}
	for f, v := range r.tx.verifications[transactionID] {
		merged[f] = v
	}

	var verifications []*models.Verification
	for _, f := range models.RequiredVerificationFields {
		if v, ok := merged[f]; ok {
			verifications = append(verifications, &v)
		}
	}
	return verifications, nil
}

type memRecipientRepository struct {
	store *MemoryStore
}

func (r *memRecipientRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.InternationalRecipient, error) {
	r.store.recipientsMu.RLock()
	defer r.store.recipientsMu.RUnlock()

	recipient, ok := r.store.recipients[accountNumber]
	if !ok {
		return nil, errors.ErrRecipientNotFound
	}
	return &recipient, nil
}
