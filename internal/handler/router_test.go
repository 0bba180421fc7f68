package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/riteshkumar/bank-payments/internal/auth"
	"github.com/riteshkumar/bank-payments/internal/events"
	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/ratelimit"
	"github.com/riteshkumar/bank-payments/internal/repository"
	"github.com/riteshkumar/bank-payments/internal/service"
)

const (
	password        = "Sup3rSecret!Pass"
	registryAccount = "30000003"
	origin          = "http://localhost:3000"
)

type testServer struct {
	handler http.Handler
	store   *repository.MemoryStore
}

func newTestServer(t *testing.T, trustedProxies ...netip.Prefix) *testServer {
	t.Helper()

	logger := zaptest.NewLogger(t)
	store := repository.NewMemoryStore()
	store.SeedRecipients(models.InternationalRecipient{
		AccountNumber: registryAccount,
		Name:          "Jane Doe",
		Bank:          "Barclays",
		SwiftCode:     "AAAABBCC",
	})

	jwt := auth.NewJWTManager("handler-secret", "bank-payments", time.Hour)
	publisher := events.NopPublisher{}
	accounts := service.NewAccountService(store, logger)
	authService := service.NewAuthService(store, accounts, auth.NewBcryptHasher(bcrypt.MinCost), jwt,
		ratelimit.NewMemoryLimiter(ratelimit.Options{Limit: 5, Window: time.Minute, Block: time.Minute}),
		decimal.NewFromInt(10000), logger)
	require.NoError(t, authService.EnsureEmployee(context.Background(), "teller", password))

	handler := NewRouter(RouterDeps{
		Auth:           authService,
		Accounts:       accounts,
		Transactions:   service.NewTransactionService(store, accounts, publisher, logger),
		Approvals:      service.NewApprovalService(store, accounts, publisher, true, logger),
		Verifier:       jwt,
		IPLimiter:      ratelimit.NewMemoryLimiter(ratelimit.Options{Limit: 20, Window: time.Minute, Block: time.Minute}),
		TrustedProxies: trustedProxies,
		AllowedOrigins: []string{origin},
		Logger:         logger,
	})
	return &testServer{handler: handler, store: store}
}

func (s *testServer) do(t *testing.T, method, target, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, first, username, accountNumber string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/register", "", models.RegisterRequest{
		FirstName:       first,
		LastName:        "Smith",
		UserName:        username,
		Email:           username + "@example.com",
		Password:        password,
		ConfirmPassword: password,
		AccountNumber:   accountNumber,
		IDNumber:        "9001015009087",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) login(t *testing.T, username, accountNumber string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/login", "", models.LoginRequest{
		Username:      username,
		AccountNumber: accountNumber,
		Password:      password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func (s *testServer) employeeToken(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/employeeLogin", "", models.LoginRequest{Username: "teller", Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func decodeReceipt(t *testing.T, rec *httptest.ResponseRecorder) models.TransferReceipt {
	t.Helper()
	var receipt models.TransferReceipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	return receipt
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "payments_http_request_duration_seconds")
}

func TestLocalPaymentFlow(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Alice", "alice", "1000001")
	s.register(t, "Bob", "bob", "2000002")
	token := s.login(t, "alice", "1000001")

	payment := map[string]any{
		"type":     "local",
		"recName":  "Bob Smith",
		"recBank":  "First Bank",
		"recAccNo": "2000002",
		"amount":   "250.50",
		"branch":   "123",
	}

	rec := s.do(t, http.MethodPost, "/payment", token, payment, "Idempotency-Key", "pay-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeReceipt(t, rec)
	assert.Equal(t, "Payment processed successfully", receipt.Message)
	assert.Equal(t, models.StatusSettled, receipt.Transaction.Status)
	require.NotNil(t, receipt.SenderNewBalance)
	assert.True(t, receipt.SenderNewBalance.Equal(decimal.RequireFromString("9749.50")))
	assert.Contains(t, rec.Body.String(), `"sender_new_balance":"9749.5"`)

	rec = s.do(t, http.MethodPost, "/payment", token, payment, "Idempotency-Key", "pay-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replay := decodeReceipt(t, rec)
	assert.True(t, replay.Replayed)
	assert.Equal(t, receipt.Transaction.ID, replay.Transaction.ID)

	rec = s.do(t, http.MethodGet, "/Home", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dashboard models.DashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dashboard))
	assert.Equal(t, "Welcome Alice", dashboard.Message)
	assert.True(t, dashboard.User.Balance.Equal(decimal.RequireFromString("9749.50")))
	assert.Len(t, dashboard.Transactions, 1)

	bobToken := s.login(t, "bob", "2000002")
	rec = s.do(t, http.MethodGet, "/transactions/"+receipt.Transaction.ID, bobToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentErrors(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Alice", "alice", "1000001")
	token := s.login(t, "alice", "1000001")

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{
			name:   "sub-cent amount",
			body:   map[string]any{"type": "local", "recName": "Bob Smith", "recBank": "First Bank", "recAccNo": "2000002", "amount": "1.005", "branch": "123"},
			status: http.StatusBadRequest,
			code:   "validation_error",
		},
		{
			name:   "insufficient funds",
			body:   map[string]any{"type": "local", "recName": "Alice", "recBank": "First Bank", "recAccNo": "7777777", "amount": "20000", "branch": "123"},
			status: http.StatusUnprocessableEntity,
			code:   "insufficient_funds",
		},
		{
			name:   "bad recipient name",
			body:   map[string]any{"type": "local", "recName": "B0b", "recBank": "First Bank", "recAccNo": "2000002", "amount": "10", "branch": "123"},
			status: http.StatusBadRequest,
			code:   "validation_error",
		},
		{
			name:   "self transfer",
			body:   map[string]any{"type": "local", "recName": "Alice", "recBank": "First Bank", "recAccNo": "1000001", "amount": "10", "branch": "123"},
			status: http.StatusBadRequest,
			code:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/payment", token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payment", bytes.NewBufferString(`{"amount":`))
	req.Header.Set("Authorization", "Bearer "+token)
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthGuards(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Alice", "alice", "1000001")
	customer := s.login(t, "alice", "1000001")
	employee := s.employeeToken(t)

	rec := s.do(t, http.MethodGet, "/Home", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	rec = s.do(t, http.MethodGet, "/Home", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/employeeHome", customer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/payment", employee, map[string]any{"type": "local"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/login", "", models.LoginRequest{Username: "alice", AccountNumber: "1000001", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/register", "", models.RegisterRequest{
		FirstName: "Alice", LastName: "Smith", UserName: "alice", Email: "alice@example.com",
		Password: password, ConfirmPassword: password, AccountNumber: "1000001", IDNumber: "9001015009087",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "account_exists", errorCode(t, rec))
}

func TestInternationalApprovalFlow(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Alice", "alice", "1000001")
	customer := s.login(t, "alice", "1000001")
	employee := s.employeeToken(t)

	rec := s.do(t, http.MethodPost, "/payment", customer, map[string]any{
		"type":     "international",
		"recName":  "Jane Doe",
		"recBank":  "Barclays",
		"recAccNo": registryAccount,
		"amount":   "2000",
		"swift":    "AAAABBCC",
		"currency": "USD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeReceipt(t, rec)
	assert.Equal(t, "International payment submitted for approval", receipt.Message)
	id := receipt.Transaction.ID

	rec = s.do(t, http.MethodGet, "/employeeHome", employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending models.PendingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending.Transactions, 1)
	assert.Equal(t, id, pending.Transactions[0].ID)

	rec = s.do(t, http.MethodPost, "/ProcessPay", employee, models.ResolveRequest{TransactionID: id})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "verification_incomplete", errorCode(t, rec))

	// the claimed value may arrive under the field's own query parameter
	q := url.Values{"field": {"recipientName"}, "accountNumber": {registryAccount}, "recipientName": {"Jane Doe"}}
	rec = s.do(t, http.MethodGet, "/verify?"+q.Encode(), employee, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verified models.VerifyFieldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.Equal(t, models.VerificationMatched, verified.Result)

	for _, field := range models.RequiredVerificationFields {
		q := url.Values{"field": {string(field)}, "transactionId": {id}}
		rec := s.do(t, http.MethodGet, "/verify?"+q.Encode(), employee, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/ProcessPay", employee, models.ResolveRequest{TransactionID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved models.ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, models.StatusSettled, resolved.Transaction.Status)

	rec = s.do(t, http.MethodPost, "/rejectPay", employee, models.ResolveRequest{TransactionID: id, Reason: "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_resolved", errorCode(t, rec))

	rec = s.do(t, http.MethodGet, "/Home", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dashboard models.DashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dashboard))
	assert.True(t, dashboard.User.Balance.Equal(decimal.NewFromInt(8000)))
}

func TestRejectPay(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Alice", "alice", "1000001")
	customer := s.login(t, "alice", "1000001")
	employee := s.employeeToken(t)

	rec := s.do(t, http.MethodPost, "/payment", customer, map[string]any{
		"type": "international", "recName": "Jane Doe", "recBank": "Barclays",
		"recAccNo": registryAccount, "amount": "10", "swift": "AAAABBCC", "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeReceipt(t, rec).Transaction.ID

	rec = s.do(t, http.MethodPost, "/rejectPay", employee, models.ResolveRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/rejectPay", employee, models.ResolveRequest{TransactionID: id, Reason: "suspicious"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved models.ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, models.StatusRejected, resolved.Transaction.Status)
	assert.Equal(t, "suspicious", resolved.Transaction.RejectionReason)

	rec = s.do(t, http.MethodGet, "/transactions/"+id, customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/transactions/txn_missing", employee, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "transaction_not_found", errorCode(t, rec))
}

func TestEmployeeHomePaging(t *testing.T) {
	s := newTestServer(t)
	employee := s.employeeToken(t)

	rec := s.do(t, http.MethodGet, "/employeeHome?limit=abc", employee, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/employeeHome?limit=5&offset=0", employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending models.PendingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, 5, pending.Limit)
	assert.NotNil(t, pending.Transactions)
	assert.Empty(t, pending.Transactions)
}

func exhaustLoginLimit(t *testing.T, s *testServer, forwardedFor string) *httptest.ResponseRecorder {
	t.Helper()
	var last *httptest.ResponseRecorder
	for i := 0; i < 21; i++ {
		last = s.do(t, http.MethodPost, "/employeeLogin", "", models.LoginRequest{Username: "ghost", Password: "x"},
			"X-Forwarded-For", forwardedFor)
	}
	return last
}

func TestLoginRateLimitedByIP(t *testing.T) {
	s := newTestServer(t)

	last := exhaustLoginLimit(t, s, "198.51.100.7")
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "too_many_attempts", errorCode(t, last))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))

	// without trusted proxies a rotated X-Forwarded-For does not open a new bucket
	rec := s.do(t, http.MethodPost, "/employeeLogin", "", models.LoginRequest{Username: "teller", Password: password},
		"X-Forwarded-For", "198.51.100.8")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLoginRateLimitBehindTrustedProxy(t *testing.T) {
	// httptest requests arrive from 192.0.2.1
	s := newTestServer(t, netip.MustParsePrefix("192.0.2.1/32"))

	last := exhaustLoginLimit(t, s, "198.51.100.7")
	assert.Equal(t, http.StatusTooManyRequests, last.Code)

	rec := s.do(t, http.MethodPost, "/employeeLogin", "", models.LoginRequest{Username: "teller", Password: password},
		"X-Forwarded-For", "198.51.100.8")
	assert.Equal(t, http.StatusOK, rec.Code)

	// a client-prepended hop is ignored; the proxy-appended address is used
	rec = s.do(t, http.MethodPost, "/employeeLogin", "", models.LoginRequest{Username: "teller", Password: password},
		"X-Forwarded-For", "203.0.113.1, 198.51.100.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/payment", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Idempotency-Key")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}
