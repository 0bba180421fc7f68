package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/auth"
	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/metrics"
	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/ratelimit"
	"github.com/riteshkumar/bank-payments/internal/repository"
	"github.com/riteshkumar/bank-payments/internal/validation"
)

type AuthService interface {
	RegisterCustomer(ctx context.Context, req *models.RegisterRequest) (*models.Account, error)
	LoginCustomer(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	LoginEmployee(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	EnsureEmployee(ctx context.Context, username, password string) error
}

type AuthServiceImpl struct {
	store           repository.Store
	accounts        *AccountServiceImpl
	hasher          auth.PasswordHasher
	issuer          auth.Issuer
	limiter         ratelimit.Limiter
	startingBalance decimal.Decimal
	logger          *zap.Logger
}

func NewAuthService(store repository.Store, accounts *AccountServiceImpl, hasher auth.PasswordHasher, issuer auth.Issuer, limiter ratelimit.Limiter, startingBalance decimal.Decimal, logger *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		store:           store,
		accounts:        accounts,
		hasher:          hasher,
		issuer:          issuer,
		limiter:         limiter,
		startingBalance: startingBalance,
		logger:          logger,
	}
}

func (s *AuthServiceImpl) RegisterCustomer(ctx context.Context, req *models.RegisterRequest) (*models.Account, error) {
	if err := validation.Registration(req); err != nil {
		s.logger.Warn("invalid registration request",
			zap.String("username", req.UserName),
			zap.Error(err),
		)
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return nil, err
	}

	account := &models.Account{
		AccountNumber: req.AccountNumber,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Username:      req.UserName,
		Email:         req.Email,
		IDNumber:      req.IDNumber,
		PasswordHash:  hash,
		Balance:       s.startingBalance,
		Role:          models.RoleCustomer,
	}
	if err := s.accounts.CreateAccount(ctx, account, req.UserName); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AuthServiceImpl) LoginCustomer(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if req.Username == "" || req.AccountNumber == "" || req.Password == "" {
		return nil, errors.NewValidationError("username", "username, account number and password are required")
	}
	return s.login(ctx, models.RoleCustomer, req)
}

func (s *AuthServiceImpl) LoginEmployee(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errors.NewValidationError("username", "username and password are required")
	}
	return s.login(ctx, models.RoleEmployee, req)
}

// login counts every failed attempt against the username. Once the limiter
// blocks the key, even correct credentials are refused until the block ends.
func (s *AuthServiceImpl) login(ctx context.Context, role models.Role, req *models.LoginRequest) (*models.LoginResponse, error) {
	key := "login:" + string(role) + ":" + strings.ToLower(req.Username)

	_, blocked, err := s.limiter.Blocked(ctx, key)
	if err != nil {
		// fail open when the limiter backend is down
		s.logger.Warn("login limiter unavailable", zap.Error(err))
	}
	if blocked {
		metrics.LoginFailuresTotal.WithLabelValues(string(role), "blocked").Inc()
		s.logger.Warn("login blocked", zap.String("username", req.Username), zap.String("role", string(role)))
		return nil, errors.ErrTooManyAttempts
	}

	var account *models.Account
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		account, err = tx.Accounts().GetAccountByUsername(ctx, req.Username)
		return err
	})
	if err != nil && !errors.IsNotFound(err) {
		s.logger.Error("failed to load account for login", zap.Error(err))
		return nil, errors.Wrap("login", err)
	}

	if account == nil ||
		account.Role != role ||
		(role == models.RoleCustomer && account.AccountNumber != req.AccountNumber) ||
		s.hasher.Compare(account.PasswordHash, req.Password) != nil {
		return nil, s.failLogin(ctx, key, role, req.Username)
	}

	if err := s.limiter.Reset(ctx, key); err != nil {
		s.logger.Warn("failed to reset login limiter", zap.Error(err))
	}

	identity := auth.Identity{Username: account.Username, Role: account.Role}
	if role == models.RoleCustomer {
		identity.AccountNumber = account.AccountNumber
	}
	token, err := s.issuer.Issue(identity)
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		return nil, err
	}

	s.logger.Info("login successful", zap.String("username", account.Username), zap.String("role", string(role)))
	return &models.LoginResponse{
		Message:       "Authentication successful",
		Token:         token,
		Username:      account.Username,
		AccountNumber: identity.AccountNumber,
		Role:          account.Role,
	}, nil
}

func (s *AuthServiceImpl) failLogin(ctx context.Context, key string, role models.Role, username string) error {
	res, err := s.limiter.Hit(ctx, key)
	if err != nil {
		s.logger.Warn("login limiter unavailable", zap.Error(err))
	} else if !res.Allowed {
		metrics.LoginFailuresTotal.WithLabelValues(string(role), "blocked").Inc()
		s.logger.Warn("too many failed logins", zap.String("username", username), zap.Duration("retry_after", res.RetryAfter))
		return errors.ErrTooManyAttempts
	}

	metrics.LoginFailuresTotal.WithLabelValues(string(role), "invalid_credentials").Inc()
	s.logger.Warn("invalid credentials", zap.String("username", username), zap.String("role", string(role)))
	return errors.ErrInvalidCredentials
}

// EnsureEmployee creates the employee account on first boot and leaves an
// existing one alone.
func (s *AuthServiceImpl) EnsureEmployee(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.NewValidationError("username", "employee username and password are required")
	}

	var existing *models.Account
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		existing, err = tx.Accounts().GetAccountByUsername(ctx, username)
		return err
	})
	if err == nil {
		if existing.Role != models.RoleEmployee {
			return errors.ErrUsernameTaken
		}
		return nil
	}
	if !errors.IsNotFound(err) {
		return errors.Wrap("ensure employee", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	account := &models.Account{
		AccountNumber: employeeAccountNumber(),
		FirstName:     username,
		Username:      username,
		PasswordHash:  hash,
		Balance:       decimal.Zero,
		Role:          models.RoleEmployee,
	}
	err = s.accounts.CreateAccount(ctx, account, "system")
	if errors.Is(err, errors.ErrUsernameTaken) {
		// another instance seeded it first
		return nil
	}
	return err
}

func employeeAccountNumber() string {
	return "EMP" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
