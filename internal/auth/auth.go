package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/riteshkumar/bank-payments/internal/models"
)

var ErrInvalidToken = stderrors.New("invalid token")

// Identity is the verified caller. Core services only ever see this, never a token.
type Identity struct {
	AccountNumber string      `json:"account_number,omitempty"`
	Username      string      `json:"username"`
	Role          models.Role `json:"role"`
}

func (i Identity) IsEmployee() bool {
	return i.Role == models.RoleEmployee
}

func (i Identity) IsCustomer() bool {
	return i.Role == models.RoleCustomer
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type Issuer interface {
	Issue(identity Identity) (string, error)
}

type Claims struct {
	AccountNumber string `json:"acc,omitempty"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 tokens.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTManager(secret, issuer string, ttl time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *JWTManager) Issue(identity Identity) (string, error) {
	now := m.now()
	claims := Claims{
		AccountNumber: identity.AccountNumber,
		Username:      identity.Username,
		Role:          string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (m *JWTManager) Verify(ctx context.Context, tokenStr string) (Identity, error) {
	claims := new(Claims)
	parser := jwt.NewParser(
		jwt.WithIssuer(m.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)

	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	role := models.Role(claims.Role)
	if role != models.RoleCustomer && role != models.RoleEmployee {
		return Identity{}, ErrInvalidToken
	}
	if role == models.RoleCustomer && claims.AccountNumber == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		AccountNumber: claims.AccountNumber,
		Username:      claims.Username,
		Role:          role,
	}, nil
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
