// ABOUTME: Login flow for professional accounts
// ABOUTME: Verifies bcrypt credentials and issues session JWTs

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuideme/care-gateway/internal/store"
)

// ErrInvalidCredentials is returned for bad email/password combinations.
// Unknown accounts and wrong passwords are indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// defaultTokenTTL is how long an issued session token stays valid.
const defaultTokenTTL = 24 * time.Hour

// ProfessionalStore defines what the authenticator needs from storage
type ProfessionalStore interface {
	GetProfessionalByEmail(ctx context.Context, email string) (*store.Professional, error)
}

// Authenticator verifies professional credentials and issues session tokens.
type Authenticator struct {
	store    ProfessionalStore
	verifier *JWTVerifier
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAuthenticator creates an authenticator. A zero tokenTTL means the
// default of 24 hours.
func NewAuthenticator(st ProfessionalStore, verifier *JWTVerifier, tokenTTL time.Duration, logger *slog.Logger) *Authenticator {
	if tokenTTL == 0 {
		tokenTTL = defaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		store:    st,
		verifier: verifier,
		tokenTTL: tokenTTL,
		logger:   logger.With("component", "auth"),
	}
}

// Login checks the email/password pair and returns a signed session token
// with the matching account. Returns ErrInvalidCredentials when either half
// is wrong.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, *store.Professional, error) {
	professional, err := a.store.GetProfessionalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("looking up professional: %w", err)
	}

	if !CheckPassword(professional.PasswordHash, password) {
		a.logger.Warn("failed login attempt", "email", email)
		return "", nil, ErrInvalidCredentials
	}

	token, err := a.verifier.Generate(professional.ID, professional.Email, a.tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("generating token: %w", err)
	}

	a.logger.Info("professional logged in", "professional_id", professional.ID)
	return token, professional, nil
}
