package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"balancio/internal/auth"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/log"
)

// Registration is a validated sign-up request.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthResult is returned by every successful sign-in path.
type AuthResult struct {
	Token   string
	Session auth.Session
	User    core.User
}

// AuthService registers users and opens and closes their sessions.
type AuthService struct {
	store  ledger.UserStore
	tokens *auth.Tokens
	logger *log.Logger
	now    func() time.Time
}

func NewAuthService(store ledger.UserStore, tokens *auth.Tokens, logger *log.Logger) *AuthService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AuthService{
		store:  store,
		tokens: tokens,
		logger: logger.WithComponent(log.ComponentAuth),
		now:    time.Now,
	}
}

func (s *AuthService) issue(u core.User) (AuthResult, error) {
	token, sess, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, Session: sess, User: u}, nil
}

func (s *AuthService) Register(ctx context.Context, r Registration) (AuthResult, error) {
	email := core.NormalizeEmail(r.Email)
	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now().UTC()
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Timezone:     core.DefaultTimezone,
		Settings:     core.DefaultSettings(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return AuthResult{}, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID)
	return s.issue(u)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	u, err := s.store.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if errors.Is(err, ledger.ErrNotFound) {
		return AuthResult{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		s.logger.WarnContext(ctx, "Failed login", log.FieldUserID, u.ID)
		return AuthResult{}, err
	}
	return s.issue(u)
}

// Logout revokes the session's token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, sess auth.Session) {
	s.tokens.Revoke(sess)
	s.logger.InfoContext(ctx, "User logged out", log.FieldUserID, sess.UserID)
}

// OAuthLogin finds the user behind a verified provider profile, creating
// one on first sign-in, and returns a session token. It satisfies
// auth.LoginFunc.
func (s *AuthService) OAuthLogin(ctx context.Context, p auth.Profile) (string, error) {
	email := core.NormalizeEmail(p.Email)
	u, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		// first OAuth sign-in for a password account links the provider
		if u.OAuthProvider == "" {
			u.OAuthProvider = string(p.Provider)
			if u.Avatar == "" {
				u.Avatar = p.Avatar
			}
			u.UpdatedAt = s.now().UTC()
			if err := s.store.UpdateUser(ctx, u); err != nil {
				s.logger.WarnContext(ctx, "Failed to link OAuth provider", log.FieldUserID, u.ID, log.FieldError, err)
			}
		}
	case errors.Is(err, ledger.ErrNotFound):
		now := s.now().UTC()
		u = core.User{
			ID:            uuid.NewString(),
			Email:         email,
			FirstName:     p.FirstName,
			LastName:      p.LastName,
			Avatar:        p.Avatar,
			Timezone:      core.DefaultTimezone,
			OAuthProvider: string(p.Provider),
			Settings:      core.DefaultSettings(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := u.Validate(); err != nil {
			return "", err
		}
		if err := s.store.CreateUser(ctx, u); err != nil {
			return "", fmt.Errorf("create user: %w", err)
		}
		s.logger.InfoContext(ctx, "User registered via OAuth", log.FieldUserID, u.ID, log.FieldProvider, p.Provider)
	default:
		return "", fmt.Errorf("lookup user: %w", err)
	}

	res, err := s.issue(u)
	if err != nil {
		return "", err
	}
	return res.Token, nil
}
