package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"balancio/internal/cache"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// maxRevoked bounds the revocation list; entries expire with their token.
const maxRevoked = 100000

// Claims is the JWT payload of a session token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 session tokens and keeps the set of
// revoked token ids until each token would have expired anyway.
type Tokens struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	now     func() time.Time
	revoked *cache.LRUCache[struct{}]
}

func NewTokens(secret string, ttl time.Duration, issuer string) *Tokens {
	return &Tokens{
		secret:  []byte(secret),
		ttl:     ttl,
		issuer:  issuer,
		now:     time.Now,
		revoked: cache.NewLRUCache[struct{}](maxRevoked, ttl),
	}
}

// Revocations exposes the revocation cache so it can be registered with a
// cache.Manager for periodic cleanup.
func (t *Tokens) Revocations() cache.Cleaner {
	return t.revoked
}

// Issue signs a new token for the user and returns it with its session.
func (t *Tokens) Issue(userID, email string) (string, Session, error) {
	now := t.now()
	s := Session{
		UserID:    userID,
		Email:     email,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(t.ttl).Truncate(time.Second),
	}
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.TokenID,
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, s, nil
}

// Verify parses token and returns its session.
func (t *Tokens) Verify(token string) (Session, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return Session{}, ErrInvalidToken
	}
	if _, revoked := t.revoked.Get(claims.ID); revoked {
		return Session{}, ErrTokenRevoked
	}
	return Session{
		UserID:    claims.Subject,
		Email:     claims.Email,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke ends s. Later Verify calls for the same token fail.
func (t *Tokens) Revoke(s Session) {
	ttl := s.ExpiresAt.Sub(t.now())
	if ttl <= 0 {
		return
	}
	t.revoked.SetWithTTL(s.TokenID, struct{}{}, ttl)
}
