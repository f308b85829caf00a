package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PabloGalante/farum-chats/internal/domain"
)

// Claims carried by a caller token. ID is the user identity the chat store trusts.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 bearer tokens issued by the auth service.
type JWTProvider struct {
	secret []byte
	now    func() time.Time
}

func NewJWTProvider(secret string) (*JWTProvider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTProvider{secret: []byte(secret), now: time.Now}, nil
}

// Verify implements domain.IdentityProvider.
func (p *JWTProvider) Verify(ctx context.Context, token string) (domain.UserID, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	id := claims.ID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return "", fmt.Errorf("%w: token carries no user id", domain.ErrUnauthenticated)
	}
	return domain.UserID(id), nil
}

// Issue signs a token for user, valid for ttl. Used by local tooling and tests;
// production tokens come from the auth service.
func (p *JWTProvider) Issue(user domain.UserID, username string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		ID:       string(user),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
