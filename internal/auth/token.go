// Package auth verifies the bearer tokens presented by HTTP and realtime
// clients and issues tokens for development.
package auth

import (
	"errors"
	"fmt"
	"time"

	"chat-presence/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the username in the unique_name claim.
type Claims struct {
	Username string `json:"unique_name"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs an HS256 token for username.
func (s *TokenService) Issue(username string) (string, error) {
	now := s.now()
	claims := Claims{
		Username: models.NormalizeUsername(username),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   models.NormalizeUsername(username),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString and returns the
// normalized username it names.
func (s *TokenService) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	username := models.NormalizeUsername(claims.Username)
	if username == "" {
		return "", fmt.Errorf("%w: missing unique_name claim", ErrInvalidToken)
	}
	return username, nil
}
