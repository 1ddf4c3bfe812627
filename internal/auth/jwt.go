package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"Allowance/internal/domain/models"
)

var (
	ErrMissingToken = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims bind a signed token to a single user. Tokens are stateless: nothing
// is persisted and verification never touches storage.
type Claims struct {
	UserId int64  `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// NewToken issues an HS256 token for the user, valid for ttl from now.
func NewToken(user models.User, secret string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserId: user.Id,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})

	return token.SignedString([]byte(secret))
}

// ParseToken verifies signature and expiry and returns the embedded identity.
// All failures collapse into ErrInvalidToken so the caller cannot tell a
// forged token from an expired one.
func ParseToken(tokenStr string, secret string) (*Claims, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserId <= 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// FromHeader extracts the raw token from an "Authorization: Bearer <token>"
// header value. An absent header or an unrecognizable scheme is
// ErrMissingToken; the token itself is not inspected here.
func FromHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}

	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		return "", ErrMissingToken
	}

	return tokenStr, nil
}
