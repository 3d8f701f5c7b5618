package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const purposeAdmin = "admin_session"

// NewAdminToken issues a short-lived HS256 token for the dashboard admin.
func NewAdminToken(username, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":     username,
		"purpose": purposeAdmin,
		"exp":     time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseAdminToken validates an admin session token and returns the subject.
func ParseAdminToken(tokenStr, secret string) (string, error) {
	const op = "lib.jwt.ParseAdminToken"

	claims := jwt.MapClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: failed to parse token: %w", op, err)
	}

	if !parsedToken.Valid {
		return "", fmt.Errorf("%s: invalid token", op)
	}

	if purpose, ok := claims["purpose"].(string); !ok || purpose != purposeAdmin {
		return "", fmt.Errorf("%s: invalid token purpose", op)
	}

	if expFloat, ok := claims["exp"].(float64); ok {
		if time.Now().Unix() > int64(expFloat) {
			return "", fmt.Errorf("%s: token expired", op)
		}
	} else {
		return "", fmt.Errorf("%s: missing exp claim", op)
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("%s: missing sub claim", op)
	}

	return sub, nil
}
