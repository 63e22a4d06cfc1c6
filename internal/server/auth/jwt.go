// Package auth issues and verifies the access tokens that carry a
// synchronizing identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the standard claims plus the identity whose knowledge vector
// the bearer may read and advance.
type Claims struct {
	jwt.RegisteredClaims
	Identity string `json:"identity"`
}

func GenerateToken(identity string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Identity: identity,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// IdentityFromToken verifies tokenString and returns its identity. Every
// failure wraps ErrInvalidToken.
func IdentityFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("token expired: %w", common.ErrInvalidToken)
		}
		return "", fmt.Errorf("%v: %w", err, common.ErrInvalidToken)
	}

	if !token.Valid || claims.Identity == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Identity, nil
}
