package config

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleStaff = "staff"

var ErrMissingSecret = errors.New("JWT_SECRET is not set")

type JWTClaims struct {
	Role    string `json:"role"`
	Station string `json:"station,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a staff token valid for ttl.
func GenerateToken(secret, station string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := JWTClaims{
		Role:    RoleStaff,
		Station: station,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenString string) (*JWTClaims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}
