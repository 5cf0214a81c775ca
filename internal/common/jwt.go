package common

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity payload minted by the identity service. This
// subsystem only parses tokens; it never issues them.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// ParseIdentity validates the token signature and expiry and returns the
// embedded identity claims.
func ParseIdentity(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.UserID == "" {
			return nil, errors.New("token missing user_id")
		}
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
