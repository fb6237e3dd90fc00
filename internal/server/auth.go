package server

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every way a stream token can fail verification:
// bad signature, wrong algorithm, expiry, or a malformed subject.
var ErrInvalidToken = errors.New("server: invalid token")

// authenticate verifies the path-embedded bearer token and returns the user
// it was issued to. Tokens are HS256 JWTs whose subject claim carries the
// user id.
func authenticate(token, secret string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return userID, nil
}
