package server

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// signToken builds an HS256 stream token with the given claims.
func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// userToken builds a valid one-hour stream token for the given user.
func userToken(t *testing.T, secret string, userID uuid.UUID) string {
	t.Helper()
	return signToken(t, secret, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func TestAuthenticate_ValidToken(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	got, err := authenticate(userToken(t, testSecret, userID), testSecret)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got != userID {
		t.Errorf("user id: want %s, got %s", userID, got)
	}
}

func TestAuthenticate_Rejections(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	hourFromNow := time.Now().Add(time.Hour).Unix()

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": userID.String(),
		"exp": hourFromNow,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	hs512Token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": userID.String(),
		"exp": hourFromNow,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign hs512 token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"empty", ""},
		{"wrong secret", userToken(t, "another-secret-another-secret!!", userID)},
		{"none algorithm", noneToken},
		{"hs512 algorithm", hs512Token},
		{"expired", signToken(t, testSecret, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(-time.Minute).Unix(),
		})},
		{"missing subject", signToken(t, testSecret, jwt.MapClaims{
			"exp": hourFromNow,
		})},
		{"subject not a user id", signToken(t, testSecret, jwt.MapClaims{
			"sub": "bob",
			"exp": hourFromNow,
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := authenticate(tt.token, testSecret)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("want ErrInvalidToken, got %v", err)
			}
			if got != uuid.Nil {
				t.Errorf("rejected token must not yield a user id, got %s", got)
			}
		})
	}
}
