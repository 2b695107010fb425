package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestIssueAndVerifyRoundtrip(t *testing.T) {
	auth := NewAuth([]byte("test-secret"), nil, "boards", "syncboard")

	token, err := auth.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := auth.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != "user-1" {
		t.Fatalf("expected user-1, got %s", got)
	}
}

func TestUserIDFromAuthHeaderRejectsMalformed(t *testing.T) {
	auth := NewAuth([]byte("test-secret"), nil, "", "")

	tests := map[string]string{
		"empty":           "",
		"no scheme":       "just-a-token",
		"wrong scheme":    "Basic abc123",
		"missing token":   "Bearer ",
		"garbage token":   "Bearer not.a.jwt",
		"wrong signature": mustSign(t, []byte("other-secret"), jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()}),
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.UserIDFromAuthHeader(header); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestUserIDFromAuthHeaderClaimChecks(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuth(secret, nil, "boards", "syncboard")
	now := time.Now()

	tests := map[string]jwt.MapClaims{
		"expired": {
			"sub": "user-1", "iss": "syncboard", "aud": "boards",
			"exp": now.Add(-2 * time.Hour).Unix(),
		},
		"missing sub": {
			"iss": "syncboard", "aud": "boards",
			"exp": now.Add(time.Hour).Unix(),
		},
		"wrong audience": {
			"sub": "user-1", "iss": "syncboard", "aud": "somewhere-else",
			"exp": now.Add(time.Hour).Unix(),
		},
		"wrong issuer": {
			"sub": "user-1", "iss": "impostor", "aud": "boards",
			"exp": now.Add(time.Hour).Unix(),
		},
	}
	for name, claims := range tests {
		t.Run(name, func(t *testing.T) {
			header := mustSign(t, secret, claims)
			if _, err := auth.UserIDFromAuthHeader(header); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without secret or JWKS")
		}
	}()
	NewAuth(nil, nil, "", "")
}

func mustSign(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}
