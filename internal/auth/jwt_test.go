package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWT_RoundTrip(t *testing.T) {
	token, err := GenerateJWT("secret", "EQabc", "member", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Identity != "EQabc" || claims.Subject != "EQabc" || claims.Role != "member" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestJWT_Rejections(t *testing.T) {
	good, _ := GenerateJWT("secret", "EQabc", "member", time.Hour)
	expired, _ := GenerateJWT("secret", "EQabc", "member", -time.Hour)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Identity: "EQabc",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "EQabc",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	foreignStr, _ := foreign.SignedString([]byte("secret"))

	tests := []struct {
		name, secret, token string
	}{
		{"wrong secret", "other", good},
		{"garbage", "secret", "not-a-jwt"},
		{"foreign issuer", "secret", foreignStr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	// non-positive expiration falls back to 24h
	if _, err := ParseJWT("secret", expired); err != nil {
		t.Fatalf("default expiration: %v", err)
	}

	if _, err := GenerateJWT("secret", "", "member", time.Hour); err == nil {
		t.Fatal("expected error for empty identity")
	}
}
