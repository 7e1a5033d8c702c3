package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidate(t *testing.T) {
	a := NewAuthenticator("test-secret")

	token, expiresAt, err := a.GenerateToken("557058:abc", "cloud-1", []string{"Admin", "viewer", "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	claims, err := a.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "557058:abc" || claims.OrgID != "cloud-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" || claims.Roles[1] != "viewer" {
		t.Fatalf("roles were not normalised: %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	a := NewAuthenticator("test-secret")
	other := NewAuthenticator("other-secret")

	token, _, err := other.GenerateToken("u1", "cloud-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := a.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := a.GenerateToken("u1", "cloud-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	a.now = time.Now
	if _, err := a.ParseAndValidate(old); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsTokenWithoutOrg(t *testing.T) {
	a := NewAuthenticator("test-secret")
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := a.ParseAndValidate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestDisabledAuthenticator(t *testing.T) {
	a := NewAuthenticator("  ")
	if a.Enabled() {
		t.Fatal("blank secret must disable auth")
	}
	if _, _, err := a.GenerateToken("u1", "cloud-1", nil, time.Minute); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestGenerateValidation(t *testing.T) {
	a := NewAuthenticator("test-secret")
	cases := []struct {
		name    string
		subject string
		org     string
		ttl     time.Duration
	}{
		{"missing subject", "", "cloud-1", time.Minute},
		{"missing org", "u1", " ", time.Minute},
		{"zero ttl", "u1", "cloud-1", 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := a.GenerateToken(tc.subject, tc.org, nil, tc.ttl); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), Principal{Subject: "u7", OrgID: "cloud-1"})
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.OrgID != "cloud-1" {
		t.Fatalf("unexpected principal: %+v ok=%v", p, ok)
	}
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "u7" {
		t.Fatalf("unexpected user id: %s ok=%v", id, ok)
	}
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal")
	}
}
