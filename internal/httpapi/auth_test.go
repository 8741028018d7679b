package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"sodaledger/backend/internal/cache"
	"sodaledger/backend/internal/domain"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	resp, err := manager.Issue(domain.Actor{Username: "rina", Role: domain.RoleStaff})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if resp.Username != "rina" || resp.Role != domain.RoleStaff || resp.ExpiresAt == "" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	session, err := manager.ParseToken(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if session.Actor.Username != "rina" || session.Actor.Role != domain.RoleStaff {
		t.Fatalf("unexpected actor %+v", session.Actor)
	}
	if session.TokenID == "" {
		t.Fatalf("expected token id")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, nil)
	verifier := NewAuthManager("secret-two", time.Hour, nil)

	resp, err := issuer.Issue(domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.ParseToken(context.Background(), resp.AccessToken); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Minute, nil)
	issuedAt := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return issuedAt }

	resp, err := manager.Issue(domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := manager.ParseToken(context.Background(), resp.AccessToken); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "mallory",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "owner",
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(context.Background(), token); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	denylist := cache.NewMemoryTokenDenylist()
	manager := NewAuthManager("test-secret", time.Hour, denylist)
	ctx := context.Background()

	resp, err := manager.Issue(domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	session, err := manager.ParseToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := manager.Revoke(ctx, session); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := manager.ParseToken(ctx, resp.AccessToken); !errors.Is(err, errRevokedToken) {
		t.Fatalf("expected revoked token, got %v", err)
	}

	other, _ := manager.Issue(domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	if _, err := manager.ParseToken(ctx, other.AccessToken); err != nil {
		t.Fatalf("expected a fresh token to stay valid: %v", err)
	}
}
