package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func newClaims(sub string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Email: "creator@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(newClaims("creator-1", time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	parsed, err := NewVerifier(secret, "authenticated").Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Subject != "creator-1" || parsed.Email != "creator@example.com" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewVerifier("wrong-secret", "").Parse(token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
	if _, err := NewVerifier(secret, "other-audience").Parse(token); err == nil {
		t.Fatal("expected audience mismatch error")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(newClaims("creator-1", -time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier(secret, "").Parse(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestRequireAuth(t *testing.T) {
	secret := "test-secret"
	v := NewVerifier(secret, "")
	h := RequireAuth(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CreatorIDFromContext(r.Context()) != "creator-9" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}

	token, err := SignHS256(newClaims("creator-9", time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, req)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}
}
