package auth

import (
	"net/http"
	"testing"
)

func TestCookieResolverSignAndVerify(t *testing.T) {
	r := NewCookieResolver([]byte("test-secret"))
	value := r.Sign("user-42")

	h := make(http.Header)
	h.Set("Cookie", r.CookieName+"="+value)

	userID, ok := r.ResolveUserFromHeaders(h)
	if !ok || userID != "user-42" {
		t.Fatalf("ResolveUserFromHeaders = (%q, %v), want (user-42, true)", userID, ok)
	}
}

func TestCookieResolverRejectsTamperedSignature(t *testing.T) {
	r := NewCookieResolver([]byte("test-secret"))
	value := r.Sign("user-42")

	h := make(http.Header)
	h.Set("Cookie", r.CookieName+"="+"user-99"+value[len("user-42"):])

	if _, ok := r.ResolveUserFromHeaders(h); ok {
		t.Fatal("tampered cookie should not resolve")
	}
}

func TestCookieResolverRejectsDifferentSecret(t *testing.T) {
	signer := NewCookieResolver([]byte("secret-a"))
	verifier := NewCookieResolver([]byte("secret-b"))
	value := signer.Sign("user-42")

	h := make(http.Header)
	h.Set("Cookie", verifier.CookieName+"="+value)

	if _, ok := verifier.ResolveUserFromHeaders(h); ok {
		t.Fatal("a cookie signed with a different secret should not verify")
	}
}

func TestCookieResolverMissingCookie(t *testing.T) {
	r := NewCookieResolver([]byte("test-secret"))
	if _, ok := r.ResolveUserFromHeaders(make(http.Header)); ok {
		t.Fatal("missing cookie should not resolve")
	}
}

func TestBuildCookieHeaderFromSessionParam(t *testing.T) {
	r := NewCookieResolver([]byte("test-secret"))
	value := r.Sign("user-42")

	h := BuildCookieHeaderFromSessionParam(value)
	userID, ok := r.ResolveUserFromHeaders(h)
	if !ok || userID != "user-42" {
		t.Fatalf("ResolveUserFromHeaders via session param = (%q, %v), want (user-42, true)", userID, ok)
	}
}
