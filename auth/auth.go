// Package auth implements the Auth Resolver (C10): the single capability
// the gateway core consumes from the external authentication system,
// `ResolveUserFromHeaders(headers) -> userId or unauthenticated`, per
// spec.md §1's out-of-scope boundary and SPEC_FULL.md §4.10.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

// Resolver is the capability the gateway depends on; a real deployment
// backs it with whatever session store the surrounding product uses.
type Resolver interface {
	ResolveUserFromHeaders(h http.Header) (userID string, ok bool)
}

// CookieResolver implements Resolver against a single HMAC-signed
// cookie, `__session`, whose value is `<userId>.<base64(hmac)>`. This is
// the "equivalent cryptographic proof" spec.md §9 calls for in place of
// trusting a bare userId query parameter.
type CookieResolver struct {
	CookieName string
	Secret     []byte
}

// NewCookieResolver returns a CookieResolver keyed by secret, reading
// the cookie named "__session" by default.
func NewCookieResolver(secret []byte) *CookieResolver {
	return &CookieResolver{CookieName: "__session", Secret: secret}
}

// ResolveUserFromHeaders extracts and verifies the session cookie from a
// raw Cookie header.
func (r *CookieResolver) ResolveUserFromHeaders(h http.Header) (string, bool) {
	req := http.Request{Header: h}
	cookie, err := req.Cookie(r.CookieName)
	if err != nil {
		return "", false
	}
	return r.verify(cookie.Value)
}

func (r *CookieResolver) verify(value string) (string, bool) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 {
		return "", false
	}
	userID, sig := parts[0], parts[1]

	want := r.sign(userID)
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}

	if !hmac.Equal(want, got) {
		return "", false
	}
	return userID, true
}

// Sign returns the cookie value for userID, for use by whatever issues
// the cookie (outside the gateway's scope, but useful for tests and the
// CLI client's local dev mode).
func (r *CookieResolver) Sign(userID string) string {
	return userID + "." + base64.RawURLEncoding.EncodeToString(r.sign(userID))
}

func (r *CookieResolver) sign(userID string) []byte {
	mac := hmac.New(sha256.New, r.Secret)
	mac.Write([]byte(userID))
	return mac.Sum(nil)
}

// BuildCookieHeaderFromSessionParam implements the compatibility
// fallback in spec.md §4.6 bullet 4: a `session=<url-encoded-value>`
// query parameter is interpreted as cookie `__session=<value>` before
// resolution.
func BuildCookieHeaderFromSessionParam(sessionValue string) http.Header {
	h := make(http.Header)
	h.Set("Cookie", "__session="+sessionValue)
	return h
}
