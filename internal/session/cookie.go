package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// CookieName is the session cookie issued to browsers.
const CookieName = "stash_session"

// ErrInvalidCookie is returned for malformed or tampered cookie values.
var ErrInvalidCookie = errors.New("invalid session cookie")

// EncodeCookie produces the cookie value for a session id: the id followed
// by an HMAC-SHA256 signature over it, "id.sig". The id is opaque; all
// session state lives server-side.
func EncodeCookie(secret []byte, sessionID string) string {
	return sessionID + "." + sign(secret, sessionID)
}

// DecodeCookie verifies the signature and returns the session id. A cookie
// that fails verification reads as anonymous, never as an error page.
func DecodeCookie(secret []byte, value string) (string, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 || parts[0] == "" {
		return "", ErrInvalidCookie
	}
	expected := sign(secret, parts[0])
	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return "", ErrInvalidCookie
	}
	return parts[0], nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}

func newSessionID() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
