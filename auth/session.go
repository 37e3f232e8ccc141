// Package auth manages the signed credential required by the venue's
// private websocket channels.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrMissingCredentials is returned when a private watch is requested
// without an access key pair configured. This is a configuration error and
// is never retried.
var ErrMissingCredentials = errors.New("auth: access key and secret key are required for private channels")

// Credentials holds the venue API key pair.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Session caches the signed private-channel token. The token is built
// lazily on the first private watch and reused for every private
// connection opened afterwards. The venue does not document a token
// lifetime, so the session never expires on its own; callers needing a
// refresh policy set ExpireFunc or call Invalidate explicitly.
type Session struct {
	// ExpireFunc, when set, is consulted before reusing a cached token.
	// Returning true forces a re-sign. Must be set before first use.
	ExpireFunc func(issuedAt time.Time) bool

	creds Credentials

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewSession creates an unauthenticated session for the given credentials.
func NewSession(creds Credentials) *Session {
	return &Session{creds: creds}
}

// Token returns the cached signed token, building one on first use.
func (s *Session) Token() (string, error) {
	if s.creds.AccessKey == "" || s.creds.SecretKey == "" {
		return "", ErrMissingCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.ExpireFunc == nil || !s.ExpireFunc(s.issuedAt)) {
		return s.token, nil
	}

	token, err := signToken(s.creds.AccessKey, s.creds.SecretKey, uuid.New().String())
	if err != nil {
		return "", err
	}
	s.token = token
	s.issuedAt = time.Now()
	return s.token, nil
}

// AuthorizationHeader returns the bearer header value for the cached token.
func (s *Session) AuthorizationHeader() (string, error) {
	token, err := s.Token()
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// Authenticated reports whether a token has been issued and not invalidated.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Invalidate clears the cached token. The next private watch re-signs.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.issuedAt = time.Time{}
	s.mu.Unlock()
}

// signToken produces the compact JWT the venue expects: HMAC-SHA256 over an
// access-key plus nonce payload.
func signToken(accessKey, secretKey, nonce string) (string, error) {
	header, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]string{
		"access_key": accessKey,
		"nonce":      nonce,
	})
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(header) + "." + enc.EncodeToString(payload)

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(signingInput))
	return signingInput + "." + enc.EncodeToString(mac.Sum(nil)), nil
}
