package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTokenRequiresCredentials(t *testing.T) {
	s := NewSession(Credentials{})
	if _, err := s.Token(); err != ErrMissingCredentials {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	s = NewSession(Credentials{AccessKey: "key"})
	if _, err := s.Token(); err != ErrMissingCredentials {
		t.Fatalf("expected ErrMissingCredentials without secret, got %v", err)
	}
}

func TestTokenIsCached(t *testing.T) {
	s := NewSession(Credentials{AccessKey: "ak", SecretKey: "sk"})
	if s.Authenticated() {
		t.Fatalf("expected session to start unauthenticated")
	}
	first, err := s.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	second, err := s.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached token to be reused")
	}
	if !s.Authenticated() {
		t.Fatalf("expected session to be authenticated")
	}
}

func TestInvalidateForcesResign(t *testing.T) {
	s := NewSession(Credentials{AccessKey: "ak", SecretKey: "sk"})
	first, _ := s.Token()
	s.Invalidate()
	if s.Authenticated() {
		t.Fatalf("expected session to be unauthenticated after invalidate")
	}
	second, _ := s.Token()
	// nonce differs per sign, so tokens must differ
	if first == second {
		t.Fatalf("expected a fresh token after invalidate")
	}
}

func TestExpireFuncTriggersResign(t *testing.T) {
	s := NewSession(Credentials{AccessKey: "ak", SecretKey: "sk"})
	s.ExpireFunc = func(issuedAt time.Time) bool { return true }
	first, _ := s.Token()
	second, _ := s.Token()
	if first == second {
		t.Fatalf("expected ExpireFunc to force a re-sign")
	}
}

func TestTokenShapeAndSignature(t *testing.T) {
	s := NewSession(Credentials{AccessKey: "ak", SecretKey: "sk"})
	token, err := s.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected compact three-part token, got %d parts", len(parts))
	}

	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["access_key"] != "ak" {
		t.Fatalf("expected access_key in payload, got %v", payload)
	}
	if payload["nonce"] == "" {
		t.Fatalf("expected nonce in payload")
	}

	mac := hmac.New(sha256.New, []byte("sk"))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if parts[2] != want {
		t.Fatalf("signature mismatch")
	}

	header, err := s.AuthorizationHeader()
	if err != nil {
		t.Fatalf("authorization header: %v", err)
	}
	if header != "Bearer "+token {
		t.Fatalf("unexpected header %q", header)
	}
}
