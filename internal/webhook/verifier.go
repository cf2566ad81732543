// Package webhook receives and validates signed notifications from the
// media hosting service.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Verifier checks webhook payload signatures against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier. The secret must be non-empty.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Sign returns the hex HMAC-SHA256 signature of payload's canonical form.
func (v *Verifier) Sign(payload map[string]any) (string, error) {
	canonical, err := canonicalize(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches payload. The comparison is
// constant-time.
func (v *Verifier) Verify(payload map[string]any, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := v.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalize renders payload as compact JSON with sorted keys, so both
// sides of the shared secret agree on the signed bytes.
func canonicalize(payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return data, nil
}
