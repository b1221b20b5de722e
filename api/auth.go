package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
)

// SessionVerifier authenticates callers of the fee-spending method. The
// session provider issuing tokens lives outside this subsystem; only
// verification happens here.
type SessionVerifier interface {
	// Verify returns the caller identity encoded in the token, or
	// ErrAuthRequired when the token is missing or invalid.
	Verify(token string) (string, error)
}

// HMACVerifier validates session tokens of the form "<caller>:<hexmac>"
// where the MAC is HMAC-SHA256 over the caller identity with the shared
// session secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

func (v *HMACVerifier) Verify(token string) (string, error) {
	if len(v.secret) == 0 || token == "" {
		return "", errs.ErrAuthRequired
	}

	caller, tag, found := strings.Cut(token, ":")
	if !found || caller == "" {
		return "", errs.ErrAuthRequired
	}

	given, err := hex.DecodeString(tag)
	if err != nil {
		return "", errs.ErrAuthRequired
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(caller))
	if !hmac.Equal(given, mac.Sum(nil)) {
		return "", errs.ErrAuthRequired
	}

	return caller, nil
}

// SignSession issues a token for the caller identity. Exposed for the
// session provider and for tests.
func (v *HMACVerifier) SignSession(caller string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(caller))
	return caller + ":" + hex.EncodeToString(mac.Sum(nil))
}
