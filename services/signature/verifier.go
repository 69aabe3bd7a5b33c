// Package signature authenticates inbound payment-gateway webhooks.
//
// The gateway signs the raw request body with a shared secret using
// HMAC-SHA256 and sends the hex-encoded tag in a signature header. A
// payload is trusted only when the recomputed tag matches the claimed one.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier validates webhook payload signatures. It is stateless and safe
// for concurrent use.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier bound to the gateway's shared secret
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Sign computes the hex-encoded HMAC-SHA256 tag for body. Exposed so
// outbound callbacks and tests can produce valid signatures.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether claimedSignature is the valid tag for rawBody.
// It returns false, never an error, on malformed input: a missing
// signature, an empty body, or an empty secret all fail verification.
//
// The comparison is constant-time. A naive byte-by-byte equality check
// would leak the position of the first mismatch through response timing,
// letting an attacker forge a tag incrementally.
func (v *Verifier) Verify(rawBody []byte, claimedSignature string) bool {
	return Verify(v.secret, rawBody, claimedSignature)
}

// Verify is the secret-explicit form of Verifier.Verify
func Verify(secret, rawBody []byte, claimedSignature string) bool {
	if len(secret) == 0 || len(rawBody) == 0 || claimedSignature == "" {
		return false
	}

	claimed, err := hex.DecodeString(claimedSignature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	// hmac.Equal is constant-time
	return hmac.Equal(expected, claimed)
}
