package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verifier checks the authenticity proof attached to gateway payment
// confirmations. The proof is an HMAC-SHA256 over "intentID|confirmationID"
// keyed with the shared webhook secret, hex encoded.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier around the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign computes the expected proof for the given identifiers.
func (v *Verifier) Sign(intentID, confirmationID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(intentID))
	mac.Write([]byte("|"))
	mac.Write([]byte(confirmationID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the supplied proof matches the expected HMAC.
// Comparison is constant time.
func (v *Verifier) Verify(intentID, confirmationID, proof string) bool {
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return false
	}
	got, err := hex.DecodeString(proof)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(intentID))
	mac.Write([]byte("|"))
	mac.Write([]byte(confirmationID))
	return hmac.Equal(got, mac.Sum(nil))
}
