package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes HMAC-SHA256(secret, "<created>.<body>"), hex-encoded
// lowercase, per spec.md §4.9. Stdlib crypto/hmac + crypto/sha256 is
// correct here: this is a three-line primitive, not a library concern.
func Sign(secret string, created int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", created)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds the "t=<created>,v1=<hex>" value spec.md §4.9
// and §6 specify for the Stripe-Signature / stripe-signature header.
func SignatureHeader(secret string, created int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", created, Sign(secret, created, body))
}

// Verify recomputes the signature and compares it in constant time,
// matching the real API's own verification idiom (and exercised by this
// mock's own sign_test.go, per spec.md §8 property 5).
func Verify(secret string, created int64, body []byte, signature string) bool {
	expected := Sign(secret, created, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
