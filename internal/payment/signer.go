package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/campuskit/campuskit/internal/validation"
)

// Signer verifies gateway callback signatures with HMAC-SHA256 over the
// shared secret. The gateway signs "order_id|payment_id"; a forged or
// corrupted callback fails closed here before any state is touched.
type Signer struct {
	secret []byte
}

// NewSigner creates a new HMAC signer from the gateway shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign computes the hex HMAC-SHA256 signature for an order/payment pair.
func (s *Signer) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the supplied signature against the expected one in
// constant time. A signature that is not even hex cannot match a digest,
// so it is rejected up front.
func (s *Signer) Verify(orderID, paymentID, signature string) bool {
	if s == nil || len(s.secret) == 0 {
		return false
	}
	if !validation.IsValidHex(signature) {
		return false
	}
	expected := s.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
