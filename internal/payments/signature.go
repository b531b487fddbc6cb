package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignPayment computes the checkout signature the gateway hands the client:
// hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func SignPayment(secret, orderID, paymentID string) string {
	return sign(secret, []byte(orderID+"|"+paymentID))
}

// VerifyPaymentSignature checks a checkout signature in constant time. An
// empty secret never verifies.
func VerifyPaymentSignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || orderID == "" || paymentID == "" {
		return false
	}
	return equalHex(SignPayment(secret, orderID, paymentID), signature)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	return equalHex(sign(secret, body), signature)
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(expected, got string) bool {
	got = strings.ToLower(strings.TrimSpace(got))
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}
