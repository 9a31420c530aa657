package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex encoded HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckoutPayload is the message the gateway signs after a checkout.
func CheckoutPayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// VerifyPaymentSignature checks the signature the checkout widget returns
// to the client.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if c == nil || orderID == "" || paymentID == "" {
		return false
	}
	return verify(c.keySecret, CheckoutPayload(orderID, paymentID), signature)
}

// VerifyWebhookSignature checks a webhook delivery against the raw,
// unparsed request body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c == nil || len(body) == 0 {
		return false
	}
	return verify(c.webhookSecret, body, signature)
}

func verify(secret string, payload []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}
