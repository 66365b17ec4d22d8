package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/lipsync/pkg/response"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Webhook-Signature"

// WebhookSignature verifies provider callbacks against a shared secret.
// With an empty secret every request passes.
func WebhookSignature(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		if len(key) == 0 {
			return c.Next()
		}

		got := strings.TrimPrefix(strings.TrimSpace(c.Get(SignatureHeader)), "sha256=")
		sig, err := hex.DecodeString(got)
		if err != nil || len(sig) == 0 {
			return response.InvalidSignature(c)
		}

		if !hmac.Equal(sig, Sign(key, c.Body())) {
			return response.InvalidSignature(c)
		}
		return c.Next()
	}
}

// Sign returns the HMAC-SHA256 of body under key
func Sign(key, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return mac.Sum(nil)
}
