package razorpay

import "github.com/razorpay/razorpay-go/utils"

// SignatureHeader carries the webhook payload signature.
const SignatureHeader = "X-Razorpay-Signature"

// EventIDHeader carries the gateway's unique delivery id.
const EventIDHeader = "X-Razorpay-Event-Id"

// VerifyWebhookSignature recomputes the HMAC-SHA256 of body under the
// configured webhook secret and compares it in constant time against the
// header value. Fail-closed: a missing secret, missing signature, or any
// mismatch all report invalid.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c == nil || c.webhookSecret == "" || signature == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, c.webhookSecret)
}
