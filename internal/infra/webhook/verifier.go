// Package webhook verifies signed platform webhook deliveries.
//
// Deliveries follow the Standard Webhooks scheme: the signed content is
// "{webhook-id}.{webhook-timestamp}.{body}", signed with HMAC-SHA256 and sent
// as one or more space separated "v1,<base64>" entries in webhook-signature.
package webhook

import (
	"errors"
	"net/http"
	"strings"
	"time"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

// Header names.
const (
	HeaderID        = standardwebhooks.HeaderWebhookID
	HeaderTimestamp = standardwebhooks.HeaderWebhookTimestamp
	HeaderSignature = standardwebhooks.HeaderWebhookSignature
)

var (
	ErrMissingHeaders   = errors.New("webhook: missing signature headers")
	ErrInvalidTimestamp = errors.New("webhook: invalid timestamp")
	ErrTimestampSkew    = errors.New("webhook: timestamp outside tolerance")
	ErrNoMatch          = errors.New("webhook: no matching signature")
	ErrNoSecret         = errors.New("webhook: secret is not configured")
)

// Verifier checks webhook signatures against a shared secret. Deliveries
// older or newer than five minutes are rejected.
type Verifier struct {
	wh *standardwebhooks.Webhook
}

// NewVerifier creates a verifier. A "whsec_" prefixed secret is base64
// decoded; any other secret is used as raw bytes. An empty secret yields a
// verifier that rejects everything with ErrNoSecret.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	if strings.HasPrefix(secret, "whsec_") {
		if wh, err := standardwebhooks.NewWebhook(secret); err == nil {
			return &Verifier{wh: wh}
		}
	}
	wh, _ := standardwebhooks.NewWebhookRaw([]byte(secret))
	return &Verifier{wh: wh}
}

// Verify checks the signature headers against body and returns the delivery
// id on success.
func (v *Verifier) Verify(h http.Header, body []byte) (string, error) {
	if v == nil || v.wh == nil {
		return "", ErrNoSecret
	}
	if err := v.wh.Verify(body, h); err != nil {
		switch {
		case errors.Is(err, standardwebhooks.ErrRequiredHeaders):
			return "", ErrMissingHeaders
		case errors.Is(err, standardwebhooks.ErrInvalidHeaders):
			return "", ErrInvalidTimestamp
		case errors.Is(err, standardwebhooks.ErrMessageTooOld), errors.Is(err, standardwebhooks.ErrMessageTooNew):
			return "", ErrTimestampSkew
		default:
			return "", ErrNoMatch
		}
	}
	return h.Get(HeaderID), nil
}

// Sign returns the "v1,<base64>" signature header value for a delivery.
func (v *Verifier) Sign(id string, at time.Time, body []byte) (string, error) {
	if v == nil || v.wh == nil {
		return "", ErrNoSecret
	}
	return v.wh.Sign(id, at, body)
}
