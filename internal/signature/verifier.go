// Package signature validates that inbound webhook batches genuinely
// originated from the CRM platform. Verification runs against the raw,
// unparsed request body before any processing; a failed check rejects the
// whole batch.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"

	"crm-insights/internal/common/logging"
)

// Header is the platform's v3 signature header over the raw body.
const Header = "X-HubSpot-Signature-v3"

// LegacyHeader carries the older composite-string signature.
const LegacyHeader = "X-HubSpot-Signature"

// Verifier checks webhook signatures against the shared app secret
type Verifier struct {
	secret []byte
	logger logging.Logger
}

// NewVerifier creates a new signature verifier
func NewVerifier(secret string, logger logging.Logger) *Verifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Verifier{
		secret: []byte(secret),
		logger: logger,
	}
}

// Verify checks the v3 scheme: base64(HMAC-SHA256(secret, rawBody)).
// A missing signature, secret, or body always fails; comparison is
// constant-time.
func (v *Verifier) Verify(rawBody []byte, headerSignature string) bool {
	if len(v.secret) == 0 || headerSignature == "" || len(rawBody) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(headerSignature), []byte(expected)) {
		v.logger.Warn("Webhook signature mismatch",
			logging.Field{Key: "header", Value: Header},
		)
		return false
	}

	return true
}

// VerifyComposite checks the platform's composite-string variant, signed over
// method + requestURI + rawBody. Used by endpoints still on the older scheme.
func (v *Verifier) VerifyComposite(method, requestURI string, rawBody []byte, headerSignature string) bool {
	if len(v.secret) == 0 || headerSignature == "" {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(method))
	mac.Write([]byte(requestURI))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(headerSignature), []byte(expected))
}

// VerifyRequest verifies an already-read request body against whichever
// signature header r carries, preferring the v3 scheme.
func (v *Verifier) VerifyRequest(r *http.Request, rawBody []byte) bool {
	if sig := r.Header.Get(Header); sig != "" {
		return v.Verify(rawBody, sig)
	}
	if sig := r.Header.Get(LegacyHeader); sig != "" {
		return v.VerifyComposite(r.Method, r.URL.RequestURI(), rawBody, sig)
	}
	return false
}
