package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Signature headers on inbound billing webhook deliveries.
const (
	HeaderSignature = "X-Billing-Signature"
	HeaderTimestamp = "X-Billing-Timestamp"
)

// maxSignatureAge bounds how stale a delivery may be before it is rejected as
// a possible replay.
const maxSignatureAge = 5 * time.Minute

var ErrBadSignature = errors.New("invalid webhook signature")

// Sign computes the hex HMAC-SHA256 of "timestamp.payload". Exported for the
// provider-simulation side of tests and tooling.
func Sign(secret string, timestamp int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", timestamp)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks authenticity before any state mutation. The
// timestamp is bound into the signature so a captured delivery cannot be
// replayed outside the age window.
func VerifySignature(secret string, payload []byte, signature string, timestamp int64) error {
	if secret == "" {
		return fmt.Errorf("%w: no shared secret configured", ErrBadSignature)
	}
	if signature == "" {
		return fmt.Errorf("%w: signature missing", ErrBadSignature)
	}

	age := time.Since(time.Unix(timestamp, 0))
	if age > maxSignatureAge {
		return fmt.Errorf("%w: timestamp too old (%v)", ErrBadSignature, age)
	}
	if age < -1*time.Minute {
		return fmt.Errorf("%w: timestamp in the future", ErrBadSignature)
	}

	expected := Sign(secret, timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrBadSignature)
	}
	return nil
}
