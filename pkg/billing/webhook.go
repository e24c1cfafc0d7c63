package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the HTTP header carrying the provider signature
const SignatureHeader = "Stripe-Signature"

// DefaultSignatureTolerance bounds how old a signed timestamp may be before
// the event is rejected as a possible replay
const DefaultSignatureTolerance = 5 * time.Minute

// ErrBadSignature indicates the webhook payload failed authentication.
// No state change happens after this error.
var ErrBadSignature = errors.New("invalid webhook signature")

// VerifySignature verifies a provider signature header of the form
// "t=<unix>,v1=<hex hmac>" over the raw payload. The signed message is
// "<t>.<payload>" keyed with the shared webhook secret. Multiple v1 entries
// are accepted (the provider sends several during secret rotation); any one
// matching passes.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return fmt.Errorf("%w: missing signature header", ErrBadSignature)
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: malformed timestamp", ErrBadSignature)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed signature header", ErrBadSignature)
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age < 0 {
		age = -age
	}
	if tolerance > 0 && age > tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
	}

	expected := computeSignature(payload, timestamp, secret)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: signature mismatch", ErrBadSignature)
}

// computeSignature generates the HMAC-SHA256 signature for a timestamped
// payload
func computeSignature(payload []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload produces a signature header for a payload. Used by tests and
// by local tooling that replays captured events.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(payload, ts, secret))
}
