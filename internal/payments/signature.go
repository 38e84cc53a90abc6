package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

// Sign returns the hex HMAC-SHA256 of timestamp followed by the raw body.
func Sign(secret, timestamp string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature authenticates a gateway notification. The body must be the
// exact bytes received; any re-encoding breaks the digest.
func VerifySignature(secret, timestamp, signature string, rawBody []byte) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured")
	}
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.ToLower(strings.TrimSpace(signature))
	if timestamp == "" || signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing webhook signature headers")
	}
	expected := Sign(secret, timestamp, rawBody)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeUnauthenticated, "webhook signature mismatch")
	}
	return nil
}

// CheckReplayWindow rejects timestamps older or newer than tolerance. A zero
// tolerance disables the check.
func CheckReplayWindow(timestamp string, tolerance time.Duration, now time.Time) error {
	if tolerance <= 0 {
		return nil
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthenticated, "webhook timestamp is not unix seconds")
	}
	skew := now.Sub(time.Unix(secs, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return pkgerrors.New(pkgerrors.CodeUnauthenticated, "webhook timestamp outside replay window")
	}
	return nil
}
