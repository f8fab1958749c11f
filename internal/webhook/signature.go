package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Headers set on every delivery.
const (
	HeaderSignature = "X-Decider-Signature"
	HeaderTimestamp = "X-Decider-Timestamp"
	HeaderEvent     = "X-Decider-Event"
	HeaderDelivery  = "X-Decider-Delivery"
)

// Sign computes the signature of payload sent at ts. The signed message is
// "<unix seconds>.<payload>" so a captured body cannot be replayed under a
// different timestamp.
func Sign(payload []byte, ts time.Time, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(formatUnix(ts)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature and rejects timestamps older than tolerance.
// A zero tolerance disables the age check.
func Verify(payload []byte, timestamp, signature, secret string, tolerance time.Duration, now time.Time) bool {
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	ts := time.Unix(unix, 0)
	if tolerance > 0 && now.Sub(ts) > tolerance {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(payload, ts, secret)))
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// GenerateSecret generates a random signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return "whsec_" + base64.RawURLEncoding.EncodeToString(b), nil
}
