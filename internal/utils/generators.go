package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// NewScanToken returns an opaque, unguessable session token.
func NewScanToken() (string, error) {
	return randomToken(24)
}

// NewNonce returns a one-time random value bound to a scan session.
func NewNonce() (string, error) {
	return randomToken(16)
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateScanLogID creates a timestamped scan log identifier.
func GenerateScanLogID() string {
	suffix, err := randomToken(6)
	if err != nil {
		suffix = fmt.Sprintf("%06d", time.Now().Nanosecond()%1000000)
	}
	return fmt.Sprintf("scan_%d_%s", time.Now().Unix(), suffix)
}
