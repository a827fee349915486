package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix allows a future
// algorithm migration without colliding with stored values.
const (
	DomainTrace  = "pickleball/trace/v1"
	DomainPolicy = "pickleball/policy/v1"
	DomainSample = "pickleball/sample/v1"
)

// Digest computes SHA-256 over domain || 0x00 || canonical(v).
// The null separator prevents domain/data boundary ambiguity.
func Digest(domain string, v Value) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return DigestBytes(domain, data), nil
}

// DigestBytes computes the domain-separated digest of raw bytes.
func DigestBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
