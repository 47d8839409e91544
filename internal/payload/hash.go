package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainPayload prefixes payload digests. The version suffix leaves room
// to change the canonical form later without colliding with old digests.
const DomainPayload = "scoreclock/payload/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the content digest of an event's type and payload. The
// aggregator stores it next to each received event so a resubmission with
// the same event id but different content can be detected.
func Digest(eventType string, obj Object) (string, error) {
	canonical, err := MarshalCanonical(New(
		P("type", String(eventType)),
		P("payload", obj),
	))
	if err != nil {
		return "", fmt.Errorf("payload digest: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}
