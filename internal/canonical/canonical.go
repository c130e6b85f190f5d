// Package canonical turns arbitrary JSON attribute payloads into a stable
// identity key. Both the issuance and verification services hash through this
// package; any divergence between the two sides breaks credential matching.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonicalize produces the RFC 8785 (JCS) form of a JSON document:
// object keys sorted lexicographically at every depth, array order preserved,
// numbers in their canonical representation, minimal string escaping. Two
// payloads with identical content but different key order or value-equivalent
// number spellings canonicalize to the same bytes.
func Canonicalize(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize attributes: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 digest of the canonical encoding, as lowercase
// hex. This is the credential's sole identity key; no other field
// participates.
func Hash(raw []byte) (string, error) {
	canon, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
