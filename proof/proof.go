// Package proof implements proof-of-ownership checks for agent payloads.
//
// A producer canonicalizes its payload (see Canonicalize), hashes it with
// SHA-256 and signs the digest with an elliptic-curve key. The signature
// travels hex-encoded in ASN.1 DER form, and the public key in PEM (PKIX).
// The same rule serves registration and standalone attestation checks, so a
// claim signed once verifies at any consumer.
package proof

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPublicKey is returned when the supplied key is not a parseable
// ECDSA public key. Malformed or mismatched signatures are not errors.
var ErrInvalidPublicKey = errors.New("proof: invalid public key")

// ParsePublicKey decodes a PEM-encoded PKIX ECDSA public key.
func ParsePublicKey(publicKeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(publicKeyPEM)))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPublicKey)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an ECDSA key", ErrInvalidPublicKey, pub)
	}
	return key, nil
}

// Verify checks a hex DER signature over payload against publicKeyPEM.
// It returns false, nil for a bad signature and ErrInvalidPublicKey only when
// the key itself cannot be used.
func Verify(payload []byte, signatureHex, publicKeyPEM string) (bool, error) {
	key, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false, err
	}
	sig, err := hex.DecodeString(strings.TrimSpace(signatureHex))
	if err != nil || len(sig) == 0 {
		return false, nil
	}
	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(key, digest[:], sig), nil
}

// VerifyClaim canonicalizes an arbitrary claim and verifies its signature.
func VerifyClaim(claim any, signatureHex, publicKeyPEM string) (bool, error) {
	payload, err := Canonicalize(claim)
	if err != nil {
		return false, err
	}
	return Verify(payload, signatureHex, publicKeyPEM)
}

// VerifyPayload verifies a registration payload's own proof: the signature
// is checked over CanonicalPayload(raw).
func VerifyPayload(raw map[string]any, signatureHex, publicKeyPEM string) (bool, error) {
	payload, err := CanonicalPayload(raw)
	if err != nil {
		return false, err
	}
	return Verify(payload, signatureHex, publicKeyPEM)
}
