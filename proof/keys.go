package proof

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// KeyPair holds a P-256 key together with its PEM encodings.
type KeyPair struct {
	Private       *ecdsa.PrivateKey
	PublicKeyPEM  string
	PrivateKeyPEM string
}

// GenerateKeyPair creates a P-256 key pair. The public half is PKIX PEM and
// the private half PKCS#8 PEM.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("proof: generate key: %w", err)
	}
	return newKeyPair(priv)
}

func newKeyPair(priv *ecdsa.PrivateKey) (*KeyPair, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("proof: marshal public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("proof: marshal private key: %w", err)
	}
	return &KeyPair{
		Private:       priv,
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// ParsePrivateKey decodes a PKCS#8 or SEC 1 PEM private key and returns the
// full key pair.
func ParsePrivateKey(privateKeyPEM string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(privateKeyPEM)))
	if block == nil {
		return nil, errors.New("proof: no PEM block in private key")
	}

	var priv *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("proof: parse EC private key: %w", err)
		}
		priv = k
	default:
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("proof: parse PKCS#8 private key: %w", err)
		}
		ec, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("proof: %T is not an ECDSA key", k)
		}
		priv = ec
	}
	return newKeyPair(priv)
}

// Sign returns the hex DER signature of SHA-256(payload).
func Sign(payload []byte, key *ecdsa.PrivateKey) (string, error) {
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("proof: sign: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// SignClaim canonicalizes claim and signs it.
func SignClaim(claim any, key *ecdsa.PrivateKey) (string, error) {
	payload, err := Canonicalize(claim)
	if err != nil {
		return "", err
	}
	return Sign(payload, key)
}

// SignPayload signs a registration payload the way the registry verifies it.
// Any proofOfOwnership member already present is ignored.
func SignPayload(raw map[string]any, key *ecdsa.PrivateKey) (string, error) {
	payload, err := CanonicalPayload(raw)
	if err != nil {
		return "", err
	}
	return Sign(payload, key)
}
