// Package did builds and inspects did:ans identifiers.
//
// An identifier has the form did:ans:<uuid>:<fingerprint>. The uuid is
// drawn fresh at registration. The fingerprint is the multibase base58btc
// encoding ("z" followed by base58) of a sha2-256 multihash over the PEM
// bytes of the agent's public key, so anyone holding the key can recompute
// it offline.
package did

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
)

// Prefix is the method prefix shared by every identifier this registry issues.
const Prefix = "did:ans:"

// MultibaseBase58BTC is the multibase prefix of every fingerprint.
const MultibaseBase58BTC = "z"

// ErrMalformed is returned by Parse for strings that are not issued identifiers.
var ErrMalformed = errors.New("did: malformed identifier")

// Fingerprint returns the content-addressed suffix for a PEM public key.
func Fingerprint(publicKeyPEM string) (string, error) {
	sum, err := mh.Sum([]byte(publicKeyPEM), mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("did: multihash: %w", err)
	}
	return MultibaseBase58BTC + base58.Encode(sum), nil
}

// Generate issues a new identifier for publicKeyPEM. agentID does not enter
// the identifier; two calls for the same key differ only in the uuid part.
func Generate(agentID, publicKeyPEM string) (string, error) {
	if publicKeyPEM == "" {
		return "", fmt.Errorf("did: empty public key for agent %q", agentID)
	}
	fp, err := Fingerprint(publicKeyPEM)
	if err != nil {
		return "", err
	}
	return Prefix + uuid.NewString() + ":" + fp, nil
}

// Identifier is a parsed did:ans string.
type Identifier struct {
	UUID        uuid.UUID
	Fingerprint string
}

// String reassembles the identifier.
func (id Identifier) String() string {
	return Prefix + id.UUID.String() + ":" + id.Fingerprint
}

// Parse splits an issued identifier into its parts. The fingerprint must
// decode as base58btc multibase to a sha2-256 multihash.
func Parse(s string) (Identifier, error) {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return Identifier{}, fmt.Errorf("%w: missing %q prefix", ErrMalformed, Prefix)
	}
	return ParseSuffix(rest)
}

// ParseSuffix parses the "<uuid>:<fingerprint>" part that follows the prefix.
// The fingerprint must carry the base58btc multibase prefix.
func ParseSuffix(rest string) (Identifier, error) {
	idPart, fp, ok := strings.Cut(rest, ":")
	if !ok {
		return Identifier{}, fmt.Errorf("%w: expected <uuid>:<fingerprint>", ErrMalformed)
	}
	u, err := uuid.Parse(idPart)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	encoded, ok := strings.CutPrefix(fp, MultibaseBase58BTC)
	if !ok {
		return Identifier{}, fmt.Errorf("%w: fingerprint is not base58btc multibase", ErrMalformed)
	}
	raw, err := base58.Decode(encoded)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: fingerprint: %v", ErrMalformed, err)
	}
	decoded, err := mh.Decode(raw)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: fingerprint: %v", ErrMalformed, err)
	}
	if decoded.Code != mh.SHA2_256 {
		return Identifier{}, fmt.Errorf("%w: fingerprint uses %s", ErrMalformed, decoded.Name)
	}
	return Identifier{UUID: u, Fingerprint: fp}, nil
}

// MatchesKey reports whether the identifier's fingerprint was derived from
// publicKeyPEM.
func MatchesKey(s, publicKeyPEM string) bool {
	id, err := Parse(s)
	if err != nil {
		return false
	}
	fp, err := Fingerprint(publicKeyPEM)
	if err != nil {
		return false
	}
	return id.Fingerprint == fp
}
