package registration

import (
	"crypto/ecdsa"
	"time"

	"github.com/vinayprograms/ans/proof"
)

// SignPayload attaches a proofOfOwnership block to raw, signing every other
// member with key. Any existing proof is replaced. Producers use it to build
// the body Register accepts.
func SignPayload(raw map[string]any, key *ecdsa.PrivateKey, at time.Time) error {
	sig, err := proof.SignPayload(raw, key)
	if err != nil {
		return err
	}
	raw[proof.ProofField] = map[string]any{
		"signature": sig,
		"timestamp": at.UTC().Format(time.RFC3339),
	}
	return nil
}

// SignDeregister signs a deregistration request with key.
func SignDeregister(agentID, reason string, key *ecdsa.PrivateKey) (DeregisterRequest, error) {
	if reason == "" {
		reason = DefaultDeregisterReason
	}
	sig, err := proof.SignClaim(DeregisterClaim(agentID, reason), key)
	if err != nil {
		return DeregisterRequest{}, err
	}
	return DeregisterRequest{AgentID: agentID, Reason: reason, Signature: sig}, nil
}
