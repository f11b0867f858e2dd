package registration

import (
	"context"
	stderrors "errors"

	"github.com/vinayprograms/ans/bus"
	"github.com/vinayprograms/ans/errors"
	"github.com/vinayprograms/ans/proof"
	"github.com/vinayprograms/ans/registry"
	"github.com/vinayprograms/ans/telemetry"
)

// DefaultDeregisterReason is used when a request gives no reason.
const DefaultDeregisterReason = "user_request"

// DeregisterRequest removes an agent. Signature is a hex DER signature over
// DeregisterClaim(AgentID, Reason), made with the key the agent registered.
type DeregisterRequest struct {
	AgentID   string `json:"agent_id"`
	Reason    string `json:"reason,omitempty"`
	Signature string `json:"signature"`
}

// DeregisterClaim is the object a deregistration signature covers.
func DeregisterClaim(agentID, reason string) map[string]any {
	if reason == "" {
		reason = DefaultDeregisterReason
	}
	return map[string]any{
		"agent_id": agentID,
		"reason":   reason,
	}
}

// Deregister deletes a registered agent after checking the request was
// signed with the stored public key.
func (s *Service) Deregister(ctx context.Context, req DeregisterRequest) (err error) {
	ctx, span := s.tracer.StartRegistrationSpan(ctx, "deregister")
	spanOpts := telemetry.RegistrationSpanOptions{AgentID: req.AgentID, Reason: req.Reason}
	defer func() { s.tracer.EndRegistrationSpan(span, spanOpts, err) }()

	if req.AgentID == "" {
		return errors.InvalidInput(`"agent_id" is required`, errors.WithField("agent_id"))
	}
	if req.Signature == "" {
		return errors.InvalidInput(`"signature" is required`, errors.WithField("signature"))
	}
	if req.Reason == "" {
		req.Reason = DefaultDeregisterReason
	}

	rec, err := s.store.Get(ctx, req.AgentID)
	if stderrors.Is(err, registry.ErrNotFound) {
		return errors.NotFound("agent not found", errors.WithAgentID(req.AgentID))
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "failed to load agent record",
			errors.WithAgentID(req.AgentID))
	}
	spanOpts.DID = rec.DID

	ok, err := proof.VerifyClaim(DeregisterClaim(req.AgentID, req.Reason), req.Signature, rec.PublicKey)
	if err != nil {
		return errors.Wrap(err, "stored public key is unusable", errors.WithAgentID(req.AgentID))
	}
	if !ok {
		s.log.RegistrationRejected(req.AgentID, "invalid deregistration proof")
		return errors.Unauthorized("Invalid proof", errors.WithAgentID(req.AgentID))
	}

	if err := s.store.Delete(ctx, req.AgentID); err != nil {
		if stderrors.Is(err, registry.ErrNotFound) {
			return errors.NotFound("agent not found", errors.WithAgentID(req.AgentID))
		}
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "failed to delete agent record",
			errors.WithAgentID(req.AgentID))
	}

	s.log.Deregistered(req.AgentID, req.Reason)
	s.emit(bus.Event{
		Type:     bus.EventAgentDeregister,
		AgentID:  req.AgentID,
		Priority: bus.PriorityStandard,
	})
	return nil
}
