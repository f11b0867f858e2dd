package registration

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/vinayprograms/ans/bus"
	"github.com/vinayprograms/ans/did"
	"github.com/vinayprograms/ans/errors"
	"github.com/vinayprograms/ans/proof"
	"github.com/vinayprograms/ans/registry"
	"github.com/vinayprograms/ans/schema"
	"github.com/vinayprograms/ans/telemetry"
)

// Register runs the full pipeline for a raw registration body.
func (s *Service) Register(ctx context.Context, body []byte) (receipt *Receipt, err error) {
	ctx, span := s.tracer.StartRegistrationSpan(ctx, "register")
	spanOpts := telemetry.RegistrationSpanOptions{}
	defer func() { s.tracer.EndRegistrationSpan(span, spanOpts, err) }()

	res, err := schema.Validate(body)
	if err != nil {
		s.log.RegistrationRejected("", errors.PublicMessage(err))
		return nil, err
	}
	p := res.Payload
	spanOpts.AgentID = p.AgentID
	spanOpts.Critical = p.CriticalRegistration

	if err := s.checkProof(res); err != nil {
		s.log.RegistrationRejected(p.AgentID, errors.PublicMessage(err))
		return nil, err
	}

	id, err := did.Generate(p.AgentID, p.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate DID", errors.WithAgentID(p.AgentID))
	}
	spanOpts.DID = id

	rec := newRecord(res, id, s.now().UTC())
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "failed to store agent record",
			errors.WithAgentID(p.AgentID))
	}

	s.log.Registered(p.AgentID, id, p.CriticalRegistration)
	s.emit(bus.Event{
		Type:     bus.EventAgentRegister,
		AgentID:  p.AgentID,
		Priority: bus.PriorityFor(p.CriticalRegistration),
	})

	return s.receipt(rec), nil
}

// checkProof verifies the payload signature with the payload's own key.
func (s *Service) checkProof(res *schema.Result) error {
	p := res.Payload
	ok, err := proof.VerifyPayload(res.Raw, p.ProofOfOwnership.Signature, p.PublicKey)
	switch {
	case stderrors.Is(err, proof.ErrInvalidPublicKey):
		return errors.InvalidInput(`"public_key" must be a PEM-encoded EC public key`,
			errors.WithField("public_key"), errors.WithAgentID(p.AgentID), errors.WithCause(err))
	case err != nil:
		return errors.Wrap(err, "failed to canonicalize payload", errors.WithAgentID(p.AgentID))
	case !ok:
		return errors.Unauthorized("Invalid proof", errors.WithAgentID(p.AgentID))
	}
	return nil
}

// newRecord builds the stored record. Opaque metadata is taken from the raw
// body so numbers keep their original text.
func newRecord(res *schema.Result, id string, now time.Time) *registry.AgentRecord {
	p := res.Payload
	rec := &registry.AgentRecord{
		AgentID:              p.AgentID,
		Name:                 p.Name,
		Description:          p.Description,
		Organization:         p.Organization,
		LogoURL:              p.LogoURL,
		Website:              p.Website,
		Tags:                 p.Tags,
		Capabilities:         p.Capabilities,
		Endpoints:            p.Endpoints,
		VerificationLevel:    p.VerificationLevel,
		PublicKey:            p.PublicKey,
		DataResidency:        p.DataResidency,
		CriticalRegistration: p.CriticalRegistration,
		DID:                  id,
		VerificationStatus:   registry.StatusProvisional,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if m, ok := res.Raw["private_claims"].(map[string]any); ok {
		rec.PrivateClaims = m
	}
	if m, ok := res.Raw["supply_chain"].(map[string]any); ok {
		rec.SupplyChain = m
	}
	return rec
}

func (s *Service) receipt(rec *registry.AgentRecord) *Receipt {
	residency := rec.DataResidency
	if residency == nil {
		residency = []string{}
	}
	return &Receipt{
		AgentID:                   rec.AgentID,
		ProvisionalStatus:         "registered",
		VerificationPending:       true,
		VerificationID:            s.newID(),
		EstimatedVerificationTime: s.config.EstimatedVerificationTime,
		DataResidencyConfirmed:    residency,
		PrivateClaims:             PrivateClaimsReceipt{CommitmentsRecorded: len(rec.PrivateClaims)},
		AttestationVerification:   AttestationVerifyState{Status: "in_progress"},
	}
}
