// Package attestation checks signed claims on behalf of third parties.
//
// A claim is any JSON value. It is canonicalized the same way registration
// payloads are, so a claim signed with proof.SignClaim verifies here. The key
// is taken from the request or, when the request omits it, from the
// registered agent named by agent_id.
package attestation

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/vinayprograms/ans/errors"
	"github.com/vinayprograms/ans/logging"
	"github.com/vinayprograms/ans/proof"
	"github.com/vinayprograms/ans/registry"
	"github.com/vinayprograms/ans/telemetry"
)

// Key sources reported in a Result.
const (
	KeySourceRequest  = "request"
	KeySourceRegistry = "registry"
)

// Request is a claim to check.
type Request struct {
	AgentID     string `json:"agent_id"`
	Attestation any    `json:"attestation"`
	Signature   string `json:"signature"`
	PublicKey   string `json:"public_key,omitempty"`
}

// Result is the verdict, echoing the checked claim.
type Result struct {
	IsValid     bool      `json:"isValid"`
	AgentID     string    `json:"agent_id,omitempty"`
	Attestation any       `json:"attestation"`
	VerifiedAt  time.Time `json:"verified_at"`
	KeySource   string    `json:"key_source"`
}

// Service verifies attestations. The store may be nil, in which case every
// request must carry its own key.
type Service struct {
	store  registry.Store
	log    *logging.Logger
	tracer *telemetry.Tracer
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.log = l.WithComponent("attestation") }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an attestation checker.
func NewService(store registry.Store, opts ...Option) *Service {
	s := &Service{store: store, log: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = telemetry.GetTracer()
	}
	return s
}

// Verify checks req.Signature over req.Attestation. A signature that does
// not match is a valid answer (IsValid=false), not an error. Missing fields
// and unusable keys are INVALID_INPUT.
func (s *Service) Verify(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := s.tracer.StartVerifySpan(ctx, req.AgentID)
	var keySource string
	defer func() {
		valid := res != nil && res.IsValid
		s.tracer.EndVerifySpan(span, valid, keySource, err)
	}()

	if req.Attestation == nil {
		return nil, errors.InvalidInput("attestation is required", errors.WithField("attestation"))
	}
	if strings.TrimSpace(req.Signature) == "" {
		return nil, errors.InvalidInput("signature is required", errors.WithField("signature"))
	}

	key, keySource, err := s.resolveKey(ctx, req)
	if err != nil {
		return nil, err
	}

	valid, err := proof.VerifyClaim(req.Attestation, req.Signature, key)
	if err != nil {
		if stderrors.Is(err, proof.ErrInvalidPublicKey) {
			return nil, errors.InvalidInput("Invalid public key", errors.WithField("public_key"), errors.WithCause(err))
		}
		return nil, errors.InvalidInput("attestation cannot be canonicalized", errors.WithField("attestation"), errors.WithCause(err))
	}

	s.log.Debug("attestation_checked", map[string]interface{}{
		"agent_id":   req.AgentID,
		"valid":      valid,
		"key_source": keySource,
	})
	return &Result{
		IsValid:     valid,
		AgentID:     req.AgentID,
		Attestation: req.Attestation,
		VerifiedAt:  s.now().UTC(),
		KeySource:   keySource,
	}, nil
}

func (s *Service) resolveKey(ctx context.Context, req Request) (string, string, error) {
	if req.PublicKey != "" {
		return req.PublicKey, KeySourceRequest, nil
	}
	if req.AgentID == "" || s.store == nil {
		return "", "", errors.InvalidInput("public_key is required", errors.WithField("public_key"))
	}
	rec, err := s.store.Get(ctx, req.AgentID)
	if err != nil {
		if stderrors.Is(err, registry.ErrNotFound) {
			return "", "", errors.InvalidInput("public_key is required for unregistered agents", errors.WithField("public_key"))
		}
		return "", "", errors.WrapWithCode(err, errors.ErrCodeUnavailable, "key lookup failed")
	}
	return rec.PublicKey, KeySourceRegistry, nil
}
