// Package registration runs the agent registration pipeline.
//
// Register validates a payload, checks its proof of ownership against the
// payload's own public key, issues a DID, stores the record and announces it
// on the event bus. Validation and proof failures happen before any write.
// Announcement is best-effort and never affects the outcome.
package registration

import (
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/ans/bus"
	"github.com/vinayprograms/ans/logging"
	"github.com/vinayprograms/ans/registry"
	"github.com/vinayprograms/ans/telemetry"
)

// DefaultEstimatedVerificationTime is reported in receipts when unset.
const DefaultEstimatedVerificationTime = "30s"

// Emitter accepts events for best-effort delivery.
type Emitter interface {
	Emit(ev bus.Event) bool
}

// Config holds registration settings.
type Config struct {
	// EstimatedVerificationTime is echoed in receipts. Default: "30s"
	EstimatedVerificationTime string
}

// Service registers and deregisters agents.
type Service struct {
	store  registry.Store
	events Emitter
	config Config
	log    *logging.Logger
	tracer *telemetry.Tracer
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.log = l.WithComponent("registration") }
}

// WithTracer sets the tracer. The global tracer is used otherwise.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a registration service. events may be nil, in which
// case nothing is announced.
func NewService(store registry.Store, events Emitter, cfg Config, opts ...Option) *Service {
	if cfg.EstimatedVerificationTime == "" {
		cfg.EstimatedVerificationTime = DefaultEstimatedVerificationTime
	}
	s := &Service{
		store:  store,
		events: events,
		config: cfg,
		log:    logging.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = telemetry.GetTracer()
	}
	return s
}

func (s *Service) emit(ev bus.Event) {
	if s.events == nil {
		return
	}
	s.events.Emit(ev)
}

// Receipt is returned for an accepted registration.
type Receipt struct {
	AgentID                   string                 `json:"agent_id"`
	ProvisionalStatus         string                 `json:"provisional_status"`
	VerificationPending       bool                   `json:"verification_pending"`
	VerificationID            string                 `json:"verification_id"`
	EstimatedVerificationTime string                 `json:"estimated_verification_time"`
	DataResidencyConfirmed    []string               `json:"data_residency_confirmed"`
	PrivateClaims             PrivateClaimsReceipt   `json:"private_claims"`
	AttestationVerification   AttestationVerifyState `json:"attestation_verification"`
}

// PrivateClaimsReceipt reports how many private claims were recorded.
type PrivateClaimsReceipt struct {
	CommitmentsRecorded int `json:"commitments_recorded"`
}

// AttestationVerifyState is the state of supply-chain attestation checks.
type AttestationVerifyState struct {
	Status string `json:"status"`
}
