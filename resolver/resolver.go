// Package resolver projects stored agents into DID documents.
package resolver

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/vinayprograms/ans/did"
	"github.com/vinayprograms/ans/errors"
	"github.com/vinayprograms/ans/logging"
	"github.com/vinayprograms/ans/registry"
	"github.com/vinayprograms/ans/telemetry"
)

// Resolver answers did:ans lookups from a store.
type Resolver struct {
	store  registry.Store
	log    *logging.Logger
	tracer *telemetry.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.log = l.WithComponent("resolver") }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// New creates a resolver.
func New(store registry.Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, log: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = telemetry.GetTracer()
	}
	return r
}

// Resolve returns the document for id. The text after the did:ans: prefix
// is first looked up as an agent_id. When nothing is stored under it and it
// has the issued <uuid>:<fingerprint> shape, the full identifier is matched
// against stored DIDs. An unknown identifier reports found=false with a nil
// error.
func (r *Resolver) Resolve(ctx context.Context, id string) (doc *did.Document, found bool, err error) {
	ctx, span := r.tracer.StartResolveSpan(ctx, id)
	defer func() { r.tracer.EndResolveSpan(span, found, err) }()

	rest := strings.TrimPrefix(id, did.Prefix)
	if rest == "" {
		return nil, false, nil
	}

	rec, err := r.store.Get(ctx, rest)
	switch {
	case err == nil:
	case stderrors.Is(err, registry.ErrNotFound):
		rec, err = r.byDID(ctx, rest)
		if err != nil {
			return nil, false, err
		}
		if rec == nil {
			r.log.Debug("did_not_found", map[string]interface{}{"did": id})
			return nil, false, nil
		}
	default:
		return nil, false, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "resolution failed")
	}

	return did.NewDocument(rec.DID, rec.PublicKey, rec.Endpoints), true, nil
}

func (r *Resolver) byDID(ctx context.Context, rest string) (*registry.AgentRecord, error) {
	parsed, err := did.ParseSuffix(rest)
	if err != nil {
		return nil, nil
	}
	recs, err := r.store.Query(ctx, registry.Query{DID: parsed.String(), Limit: 1})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "resolution failed")
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}
