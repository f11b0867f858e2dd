// Package discovery answers agent lookups.
//
// Exact predicates (agent_id, trust level, policy verification status, name
// prefix) and a coarse "any of" capability filter are pushed to the store.
// The exact capability match, which requires every requested capability, is
// applied here. Because that refinement can discard store results, the
// engine keeps reading the store in batches until the page is full or the
// store runs dry, so a page is never short while matches remain.
//
// Results are ordered by agent_id. When a page is full its last agent_id is
// returned as next_page_token; passing it back as page_token resumes after
// it.
package discovery

import (
	"context"
	"time"

	"github.com/vinayprograms/ans/errors"
	"github.com/vinayprograms/ans/logging"
	"github.com/vinayprograms/ans/registry"
	"github.com/vinayprograms/ans/telemetry"
)

// Config controls lookup paging.
type Config struct {
	// DefaultLimit is used when a query has no usable limit. Default: 10
	DefaultLimit int

	// MaxLimit caps the page size a caller may ask for. Default: 100
	MaxLimit int

	// OverfetchFactor multiplies the limit to size each store batch.
	// Default: 3
	OverfetchFactor int

	// MaxStoreCalls bounds the batches read for one page. When the bound is
	// hit before the page fills, the token points past the last record
	// scanned. Default: 10
	MaxStoreCalls int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:    10,
		MaxLimit:        100,
		OverfetchFactor: 3,
		MaxStoreCalls:   10,
	}
}

// Verification is the trust block of a result.
type Verification struct {
	Level           string    `json:"level"`
	Timestamp       time.Time `json:"timestamp"`
	BlockchainProof *string   `json:"blockchain_proof,omitempty"`
}

// Result is the public view of one agent.
type Result struct {
	AgentID             string            `json:"agent_id"`
	DID                 string            `json:"did"`
	Name                string            `json:"name"`
	Description         string            `json:"description,omitempty"`
	Organization        string            `json:"organization,omitempty"`
	PublicKey           string            `json:"public_key"`
	Endpoints           map[string]string `json:"endpoints"`
	Capabilities        []string          `json:"capabilities,omitempty"`
	Verification        Verification      `json:"verification"`
	PolicyCompatibility bool              `json:"policy_compatibility"`
}

// Response is one page of results.
type Response struct {
	Status        string   `json:"status"`
	Results       []Result `json:"results"`
	TotalMatches  int      `json:"total_matches"`
	NextPageToken *string  `json:"next_page_token"`
}

// Engine runs lookups against a store.
type Engine struct {
	store  registry.Store
	config Config
	log    *logging.Logger
	tracer *telemetry.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l.WithComponent("discovery") }
}

// WithTracer sets the tracer. The global tracer is used otherwise.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates a lookup engine.
func NewEngine(store registry.Store, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = def.OverfetchFactor
	}
	if cfg.MaxStoreCalls <= 0 {
		cfg.MaxStoreCalls = def.MaxStoreCalls
	}
	e := &Engine{
		store:  store,
		config: cfg,
		log:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = telemetry.GetTracer()
	}
	return e
}

// Lookup returns one page of agents matching q. Page sizes above MaxLimit
// are cut to MaxLimit. An empty match is a successful, empty page.
func (e *Engine) Lookup(ctx context.Context, q Query) (resp *Response, err error) {
	start := time.Now()
	limit := q.Limit
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	limit = min(limit, e.config.MaxLimit)

	ctx, span := e.tracer.StartLookupSpan(ctx)
	spanOpts := telemetry.LookupSpanOptions{
		Capabilities: q.Capabilities,
		NamePrefix:   q.NamePrefix,
		Limit:        limit,
	}
	defer func() { e.tracer.EndLookupSpan(span, spanOpts, err) }()

	pg, err := e.collect(ctx, q, limit)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "lookup failed")
	}
	spanOpts.Results = len(pg.records)
	spanOpts.StoreCalls = pg.storeCalls

	results := make([]Result, 0, len(pg.records))
	for _, rec := range pg.records {
		results = append(results, project(rec, q.Policy))
	}

	e.log.LookupServed(len(results), pg.storeCalls, time.Since(start))
	return &Response{
		Status:        "success",
		Results:       results,
		TotalMatches:  len(results),
		NextPageToken: pg.next,
	}, nil
}

type page struct {
	records    []*registry.AgentRecord
	next       *string
	storeCalls int
}

// collect reads store batches until limit records pass the capability
// refinement, the store is exhausted, or MaxStoreCalls is reached.
func (e *Engine) collect(ctx context.Context, q Query, limit int) (*page, error) {
	batch := limit * e.config.OverfetchFactor
	sq := registry.Query{
		AgentID:         q.AgentID,
		NamePrefix:      q.NamePrefix,
		AnyCapabilities: q.Capabilities,
		StartAfter:      q.PageToken,
		Limit:           batch,
	}
	if q.TrustLevel != "" {
		sq.Statuses = append(sq.Statuses, registry.VerificationStatus(q.TrustLevel))
	}
	if q.Policy != nil && q.Policy.VerificationStatus != "" {
		sq.Statuses = append(sq.Statuses, registry.VerificationStatus(q.Policy.VerificationStatus))
	}

	p := &page{records: make([]*registry.AgentRecord, 0, limit)}
	for {
		recs, err := e.store.Query(ctx, sq)
		p.storeCalls++
		if err != nil {
			return nil, err
		}

		for _, rec := range recs {
			if !rec.HasAllCapabilities(q.Capabilities) {
				continue
			}
			p.records = append(p.records, rec)
			if len(p.records) == limit {
				token := rec.AgentID
				p.next = &token
				return p, nil
			}
		}

		if len(recs) < batch || q.AgentID != "" {
			return p, nil
		}
		sq.StartAfter = recs[len(recs)-1].AgentID
		if p.storeCalls >= e.config.MaxStoreCalls {
			token := sq.StartAfter
			p.next = &token
			return p, nil
		}
	}
}

func project(rec *registry.AgentRecord, policy *PolicyRequirements) Result {
	endpoints := make(map[string]string, len(rec.Endpoints))
	for k, v := range rec.Endpoints {
		endpoints[k] = v
	}
	return Result{
		AgentID:      rec.AgentID,
		DID:          rec.DID,
		Name:         rec.Name,
		Description:  rec.Description,
		Organization: rec.Organization,
		PublicKey:    rec.PublicKey,
		Endpoints:    endpoints,
		Capabilities: rec.Capabilities,
		Verification: Verification{
			Level:           string(rec.VerificationStatus),
			Timestamp:       rec.UpdatedAt,
			BlockchainProof: rec.BlockchainProof,
		},
		PolicyCompatibility: policy.Compatible(rec),
	}
}
