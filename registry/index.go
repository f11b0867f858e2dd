package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// IndexedStore fronts another Store with an in-memory bleve index over the
// queryable fields. Queries are answered from the index and the candidate
// records are then read from the backing store, so the backing store stays
// the source of truth. Writes are serialized so the index always holds the
// document of the last record written. When indexing fails after the
// backing write succeeded, the index is marked stale and queries go to the
// backing store directly.
type IndexedStore struct {
	base  Store
	index bleve.Index

	mu    sync.Mutex
	stale atomic.Bool
}

// indexDocument is what gets indexed per agent. All fields are keywords.
type indexDocument struct {
	AgentID      string   `json:"agent_id"`
	Name         string   `json:"name"`
	Status       string   `json:"verification_status"`
	Capabilities []string `json:"capabilities"`
	DID          string   `json:"did"`
}

func buildIndexMapping() mapping.IndexMapping {
	kw := bleve.NewKeywordFieldMapping()
	kw.Analyzer = keyword.Name

	agentMapping := bleve.NewDocumentMapping()
	for _, field := range []string{"agent_id", "name", "verification_status", "capabilities", "did"} {
		agentMapping.AddFieldMappingsAt(field, kw)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = agentMapping
	indexMapping.DefaultAnalyzer = keyword.Name
	return indexMapping
}

// NewIndexedStore builds the index from every record already in base.
func NewIndexedStore(ctx context.Context, base Store) (*IndexedStore, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	existing, err := base.Query(ctx, Query{})
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("load records for index: %w", err)
	}

	batch := index.NewBatch()
	for _, rec := range existing {
		if err := batch.Index(rec.AgentID, toIndexDocument(rec)); err != nil {
			index.Close()
			return nil, fmt.Errorf("failed to index %q: %w", rec.AgentID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to index batch: %w", err)
	}

	return &IndexedStore{base: base, index: index}, nil
}

func toIndexDocument(rec *AgentRecord) indexDocument {
	return indexDocument{
		AgentID:      rec.AgentID,
		Name:         rec.Name,
		Status:       string(rec.VerificationStatus),
		Capabilities: rec.Capabilities,
		DID:          rec.DID,
	}
}

// Put writes through to the backing store, then indexes the record.
func (s *IndexedStore) Put(ctx context.Context, rec *AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.base.Put(ctx, rec); err != nil {
		return err
	}
	if err := s.index.Index(rec.AgentID, toIndexDocument(rec)); err != nil {
		s.stale.Store(true)
	}
	return nil
}

// Stale reports whether the index has missed a write. A stale store answers
// queries from the backing store.
func (s *IndexedStore) Stale() bool {
	return s.stale.Load()
}

// Get reads from the backing store.
func (s *IndexedStore) Get(ctx context.Context, agentID string) (*AgentRecord, error) {
	return s.base.Get(ctx, agentID)
}

// Delete removes the record from the backing store and the index.
// A leftover index entry is harmless: Query skips hits the backing store
// no longer has.
func (s *IndexedStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.base.Delete(ctx, agentID); err != nil {
		return err
	}
	s.index.Delete(agentID)
	return nil
}

// Query resolves candidates from the index in agent ID order and loads them
// until Limit matching records are collected.
func (s *IndexedStore) Query(ctx context.Context, q Query) ([]*AgentRecord, error) {
	if s.stale.Load() {
		return s.base.Query(ctx, q)
	}
	count, err := s.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("index doc count: %w", err)
	}
	out := make([]*AgentRecord, 0)
	if count == 0 {
		return out, nil
	}

	req := bleve.NewSearchRequestOptions(buildSearchQuery(q), int(count), 0, false)
	req.SortBy([]string{"_id"})
	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	for _, hit := range res.Hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.StartAfter != "" && hit.ID <= q.StartAfter {
			continue
		}
		rec, err := s.base.Get(ctx, hit.ID)
		if errors.Is(err, ErrNotFound) {
			continue // removed behind the index's back
		}
		if err != nil {
			return nil, err
		}
		if !MatchesQuery(rec, q) {
			continue
		}
		out = append(out, rec)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func buildSearchQuery(q Query) query.Query {
	var musts []query.Query

	term := func(field, value string) query.Query {
		t := bleve.NewTermQuery(value)
		t.SetField(field)
		return t
	}

	if q.AgentID != "" {
		musts = append(musts, term("agent_id", q.AgentID))
	}
	for _, status := range q.Statuses {
		if status != "" {
			musts = append(musts, term("verification_status", string(status)))
		}
	}
	if q.NamePrefix != "" {
		p := bleve.NewPrefixQuery(q.NamePrefix)
		p.SetField("name")
		musts = append(musts, p)
	}
	if len(q.AnyCapabilities) > 0 {
		var anyOf []query.Query
		for _, c := range q.AnyCapabilities {
			anyOf = append(anyOf, term("capabilities", c))
		}
		musts = append(musts, bleve.NewDisjunctionQuery(anyOf...))
	}
	if q.DID != "" {
		musts = append(musts, term("did", q.DID))
	}

	if len(musts) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(musts...)
}

// Close closes the index and the backing store.
func (s *IndexedStore) Close() error {
	idxErr := s.index.Close()
	if err := s.base.Close(); err != nil {
		return err
	}
	return idxErr
}
