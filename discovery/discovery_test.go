package discovery

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/vinayprograms/ans/errors"
	"github.com/vinayprograms/ans/registry"
)

var seededAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// countingStore counts Query calls.
type countingStore struct {
	registry.Store
	calls int
	err   error
}

func (s *countingStore) Query(ctx context.Context, q registry.Query) ([]*registry.AgentRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Query(ctx, q)
}

func seed(t *testing.T, recs ...*registry.AgentRecord) *registry.MemoryStore {
	t.Helper()
	store := registry.NewMemoryStore()
	for _, rec := range recs {
		if rec.VerificationStatus == "" {
			rec.VerificationStatus = registry.StatusProvisional
		}
		rec.UpdatedAt = seededAt
		if err := store.Put(context.Background(), rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	return store
}

func translatorStore(t *testing.T) *registry.MemoryStore {
	proof := "0xfeed"
	return seed(t,
		&registry.AgentRecord{AgentID: "translator.ans", Name: "Translator", DID: "did:ans:t",
			Capabilities: []string{"translator", "english", "multilingual"},
			Endpoints:    map[string]string{"a2a": "https://t.example/a2a"},
			VerificationStatus: registry.StatusVerified, BlockchainProof: &proof},
		&registry.AgentRecord{AgentID: "nia.ans", Name: "Nia", Capabilities: []string{"sales"}},
		&registry.AgentRecord{AgentID: "nia2.ans", Name: "Nia Two", Capabilities: []string{"support"}},
		&registry.AgentRecord{AgentID: "diana.ans", Name: "Diana", Capabilities: []string{"sales", "english"}},
	)
}

func resultIDs(resp *Response) []string {
	ids := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		ids[i] = r.AgentID
	}
	return ids
}

func lookup(t *testing.T, e *Engine, q Query) *Response {
	t.Helper()
	resp, err := e.Lookup(context.Background(), q)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return resp
}

// --- Unit Tests ---

func TestLookup_CapabilityAND(t *testing.T) {
	e := NewEngine(translatorStore(t), Config{})

	resp := lookup(t, e, Query{Capabilities: []string{"translator", "english"}})
	if fmt.Sprint(resultIDs(resp)) != "[translator.ans]" {
		t.Errorf("got %v", resultIDs(resp))
	}

	resp = lookup(t, e, Query{Capabilities: []string{"translator", "sales"}})
	if len(resp.Results) != 0 {
		t.Errorf("got %v, want none", resultIDs(resp))
	}
	if resp.Status != "success" || resp.Results == nil || resp.NextPageToken != nil {
		t.Errorf("empty response malformed: %+v", resp)
	}
}

func TestLookup_NamePrefix(t *testing.T) {
	e := NewEngine(translatorStore(t), Config{})

	resp := lookup(t, e, Query{NamePrefix: "Nia"})
	if fmt.Sprint(resultIDs(resp)) != "[nia.ans nia2.ans]" {
		t.Errorf("got %v", resultIDs(resp))
	}
}

func TestLookup_PolicyAnnotatesOnly(t *testing.T) {
	e := NewEngine(translatorStore(t), Config{})

	resp := lookup(t, e, Query{
		NamePrefix: "Translator",
		Policy:     &PolicyRequirements{Capabilities: []string{"non_existent_capability"}},
	})
	if len(resp.Results) != 1 || resp.Results[0].AgentID != "translator.ans" {
		t.Fatalf("got %v", resultIDs(resp))
	}
	if resp.Results[0].PolicyCompatibility {
		t.Error("policy_compatibility should be false")
	}

	resp = lookup(t, e, Query{
		NamePrefix: "Translator",
		Policy:     &PolicyRequirements{Capabilities: []string{"translator"}},
	})
	if len(resp.Results) != 1 || !resp.Results[0].PolicyCompatibility {
		t.Errorf("satisfiable policy should be compatible: %+v", resp.Results)
	}

	resp = lookup(t, e, Query{NamePrefix: "Translator"})
	if !resp.Results[0].PolicyCompatibility {
		t.Error("no policy should be compatible")
	}
}

func TestLookup_PolicyStatusFiltersStore(t *testing.T) {
	e := NewEngine(translatorStore(t), Config{})

	resp := lookup(t, e, Query{Policy: &PolicyRequirements{VerificationStatus: "verified"}})
	if fmt.Sprint(resultIDs(resp)) != "[translator.ans]" {
		t.Errorf("got %v", resultIDs(resp))
	}
	if !resp.Results[0].PolicyCompatibility {
		t.Error("policy should be satisfied")
	}

	resp = lookup(t, e, Query{TrustLevel: "provisional", Policy: &PolicyRequirements{VerificationStatus: "verified"}})
	if len(resp.Results) != 0 {
		t.Errorf("conflicting statuses should match nothing, got %v", resultIDs(resp))
	}
}

func TestLookup_TrustLevelAndAgentID(t *testing.T) {
	e := NewEngine(translatorStore(t), Config{})

	resp := lookup(t, e, Query{TrustLevel: "provisional"})
	if fmt.Sprint(resultIDs(resp)) != "[diana.ans nia.ans nia2.ans]" {
		t.Errorf("got %v", resultIDs(resp))
	}

	resp = lookup(t, e, Query{AgentID: "diana.ans"})
	if fmt.Sprint(resultIDs(resp)) != "[diana.ans]" {
		t.Errorf("got %v", resultIDs(resp))
	}
}

func TestLookup_Projection(t *testing.T) {
	e := NewEngine(translatorStore(t), Config{})

	resp := lookup(t, e, Query{AgentID: "translator.ans"})
	r := resp.Results[0]
	if r.DID != "did:ans:t" || r.Endpoints["a2a"] != "https://t.example/a2a" {
		t.Errorf("result = %+v", r)
	}
	if r.Verification.Level != "verified" || !r.Verification.Timestamp.Equal(seededAt) {
		t.Errorf("verification = %+v", r.Verification)
	}
	if r.Verification.BlockchainProof == nil || *r.Verification.BlockchainProof != "0xfeed" {
		t.Error("blockchain_proof not projected")
	}

	resp = lookup(t, e, Query{AgentID: "nia.ans"})
	data, _ := json.Marshal(resp.Results[0])
	var m map[string]any
	json.Unmarshal(data, &m)
	if _, ok := m["endpoints"].(map[string]any); !ok {
		t.Errorf("endpoints should always be an object: %s", data)
	}
	for _, hidden := range []string{"private_claims", "supply_chain", "created_at"} {
		if _, ok := m[hidden]; ok {
			t.Errorf("internal field %q exposed", hidden)
		}
	}
}

func TestLookup_Pagination(t *testing.T) {
	e := NewEngine(seed(t,
		&registry.AgentRecord{AgentID: "a", Name: "A", Capabilities: []string{"x"}},
		&registry.AgentRecord{AgentID: "b", Name: "B", Capabilities: []string{"x"}},
		&registry.AgentRecord{AgentID: "c", Name: "C", Capabilities: []string{"x"}},
	), Config{})

	first := lookup(t, e, Query{Capabilities: []string{"x"}, Limit: 2})
	if len(first.Results) != 2 || first.TotalMatches != 2 {
		t.Fatalf("first page = %v", resultIDs(first))
	}
	if first.NextPageToken == nil || *first.NextPageToken != "b" {
		t.Fatalf("next_page_token = %v", first.NextPageToken)
	}

	second := lookup(t, e, Query{Capabilities: []string{"x"}, Limit: 2, PageToken: *first.NextPageToken})
	if fmt.Sprint(resultIDs(second)) != "[c]" {
		t.Errorf("second page = %v", resultIDs(second))
	}
	if second.NextPageToken != nil {
		t.Errorf("final page token = %q, want null", *second.NextPageToken)
	}

	data, _ := json.Marshal(second)
	var m map[string]any
	json.Unmarshal(data, &m)
	if v, ok := m["next_page_token"]; !ok || v != nil {
		t.Errorf("next_page_token should serialize as null: %s", data)
	}
}

func TestLookup_DefaultLimit(t *testing.T) {
	var recs []*registry.AgentRecord
	for i := 0; i < 12; i++ {
		recs = append(recs, &registry.AgentRecord{AgentID: fmt.Sprintf("agent-%02d", i), Name: "A"})
	}
	e := NewEngine(seed(t, recs...), Config{})

	resp := lookup(t, e, Query{Limit: 0})
	if len(resp.Results) != 10 || resp.NextPageToken == nil || *resp.NextPageToken != "agent-09" {
		t.Errorf("got %d results, token %v", len(resp.Results), resp.NextPageToken)
	}
}

func TestLookup_LimitClamped(t *testing.T) {
	var recs []*registry.AgentRecord
	for i := 0; i < 8; i++ {
		recs = append(recs, &registry.AgentRecord{AgentID: fmt.Sprintf("agent-%02d", i), Name: "A"})
	}
	store := &countingStore{Store: seed(t, recs...)}
	e := NewEngine(store, Config{MaxLimit: 5})

	resp := lookup(t, e, ParseValues(url.Values{"limit": {"2147483647"}}))
	if len(resp.Results) != 5 || resp.NextPageToken == nil || *resp.NextPageToken != "agent-04" {
		t.Errorf("got %d results, token %v", len(resp.Results), resp.NextPageToken)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}

	// An empty store with the default cap answers an empty page.
	resp = lookup(t, NewEngine(registry.NewMemoryStore(), DefaultConfig()),
		ParseValues(url.Values{"limit": {"2147483647"}}))
	if len(resp.Results) != 0 || resp.NextPageToken != nil {
		t.Errorf("empty store: %+v", resp)
	}
}

func TestLookup_OverfetchFillsPage(t *testing.T) {
	// Ten partial matches sort ahead of the only full match.
	var recs []*registry.AgentRecord
	for i := 0; i < 10; i++ {
		recs = append(recs, &registry.AgentRecord{AgentID: fmt.Sprintf("a-%02d", i), Name: "P", Capabilities: []string{"translator"}})
	}
	recs = append(recs, &registry.AgentRecord{AgentID: "z", Name: "Z", Capabilities: []string{"translator", "english"}})
	store := &countingStore{Store: seed(t, recs...)}
	e := NewEngine(store, Config{OverfetchFactor: 2})

	resp := lookup(t, e, Query{Capabilities: []string{"translator", "english"}, Limit: 1})
	if fmt.Sprint(resultIDs(resp)) != "[z]" {
		t.Fatalf("got %v", resultIDs(resp))
	}
	// Batches of 2 over 11 candidates.
	if store.calls != 6 {
		t.Errorf("store calls = %d, want 6", store.calls)
	}
}

func TestLookup_MaxStoreCallsLeavesResumeToken(t *testing.T) {
	var recs []*registry.AgentRecord
	for i := 0; i < 10; i++ {
		recs = append(recs, &registry.AgentRecord{AgentID: fmt.Sprintf("a-%02d", i), Name: "P", Capabilities: []string{"translator"}})
	}
	recs = append(recs, &registry.AgentRecord{AgentID: "z", Name: "Z", Capabilities: []string{"translator", "english"}})
	e := NewEngine(seed(t, recs...), Config{OverfetchFactor: 2, MaxStoreCalls: 2})

	q := Query{Capabilities: []string{"translator", "english"}, Limit: 1}
	resp := lookup(t, e, q)
	if len(resp.Results) != 0 {
		t.Fatalf("got %v", resultIDs(resp))
	}
	if resp.NextPageToken == nil || *resp.NextPageToken != "a-03" {
		t.Fatalf("next_page_token = %v, want a-03", resp.NextPageToken)
	}

	// Following the tokens eventually reaches the match.
	var found bool
	for i := 0; i < 5 && resp.NextPageToken != nil; i++ {
		q.PageToken = *resp.NextPageToken
		resp = lookup(t, e, q)
		if len(resp.Results) == 1 && resp.Results[0].AgentID == "z" {
			found = true
			break
		}
	}
	if !found {
		t.Error("match not reached by following tokens")
	}
}

func TestLookup_StoreFailure(t *testing.T) {
	e := NewEngine(&countingStore{Store: registry.NewMemoryStore(), err: stderrors.New("offline")}, Config{})

	_, err := e.Lookup(context.Background(), Query{})
	if !errors.Is(err, errors.ErrCodeUnavailable) {
		t.Errorf("err = %v, want UNAVAILABLE", err)
	}
}

func TestParseValues(t *testing.T) {
	v := url.Values{}
	v.Set("query", "Nia")
	v.Set("trust_level", "")
	v.Set("limit", "abc")
	v.Add("capabilities", "translator, english")
	v.Add("capabilities", "multilingual")
	v.Set("policy_requirements", `{"verification_status":"verified","capabilities":["sales"]}`)
	v.Set("page_token", "nia.ans")

	q := ParseValues(v)
	if q.NamePrefix != "Nia" || q.TrustLevel != "" || q.Limit != 0 || q.PageToken != "nia.ans" {
		t.Errorf("query = %+v", q)
	}
	if fmt.Sprint(q.Capabilities) != "[translator english multilingual]" {
		t.Errorf("capabilities = %v", q.Capabilities)
	}
	if q.Policy == nil || q.Policy.VerificationStatus != "verified" || fmt.Sprint(q.Policy.Capabilities) != "[sales]" {
		t.Errorf("policy = %+v", q.Policy)
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		check  func(t *testing.T, q Query)
	}{
		{
			name:   "invalid policy string ignored",
			params: map[string]any{"policy_requirements": "{not json"},
			check: func(t *testing.T, q Query) {
				if q.Policy != nil {
					t.Errorf("policy = %+v", q.Policy)
				}
			},
		},
		{
			name:   "policy object",
			params: map[string]any{"policy_requirements": map[string]any{"capabilities": []any{"a", "b"}}},
			check: func(t *testing.T, q Query) {
				if q.Policy == nil || len(q.Policy.Capabilities) != 2 {
					t.Errorf("policy = %+v", q.Policy)
				}
			},
		},
		{
			name:   "capability list with commas",
			params: map[string]any{"capabilities": []any{"a,b", " ", "c", 7}},
			check: func(t *testing.T, q Query) {
				if fmt.Sprint(q.Capabilities) != "[a b c]" {
					t.Errorf("capabilities = %v", q.Capabilities)
				}
			},
		},
		{
			name:   "numeric limit",
			params: map[string]any{"limit": json.Number("3")},
			check: func(t *testing.T, q Query) {
				if q.Limit != 3 {
					t.Errorf("limit = %d", q.Limit)
				}
			},
		},
		{
			name:   "negative limit",
			params: map[string]any{"limit": float64(-4)},
			check: func(t *testing.T, q Query) {
				if q.Limit != 0 {
					t.Errorf("limit = %d", q.Limit)
				}
			},
		},
		{
			name:   "null and empty ignored",
			params: map[string]any{"agent_id": nil, "query": ""},
			check: func(t *testing.T, q Query) {
				if q.AgentID != "" || q.NamePrefix != "" {
					t.Errorf("query = %+v", q)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ParseParams(tt.params))
		})
	}
}

func TestNormalizeCapabilities(t *testing.T) {
	if got := NormalizeCapabilities(" a ,, b,"); fmt.Sprint(got) != "[a b]" {
		t.Errorf("got %v", got)
	}
	if got := NormalizeCapabilities(nil); len(got) != 0 {
		t.Errorf("got %v", got)
	}
	if got := NormalizeCapabilities([]string{"x,y", "z"}); fmt.Sprint(got) != "[x y z]" {
		t.Errorf("got %v", got)
	}
}
