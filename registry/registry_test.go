package registry

import (
	"encoding/json"
	"testing"
)

// --- Unit Tests ---

func TestMatchesQuery(t *testing.T) {
	rec := &AgentRecord{
		AgentID:            "nia.ans",
		Name:               "Nia",
		Capabilities:       []string{"translator", "english"},
		VerificationStatus: StatusVerified,
		DID:                "did:ans:x:y",
	}

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty", Query{}, true},
		{"agent id", Query{AgentID: "nia.ans"}, true},
		{"other agent id", Query{AgentID: "diana.ans"}, false},
		{"status", Query{Statuses: []VerificationStatus{StatusVerified}}, true},
		{"empty status ignored", Query{Statuses: []VerificationStatus{""}}, true},
		{"wrong status", Query{Statuses: []VerificationStatus{StatusProvisional}}, false},
		{"prefix", Query{NamePrefix: "Ni"}, true},
		{"full name prefix", Query{NamePrefix: "Nia"}, true},
		{"no prefix", Query{NamePrefix: "Dia"}, false},
		{"any capability", Query{AnyCapabilities: []string{"summarizer", "english"}}, true},
		{"no capability", Query{AnyCapabilities: []string{"summarizer"}}, false},
		{"did", Query{DID: "did:ans:x:y"}, true},
		{"wrong did", Query{DID: "did:ans:x:z"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesQuery(rec, tt.q); got != tt.want {
				t.Errorf("MatchesQuery() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasAllCapabilities(t *testing.T) {
	rec := &AgentRecord{Capabilities: []string{"translator", "english", "multilingual"}}
	if !rec.HasAllCapabilities([]string{"english", "translator"}) {
		t.Error("order of requested capabilities should not matter")
	}
	if rec.HasAllCapabilities([]string{"translator", "french"}) {
		t.Error("missing capability should fail")
	}
	if !rec.HasAllCapabilities(nil) {
		t.Error("no requested capabilities should pass")
	}
}

func TestSelectPage(t *testing.T) {
	recs := []*AgentRecord{{AgentID: "c"}, {AgentID: "a"}, {AgentID: "b"}, {AgentID: "d"}}

	got := SelectPage(recs, Query{StartAfter: "a", Limit: 2})
	if !equalIDs(ids(got), []string{"b", "c"}) {
		t.Errorf("got %v", ids(got))
	}
	if got := SelectPage(nil, Query{}); got == nil || len(got) != 0 {
		t.Errorf("empty input should give an empty non-nil slice, got %#v", got)
	}
}

func TestClone(t *testing.T) {
	proof := "p"
	orig := &AgentRecord{
		AgentID:         "a",
		Capabilities:    []string{"x"},
		Endpoints:       map[string]string{"a2a": "u"},
		PrivateClaims:   map[string]any{"nested": map[string]any{"k": []any{"v"}}},
		BlockchainProof: &proof,
	}
	c := orig.Clone()
	c.Capabilities[0] = "changed"
	c.Endpoints["a2a"] = "changed"
	c.PrivateClaims["nested"].(map[string]any)["k"].([]any)[0] = "changed"
	*c.BlockchainProof = "changed"

	if orig.Capabilities[0] != "x" || orig.Endpoints["a2a"] != "u" || *orig.BlockchainProof != "p" {
		t.Error("clone shares memory with original")
	}
	if orig.PrivateClaims["nested"].(map[string]any)["k"].([]any)[0] != "v" {
		t.Error("clone shares nested metadata with original")
	}
	if (*AgentRecord)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestUnmarshalRecord_KeepsNumbers(t *testing.T) {
	rec := &AgentRecord{AgentID: "a", PrivateClaims: map[string]any{"n": json.Number("1.50")}}
	data, err := rec.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := UnmarshalRecord(data)
	if err != nil {
		t.Fatalf("UnmarshalRecord: %v", err)
	}
	if n, ok := got.PrivateClaims["n"].(json.Number); !ok || n.String() != "1.50" {
		t.Errorf("n = %#v", got.PrivateClaims["n"])
	}
}
