package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

// Common errors.
var (
	ErrNotFound  = errors.New("agent not found")
	ErrClosed    = errors.New("registry closed")
	ErrInvalidID = errors.New("invalid agent ID")
)

// VerificationStatus is the trust state of a registration.
type VerificationStatus string

const (
	StatusProvisional VerificationStatus = "provisional"
	StatusVerified    VerificationStatus = "verified"
	StatusRevoked     VerificationStatus = "revoked"
)

// AgentRecord is the persisted identity profile of an agent.
type AgentRecord struct {
	AgentID              string             `json:"agent_id"`
	Name                 string             `json:"name"`
	Description          string             `json:"description,omitempty"`
	Organization         string             `json:"organization,omitempty"`
	LogoURL              string             `json:"logo_url,omitempty"`
	Website              string             `json:"website,omitempty"`
	Tags                 []string           `json:"tags,omitempty"`
	Capabilities         []string           `json:"capabilities,omitempty"`
	Endpoints            map[string]string  `json:"endpoints,omitempty"`
	VerificationLevel    string             `json:"verification_level,omitempty"`
	PublicKey            string             `json:"public_key"`
	DataResidency        []string           `json:"data_residency,omitempty"`
	CriticalRegistration bool               `json:"critical_registration,omitempty"`
	PrivateClaims        map[string]any     `json:"private_claims,omitempty"`
	SupplyChain          map[string]any     `json:"supply_chain,omitempty"`
	DID                  string             `json:"did"`
	VerificationStatus   VerificationStatus `json:"verification_status"`
	BlockchainProof      *string            `json:"blockchain_proof,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// HasCapability reports whether the record lists capability.
func (r *AgentRecord) HasCapability(capability string) bool {
	for _, c := range r.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether every entry of caps is listed.
func (r *AgentRecord) HasAllCapabilities(caps []string) bool {
	for _, c := range caps {
		if !r.HasCapability(c) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the record.
func (r *AgentRecord) Clone() *AgentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Tags = cloneStrings(r.Tags)
	c.Capabilities = cloneStrings(r.Capabilities)
	c.DataResidency = cloneStrings(r.DataResidency)
	if r.Endpoints != nil {
		c.Endpoints = make(map[string]string, len(r.Endpoints))
		for k, v := range r.Endpoints {
			c.Endpoints[k] = v
		}
	}
	if r.PrivateClaims != nil {
		c.PrivateClaims = cloneValue(r.PrivateClaims).(map[string]any)
	}
	if r.SupplyChain != nil {
		c.SupplyChain = cloneValue(r.SupplyChain).(map[string]any)
	}
	if r.BlockchainProof != nil {
		p := *r.BlockchainProof
		c.BlockchainProof = &p
	}
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = cloneValue(item)
		}
		return s
	default:
		return val
	}
}

// Marshal encodes the record for a byte-oriented backend.
func (r *AgentRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalRecord decodes a stored record. Numbers inside opaque metadata
// keep their original text.
func UnmarshalRecord(data []byte) (*AgentRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r AgentRecord
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Query selects records. Zero-valued fields do not constrain the result.
type Query struct {
	// AgentID matches agent_id exactly.
	AgentID string

	// Statuses must each equal verification_status. Two different values
	// therefore match nothing.
	Statuses []VerificationStatus

	// NamePrefix matches records whose name starts with it (case-sensitive).
	NamePrefix string

	// AnyCapabilities matches records listing at least one of them.
	AnyCapabilities []string

	// DID matches did exactly.
	DID string

	// StartAfter skips records whose agent_id is not strictly greater.
	StartAfter string

	// Limit caps the number of records returned. Zero means no cap.
	Limit int
}

// MatchesQuery checks every predicate of q except paging.
func MatchesQuery(r *AgentRecord, q Query) bool {
	if q.AgentID != "" && r.AgentID != q.AgentID {
		return false
	}
	for _, s := range q.Statuses {
		if s != "" && r.VerificationStatus != s {
			return false
		}
	}
	if q.NamePrefix != "" && !strings.HasPrefix(r.Name, q.NamePrefix) {
		return false
	}
	if len(q.AnyCapabilities) > 0 {
		found := false
		for _, c := range q.AnyCapabilities {
			if r.HasCapability(c) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.DID != "" && r.DID != q.DID {
		return false
	}
	return true
}

// SelectPage filters records by q, orders them by agent_id and applies
// StartAfter and Limit. The input slice is reordered.
func SelectPage(records []*AgentRecord, q Query) []*AgentRecord {
	sort.Slice(records, func(i, j int) bool {
		return records[i].AgentID < records[j].AgentID
	})

	out := make([]*AgentRecord, 0)
	for _, r := range records {
		if q.StartAfter != "" && r.AgentID <= q.StartAfter {
			continue
		}
		if !MatchesQuery(r, q) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

// Store is a keyed document store of agent records.
type Store interface {
	// Put inserts or fully replaces the record keyed by rec.AgentID.
	Put(ctx context.Context, rec *AgentRecord) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, agentID string) (*AgentRecord, error)

	// Delete removes the record or returns ErrNotFound.
	Delete(ctx context.Context, agentID string) error

	// Query returns matching records ordered by agent_id.
	Query(ctx context.Context, q Query) ([]*AgentRecord, error)

	// Close releases backend resources.
	Close() error
}

// ValidateRecord checks the fields every backend relies on.
func ValidateRecord(rec *AgentRecord) error {
	if rec == nil || rec.AgentID == "" {
		return ErrInvalidID
	}
	return nil
}
