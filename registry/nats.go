package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore implements Store using a NATS JetStream KV bucket.
// Suitable for deployments where several registry nodes share one cluster.
type NATSStore struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	config NATSStoreConfig

	mu     sync.RWMutex
	closed bool
}

// NATSStoreConfig configures the NATS store.
type NATSStoreConfig struct {
	// Bucket is the KV bucket name. Default: "ans-agents"
	Bucket string

	// Replicas for the KV bucket (1-5). Default: 1
	Replicas int

	// OpTimeout bounds each KV round trip. Default: 5s
	OpTimeout time.Duration
}

// DefaultNATSStoreConfig returns configuration with sensible defaults.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket:    "ans-agents",
		Replicas:  1,
		OpTimeout: 5 * time.Second,
	}
}

// NewNATSStore creates the store on an existing connection, creating the
// bucket if needed.
func NewNATSStore(ctx context.Context, conn *nats.Conn, cfg NATSStoreConfig) (*NATSStore, error) {
	if conn == nil {
		return nil, fmt.Errorf("nil connection")
	}
	def := DefaultNATSStoreConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = def.Bucket
	}
	if cfg.Replicas < 1 {
		cfg.Replicas = def.Replicas
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Replicas: cfg.Replicas,
		History:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}

	return &NATSStore{
		conn:   conn,
		kv:     kv,
		config: cfg,
	}, nil
}

// kvKey maps an agent ID onto the restricted KV key alphabet.
func kvKey(agentID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(agentID))
}

func (s *NATSStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Put inserts or replaces a record.
func (s *NATSStore) Put(ctx context.Context, rec *AgentRecord) error {
	if err := ValidateRecord(rec); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("marshal agent record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	if _, err := s.kv.Put(ctx, kvKey(rec.AgentID), data); err != nil {
		return fmt.Errorf("put to kv: %w", err)
	}
	return nil
}

// Get retrieves a record by agent ID.
func (s *NATSStore) Get(ctx context.Context, agentID string) (*AgentRecord, error) {
	if agentID == "" {
		return nil, ErrInvalidID
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	return s.get(ctx, kvKey(agentID))
}

func (s *NATSStore) get(ctx context.Context, key string) (*AgentRecord, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get from kv: %w", err)
	}
	rec, err := UnmarshalRecord(entry.Value())
	if err != nil {
		return nil, fmt.Errorf("unmarshal agent record: %w", err)
	}
	return rec, nil
}

// Delete removes a record.
func (s *NATSStore) Delete(ctx context.Context, agentID string) error {
	if agentID == "" {
		return ErrInvalidID
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	key := kvKey(agentID)
	if _, err := s.kv.Get(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get from kv: %w", err)
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete from kv: %w", err)
	}
	return nil
}

// Query scans the bucket and returns matching records ordered by agent ID.
// A lookup by exact agent ID is served with a single Get.
func (s *NATSStore) Query(ctx context.Context, q Query) ([]*AgentRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	if q.AgentID != "" {
		rec, err := s.get(ctx, kvKey(q.AgentID))
		if errors.Is(err, ErrNotFound) {
			return []*AgentRecord{}, nil
		}
		if err != nil {
			return nil, err
		}
		return SelectPage([]*AgentRecord{rec}, q), nil
	}

	lister, err := s.kv.ListKeys(ctx, jetstream.MetaOnly())
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer lister.Stop()

	var all []*AgentRecord
	for key := range lister.Keys() {
		rec, err := s.get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue // deleted since listing
		}
		if err != nil {
			return nil, err
		}
		all = append(all, rec)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	return SelectPage(all, q), nil
}

// Close marks the store closed. The connection belongs to the caller.
func (s *NATSStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Conn returns the underlying NATS connection.
func (s *NATSStore) Conn() *nats.Conn {
	return s.conn
}
