package registry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
)

const badgerPrefix = "agent/"

// BadgerStore implements Store on a local BadgerDB. Keys are
// "agent/<agent_id>", so a prefix scan yields records already ordered by
// agent ID.
type BadgerStore struct {
	db     *badger.DB
	config BadgerConfig
	stopGC chan struct{}
	closed atomic.Bool
}

// BadgerConfig configures the Badger store.
type BadgerConfig struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval runs value-log GC periodically. Zero disables it.
	GCInterval time.Duration
}

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, fmt.Errorf("badger: data directory required")
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	s := &BadgerStore{db: db, config: cfg, stopGC: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.gcLoop(cfg.GCInterval)
	}
	return s, nil
}

func (s *BadgerStore) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to reclaim.
			_ = s.db.RunValueLogGC(0.5)
		}
	}
}

func badgerKey(agentID string) []byte {
	return []byte(badgerPrefix + agentID)
}

// Put inserts or replaces a record in a single transaction.
func (s *BadgerStore) Put(ctx context.Context, rec *AgentRecord) error {
	if err := ValidateRecord(rec); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("marshal agent record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(rec.AgentID), data)
	})
	return s.mapErr(err)
}

// Get retrieves a record by agent ID.
func (s *BadgerStore) Get(ctx context.Context, agentID string) (*AgentRecord, error) {
	if agentID == "" {
		return nil, ErrInvalidID
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var rec *AgentRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(agentID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r, err := UnmarshalRecord(val)
			if err != nil {
				return fmt.Errorf("unmarshal agent record: %w", err)
			}
			rec = r
			return nil
		})
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return rec, nil
}

// Delete removes a record.
func (s *BadgerStore) Delete(ctx context.Context, agentID string) error {
	if agentID == "" {
		return ErrInvalidID
	}
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		key := badgerKey(agentID)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	return s.mapErr(err)
}

// Query iterates the agent prefix in key order. Iteration starts right
// after StartAfter and stops once Limit records matched.
func (s *BadgerStore) Query(ctx context.Context, q Query) ([]*AgentRecord, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	out := make([]*AgentRecord, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		start := []byte(badgerPrefix)
		switch {
		case q.AgentID != "":
			start = badgerKey(q.AgentID)
		case q.StartAfter != "":
			start = badgerKey(q.StartAfter)
		}

		for it.Seek(start); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			agentID := string(item.Key()[len(badgerPrefix):])
			if q.StartAfter != "" && agentID <= q.StartAfter {
				continue
			}
			if q.AgentID != "" && agentID != q.AgentID {
				break
			}

			var rec *AgentRecord
			err := item.Value(func(val []byte) error {
				r, err := UnmarshalRecord(val)
				if err != nil {
					return fmt.Errorf("unmarshal agent record %q: %w", agentID, err)
				}
				rec = r
				return nil
			})
			if err != nil {
				return err
			}
			if !MatchesQuery(rec, q) {
				continue
			}
			out = append(out, rec)
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return out, nil
}

func (s *BadgerStore) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	default:
		return err
	}
}

// Close stops GC and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopGC)
	return s.db.Close()
}
