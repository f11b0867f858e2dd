// Package registry stores agent identity records.
//
// # Available Implementations
//
//   - MemoryStore: in-memory, for tests and single-node use
//   - NATSStore: NATS JetStream KV bucket shared by several registry nodes
//   - BadgerStore: durable local BadgerDB
//   - IndexedStore: wraps any of the above with a bleve keyword index
//
// # Basic Usage
//
//	store := registry.NewMemoryStore()
//	err := store.Put(ctx, &registry.AgentRecord{
//	    AgentID:            "nia.ans",
//	    Name:               "Nia",
//	    Capabilities:       []string{"translator", "english"},
//	    VerificationStatus: registry.StatusProvisional,
//	})
//
// Query with the predicates discovery needs:
//
//	recs, _ := store.Query(ctx, registry.Query{
//	    NamePrefix:      "Ni",
//	    AnyCapabilities: []string{"translator"},
//	    Statuses:        []registry.VerificationStatus{registry.StatusVerified},
//	    Limit:           10,
//	})
//
// Results are ordered by agent_id. To fetch the next page pass the last
// agent_id seen as StartAfter.
//
// # NATS Store
//
// For shared deployments reuse the bus connection:
//
//	natsBus, _ := bus.NewNATSBroker(bus.NATSConfig{URL: "nats://localhost:4222"})
//	store, _ := registry.NewNATSStore(ctx, natsBus.Conn(), registry.NATSStoreConfig{
//	    Bucket: "ans-agents",
//	})
//
// KV keys are the base64url form of the agent_id, so any agent_id is
// storable.
package registry
