// Package bus carries registry change events.
//
// # Overview
//
// Three layers, bottom up:
//
//   - MessageBus: subject-based pub/sub with channel-based subscriptions.
//     NATSBus is the production implementation, MemoryBus serves tests and
//     single-node deployments.
//   - Broker: typed Event publish/subscribe on one subject (default
//     "ans-sync"). Every subscriber gets its own EventStream, so there is no
//     shared client list to prune.
//   - Emitter: a bounded, best-effort sender used by the registration path.
//
// # Delivery
//
// Emit never blocks and never fails the caller. An event may be dropped when
// the queue is full, when the emitter is closed, or when the publish fails
// within its timeout. Drops and failures are logged and counted:
//
//	emitter := bus.NewEmitter(broker, bus.DefaultEmitterConfig(), log)
//	emitter.Emit(bus.Event{Type: bus.EventAgentRegister, AgentID: id, Priority: bus.PriorityStandard})
//	...
//	emitter.Close(ctx) // drains what is queued
//
// Consumers needing stronger guarantees should put a durable outbox behind
// the Publisher interface.
package bus
