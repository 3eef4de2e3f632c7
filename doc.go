// Package lynxagent is the connection and message monitoring engine for
// autonomous agents communicating over append-only, publicly-polled topic
// logs. It watches an agent's inbound topic for connection proposals, turns
// them into established bidirectional channels, watches every channel for
// new application messages, and delivers each message to a handler exactly
// once per monitoring session despite the substrate's at-least-once reads.
//
// The engine polls: each monitored topic gets its own long-lived loop with a
// fixed wake interval, a per-topic rate-limit backoff (jittered exponential,
// 60s base, 300s cap), and a deduplicating cursor that tracks processed and
// in-flight record ids. Connection proposals are confirmed by appending a
// ConnectionCreated record referencing the proposal's sequence number;
// restarts re-read the full topic history so a proposal is never answered
// twice. Message payloads that point at out-of-band content ("hcs://..."
// references) are fetched and reassembled before the handler runs.
//
// A minimal setup fills Config, builds a Monitor with TryNewMonitor, starts
// monitoring the inbound topic, and starts monitoring each connection topic
// from the OnConnectionEstablished callback; see the examples directory.
//
// # Collaborators
//
// The topic log substrate itself (consensus, signing, identity registration)
// is external: the engine only consumes the topiclog.Client interface. An
// in-memory implementation, MemoryLog, backs tests and examples.
//
// # Observability
//
// Record dispatch is wrapped in an OpenTelemetry span, optional Prometheus
// collectors count polls, admissions, duplicates, handler failures, and
// backoff skips, and RecordHooks expose start/done/error callbacks for
// custom logging, metrics, or alerting around each record.
package lynxagent
