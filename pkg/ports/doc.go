/*
Package ports defines the driven ports (interfaces) for the ordesk core.

These interfaces decouple the turn pipeline from external implementations,
allowing it to work with various session stores, generative backends and
side-effect sinks.

# Key Interfaces

  - SessionStore: persisting and loading SessionState between turns.
  - Generator: the generative backend producing a candidate reply and a
    proposed next state (an unreliable, latency-variable RPC).
  - DistributedLocker: distributed locking for concurrent session access
    across replicas.
  - Escalator: human-handoff notification sink.
*/
package ports
