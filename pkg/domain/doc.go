/*
Package domain contains the core domain models for the ordesk turn pipeline.

It defines the entities shared by the debouncer, the conversation state
machine and the provider layer: dialogue states, session snapshots, message
fragments and aggregated turns, transition requests/results, and the typed
errors of the pipeline. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - StateID: the fixed enumeration of dialogue states.
  - SessionState: the runtime snapshot of one conversation (messages,
    current state, dialog phase, step counter).
  - BufferedFragment / AggregatedTurn: a raw inbound message piece and the
    merged turn released by the debouncer.
  - TransitionRequest / TransitionResult: input and output of the
    transition guard.
*/
package domain
