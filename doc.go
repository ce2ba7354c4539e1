/*
Package ordesk is a turn-processing engine for conversational order-taking
agents. It turns a stream of raw user message fragments into complete,
state-guarded dialogue turns.

A turn passes through four layers:

  - Debouncer: buffers rapid message fragments per user and releases one
    aggregated turn when the user pauses. A newer fragment supersedes any
    waiter already parked on the window, so exactly one caller receives the
    turn.
  - Conversation state machine: one dialogue state per session (discovery,
    size_color, offer, payment_delivery, ...), persisted through a pluggable
    session store (in-memory or Redis, with a distributed lock for
    multi-replica deployments).
  - Transition guard: validates the state proposed by the generative backend
    against the legality graph, repairs illegal jumps and phase regressions,
    and forces escalation on repeated failures or moderation rejections.
  - Provider failover: priority-ordered generative backends, each behind its
    own circuit breaker with bounded half-open probing.

Side effects (CRM notifications, human handoff) run on a bounded worker pool
after the turn commits; they never fail or delay the user-facing reply.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/ordesk/ordesk"
		"github.com/ordesk/ordesk/pkg/config"
		"github.com/ordesk/ordesk/pkg/domain"
	)

	func main() {
		cfg, err := config.Load("ordesk.yaml")
		if err != nil {
			log.Fatal(err)
		}

		engine, err := ordesk.New(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer engine.Close()

		res, err := engine.Handle(context.Background(), "user-123", domain.BufferedFragment{
			Text: "do you have these in red?",
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("[%s] %s", res.FinalState, res.Reply)
	}

Handle blocks for the debounce delay; concurrent calls for the same user
coalesce into one turn, and superseded callers receive ErrSuperseded.
*/
package ordesk
