/*
Package conversation owns the per-session dialogue state.

The Machine is the only writer of domain.SessionState: it loads sessions at
the start of a turn, applies guard-approved transitions, appends messages,
advances the dialog phase and persists the result. Concurrent access to the
same session is serialized through reference-counted per-session locks,
optionally backed by a distributed locker when running replicated.
*/
package conversation
