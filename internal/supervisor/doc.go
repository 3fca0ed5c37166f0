// Package supervisor drives the instance lifecycle: starting engine
// processes, waiting for them to accept connections, stopping them with
// escalation, and dropping them entirely.
//
// Every mutating operation takes the per-instance file lock before touching
// the process or the registry, so concurrent invocations serialize instead
// of corrupting state. Reads never write: a record that claims a running
// process which no longer exists is reported as crashed, and only the next
// mutating operation converges the stored state.
package supervisor
