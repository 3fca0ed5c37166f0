// Package registry persists instance and installation records in a SQLite
// database under the application home, and provides the per-instance
// advisory file locks that serialize lifecycle operations.
//
// Concurrency model: lifecycle mutations for one instance name are
// serialized by an exclusive flock on the instance directory. Operations on
// different names only share the short registry transactions, which ride on
// SQLite's WAL mode and a 5-second busy timeout. Contention that outlives
// either bound surfaces as a REGISTRY_LOCKED error, never as a hang.
//
// The status column only ever stores "stopped" or "running". A crashed
// instance is detected at read time by the supervisor, not recorded here.
package registry
