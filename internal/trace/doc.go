// Package trace holds the in-memory telemetry history pushed by agents.
//
// The store is append-only: entries are never mutated or reordered after
// insertion, and aggregate views are recomputed from scratch on each call
// rather than maintained incrementally.
package trace
