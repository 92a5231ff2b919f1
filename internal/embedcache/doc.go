// Package embedcache maintains one embedding per alert.
//
// A record is valid only while its SourceText equals the alert's current
// derived text; any edit to the title, description or location makes the
// record stale and the next Ensure regenerates it. Concurrent Ensure calls
// for the same alert share one backend computation, and computations for
// different alerts never wait on each other.
//
// Records live in memory for the life of the Cache and may be written through
// to a RecordStore so that restarts do not re-embed every alert.
package embedcache
