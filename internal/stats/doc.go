/*
Package stats records request outcomes from virtual users and aggregates them
into point-in-time snapshots.

# Overview

The package has two halves:

 1. Collector (collector.go): an append-only, concurrency-safe store of
    RequestResult values. Many users call Record at once.
 2. Snapshot (snapshot.go): an immutable aggregation of every result whose
    timestamp falls inside a Window, keyed by (task, name).

# Windows

Windows are half-open: From is inclusive and To is exclusive. A zero bound is
open, so All() covers everything recorded. Consecutive interval snapshots
built with Between(prev, now) never count a result twice.

# Latency Distribution

Latencies are recorded into an HDR histogram (microsecond resolution, three
significant digits). Percentiles are clamped to the observed min and max.

# Thread Safety

Record, Snapshot, Len and Reset are safe to call concurrently. Snapshot copies
the slice header under a read lock and aggregates without holding it; results
are never modified after they are appended, so a snapshot never observes a
partially written entry.
*/
package stats
