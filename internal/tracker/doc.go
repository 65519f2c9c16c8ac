// Package tracker accumulates the entity changes caused by one write
// operation and expands them into a flat, budget-bounded cascade through
// cycle-safe relationship traversal.
//
// # Overview
//
// A Tracker is scoped to one logical transaction:
//
//	IDLE → ACTIVE → (ENDED | ABORTED) → IDLE
//
// StartTransaction resets all transaction state and opens the window.
// TrackCreate, TrackUpdate, and TrackDelete record changes while the caller
// performs the underlying write. EndTransaction (or EndTransactionContext)
// materializes the accumulated change map into CascadeData and clears the
// state; GetCascadeData does the same without closing the window, and Abort
// discards it.
//
// # Tracking model
//
// Entities are duck-typed (see the entity package): any value resolving to a
// (typename, id) pair qualifies. Each tracking step runs, in order:
//
//  1. Global budget: once MaxEntities distinct keys are tracked, further
//     tracking is dropped and the cascade is flagged truncated. The budget
//     check precedes the exclude filter, so excluded entities can still
//     consume budget slots on paths that reach them.
//  2. Key resolution: a missing id aborts the call with MISSING_ID.
//  3. Exclude filter: typenames in ExcludeTypes are silently skipped.
//  4. Validation: a ValidateEntity error aborts the whole call.
//  5. Visited check: a key seen earlier in this transaction is an
//     idempotent no-op; the operation recorded at first encounter stands.
//  6. Storage, then relationship traversal when enabled and within
//     MaxDepth.
//
// Traversal discovers related entities from the entity's own surface (a
// RelationSource capability, or reflection over public fields), truncates
// the discovered list to MaxRelatedPerEntity, and recurses depth-first;
// every related entity records UPDATED regardless of the parent operation.
// The global visited set doubles as the cycle guard: a cycle's second
// occurrence of a key is already visited, so recursion terminates without
// path tracking. Depth is restored on the way back out, and the metadata
// depth reports the deepest point reached across the whole transaction.
//
// Deletes always win: TrackDelete removes any pending change for the same
// key, and the build paths additionally skip changes whose key is in the
// deleted set, keeping the updated and deleted outputs disjoint.
//
// # Building output
//
// Per entity, the build applies the entity filter, then TransformEntity,
// then serialization to a wire record (entity.ToDict). Serialization
// failures are recovered locally: counted in metadata, reported through the
// bus and OnError, and the entity is omitted. The rest of the cascade is
// unaffected.
//
// The entity filter has a synchronous and a context-aware form.
// EndTransaction applies only the synchronous one; a configured
// context-aware filter is a detectable, reportable condition there (a
// FilterSkipped event, filter not applied), never an implicit block.
// EndTransactionContext awaits the context-aware filter per entity in
// insertion order, so output order is deterministic regardless of how long
// individual decisions take.
//
// The Changes and Deletions sequences expose the change map lazily for
// streaming consumers; BuildUpdated materializes one entry at a time with
// the same hook pipeline.
//
// # Concurrency
//
// A Tracker is single-caller by design: StartTransaction is a hard mutual
// exclusion gate, not a lock. Concurrency across independent write
// operations comes from one Tracker per operation, never from sharing.
package tracker
