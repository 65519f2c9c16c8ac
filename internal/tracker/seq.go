package tracker

import "iter"

// Changes yields the raw tracked (entity, operation) pairs in insertion
// order, excluding keys that were also deleted. The sequence is restartable:
// each call iterates the current transaction state from the beginning. It is
// the streaming counterpart to the materialized change map and bounds peak
// memory when combined with BuildUpdated.
func (t *Tracker) Changes() iter.Seq2[any, Operation] {
	return func(yield func(any, Operation) bool) {
		for _, key := range t.order {
			c, ok := t.changes[key]
			if !ok {
				continue
			}
			if _, gone := t.deleted[key]; gone {
				continue
			}
			if !yield(c.entity, c.op) {
				return
			}
		}
	}
}

// Deletions yields deletion records in insertion order. Restartable per
// call, like Changes.
func (t *Tracker) Deletions() iter.Seq[DeletedEntity] {
	return func(yield func(DeletedEntity) bool) {
		for _, key := range t.deletedOrder {
			d := t.deleted[key]
			if !yield(DeletedEntity{Typename: d.ref.Typename, ID: d.ref.ID, DeletedAt: d.at}) {
				return
			}
		}
	}
}
