package events

import "time"

// TransactionStart is emitted when a tracker opens a transaction.
type TransactionStart struct {
	TransactionID string
}

// TransactionFinish is emitted when a transaction ends or is aborted.
type TransactionFinish struct {
	TransactionID string
	AffectedCount int
	Depth         int
	Truncated     bool
	Aborted       bool
	Duration      time.Duration
}

// SerializationError is emitted when a tracked entity cannot be serialized
// and is dropped from the cascade output.
type SerializationError struct {
	TransactionID string
	Typename      string
	ID            string
	Err           error
}

// FilterSkipped is emitted when the synchronous build path encounters a
// context-aware entity filter it cannot await. The filter is not applied.
type FilterSkipped struct {
	TransactionID string
}
