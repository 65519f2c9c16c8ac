package events

import "time"

// InvalidatorError is emitted when the invalidator collaborator fails; the
// response falls back to an empty invalidation list.
type InvalidatorError struct {
	Err error
}

// ResponseBuilt is emitted after a cascade response envelope is assembled.
type ResponseBuilt struct {
	Success       bool
	Updated       int
	Deleted       int
	Invalidations int
	Streaming     bool
	Duration      time.Duration
}
