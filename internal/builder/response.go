package builder

import (
	"github.com/vektah/gqlparser/v2/gqlerror"

	tracker "github.com/hanpama/cascade/internal/tracker"
)

// Response is the cascade response envelope handed back to mutation
// callers. It round-trips through JSON without loss for primitive, array,
// and nested-record values.
type Response struct {
	Success bool          `json:"success"`
	Data    any           `json:"data"`
	Cascade Cascade       `json:"cascade"`
	Errors  gqlerror.List `json:"errors"`
}

// Cascade carries the change-set plus derived invalidation hints.
type Cascade struct {
	Updated       []tracker.UpdatedEntity `json:"updated"`
	Deleted       []tracker.DeletedEntity `json:"deleted"`
	Invalidations []Invalidation          `json:"invalidations"`
	Metadata      tracker.Metadata        `json:"metadata"`
}
