package builder

import (
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"

	tracker "github.com/hanpama/cascade/internal/tracker"
)

// StreamingBuilder assembles responses from the tracker's lazy sequences
// instead of the materialized change map, applying filter, transform,
// serialization, and the count limits incrementally and stopping as soon
// as a maximum is reached. This bounds peak memory for very large
// cascades; the trade-off is that the size-estimate second-stage
// truncation, which needs total counts up front, does not apply. The
// streaming path stops purely on count limits.
type StreamingBuilder struct {
	core
}

// NewStreaming creates a StreamingBuilder with defaulted options.
func NewStreaming(opts ...Option) *StreamingBuilder {
	return &StreamingBuilder{core{opt: defaultOptions(opts)}}
}

// BuildResponse drains the tracker incrementally and aborts its
// transaction once consumed. When no transaction is active the cascade is
// empty, mirroring the materialized builder.
func (b *StreamingBuilder) BuildResponse(t *tracker.Tracker, primary any, success bool, errs gqlerror.List) *Response {
	start := time.Now()
	cascade := Cascade{
		Updated:       []tracker.UpdatedEntity{},
		Deleted:       []tracker.DeletedEntity{},
		Invalidations: []Invalidation{},
	}

	if t != nil && t.Active() {
		var truncUpdated, truncDeleted bool
		for e, op := range t.Changes() {
			if len(cascade.Updated) >= b.opt.MaxUpdatedEntities {
				truncUpdated = true
				break
			}
			if ue, ok := t.BuildUpdated(e, op); ok {
				cascade.Updated = append(cascade.Updated, ue)
			}
		}
		for d := range t.Deletions() {
			if len(cascade.Deleted) >= b.opt.MaxDeletedEntities {
				truncDeleted = true
				break
			}
			cascade.Deleted = append(cascade.Deleted, d)
		}
		meta := t.MetadataSnapshot()
		meta.TruncatedUpdated = meta.TruncatedUpdated || truncUpdated
		meta.TruncatedDeleted = truncDeleted
		cascade.Metadata = meta
		t.Abort()
	} else {
		cascade.Metadata = tracker.Metadata{Timestamp: time.Now()}
	}

	if success {
		cascade.Invalidations = b.computeInvalidations(cascade.Updated, cascade.Deleted, primary)
		if len(cascade.Invalidations) > b.opt.MaxInvalidations {
			cascade.Invalidations = cascade.Invalidations[:b.opt.MaxInvalidations]
			cascade.Metadata.TruncatedInvalidations = true
		}
	}

	return b.finish(&cascade, primary, success, errs, start, true)
}
