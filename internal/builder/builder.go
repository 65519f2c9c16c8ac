// Package builder converts a tracker's change-set into a size- and
// count-bounded cascade response, merging in externally computed
// invalidation hints. BuildResponse and BuildErrorResponse never panic and
// never return nil: any internal failure degrades to a smaller but valid
// envelope.
package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"

	eventbus "github.com/hanpama/cascade/internal/eventbus"
	events "github.com/hanpama/cascade/internal/events"
	tracker "github.com/hanpama/cascade/internal/tracker"
)

// Builder assembles cascade responses from a tracker's materialized
// change-set. Builders hold no transaction state and may be reused, but a
// single BuildResponse call ends the given tracker's transaction and must
// not race with other calls touching the same tracker.
type Builder struct {
	core
}

type core struct {
	opt Options
}

// New creates a Builder with defaulted options.
func New(opts ...Option) *Builder {
	return &Builder{core{opt: defaultOptions(opts)}}
}

// BuildResponse ends the tracker's transaction and assembles the response
// envelope. When no transaction is active the cascade is empty rather than
// failing; the build always succeeds at the envelope level.
func (b *Builder) BuildResponse(t *tracker.Tracker, primary any, success bool, errs gqlerror.List) *Response {
	start := time.Now()
	data := b.drain(func() (*tracker.CascadeData, error) { return t.EndTransaction() })
	return b.assemble(data, primary, success, errs, start, false)
}

// BuildResponseContext is BuildResponse draining through the tracker's
// context-aware path, so context-aware entity filters are honored.
func (b *Builder) BuildResponseContext(ctx context.Context, t *tracker.Tracker, primary any, success bool, errs gqlerror.List) *Response {
	start := time.Now()
	data := b.drain(func() (*tracker.CascadeData, error) { return t.EndTransactionContext(ctx) })
	return b.assemble(data, primary, success, errs, start, false)
}

// BuildErrorResponse always reports failure. An active transaction is
// drained best-effort for a partial cascade; drain failures are swallowed
// in favor of an empty one. Error responses never throw.
func (b *Builder) BuildErrorResponse(t *tracker.Tracker, errs gqlerror.List, primary any) *Response {
	start := time.Now()
	data := emptyCascade()
	if t != nil && t.Active() {
		data = b.drain(func() (*tracker.CascadeData, error) { return t.EndTransaction() })
	}
	return b.assemble(data, primary, false, errs, start, false)
}

// drain runs the end-of-transaction callback, substituting an empty
// cascade when the tracker has no transaction or the drain itself fails.
func (b *core) drain(end func() (*tracker.CascadeData, error)) (data *tracker.CascadeData) {
	defer func() {
		if r := recover(); r != nil {
			b.report(fmt.Errorf("drain cascade: %v", r))
			data = emptyCascade()
		}
	}()
	d, err := end()
	if err != nil {
		return emptyCascade()
	}
	return d
}

func (b *Builder) assemble(data *tracker.CascadeData, primary any, success bool, errs gqlerror.List, start time.Time, streaming bool) *Response {
	cascade := Cascade{
		Updated:       data.Updated,
		Deleted:       data.Deleted,
		Invalidations: []Invalidation{},
		Metadata:      data.Metadata,
	}
	if success {
		cascade.Invalidations = b.computeInvalidations(cascade.Updated, cascade.Deleted, primary)
	}
	b.applySizeLimits(&cascade)
	return b.finish(&cascade, primary, success, errs, start, streaming)
}

// computeInvalidations invokes the invalidator, recovering errors and
// panics into an empty hint list so the build is never aborted.
func (b *core) computeInvalidations(updated []tracker.UpdatedEntity, deleted []tracker.DeletedEntity, primary any) (out []Invalidation) {
	if b.opt.Invalidator == nil {
		return []Invalidation{}
	}
	defer func() {
		if r := recover(); r != nil {
			b.reportInvalidator(fmt.Errorf("invalidator panic: %v", r))
			out = []Invalidation{}
		}
	}()
	inv, err := b.opt.Invalidator.ComputeInvalidations(updated, deleted, primary)
	if err != nil {
		b.reportInvalidator(err)
		return []Invalidation{}
	}
	if inv == nil {
		return []Invalidation{}
	}
	return inv
}

// finish stamps timing, applies the metadata disclosure controls, and
// emits the envelope.
func (b *core) finish(c *Cascade, primary any, success bool, errs gqlerror.List, start time.Time, streaming bool) *Response {
	c.Metadata.ConstructionTime = time.Since(start)
	c.Metadata.Streaming = streaming
	if !b.opt.IncludeTimingMetadata {
		c.Metadata.TrackingTime = 0
		c.Metadata.ConstructionTime = 0
	}
	if !b.opt.IncludeTransactionID {
		c.Metadata.TransactionID = ""
	}
	if errs == nil {
		errs = gqlerror.List{}
	}
	eventbus.Publish(context.Background(), b.opt.Bus, events.ResponseBuilt{
		Success:       success,
		Updated:       len(c.Updated),
		Deleted:       len(c.Deleted),
		Invalidations: len(c.Invalidations),
		Streaming:     streaming,
		Duration:      time.Since(start),
	})
	return &Response{Success: success, Data: primary, Cascade: *c, Errors: errs}
}

func (b *core) report(err error) {
	if b.opt.OnError != nil {
		b.opt.OnError(err)
	}
}

func (b *core) reportInvalidator(err error) {
	b.report(err)
	eventbus.Publish(context.Background(), b.opt.Bus, events.InvalidatorError{Err: err})
}

func emptyCascade() *tracker.CascadeData {
	return &tracker.CascadeData{
		Updated:  []tracker.UpdatedEntity{},
		Deleted:  []tracker.DeletedEntity{},
		Metadata: tracker.Metadata{Timestamp: time.Now()},
	}
}
