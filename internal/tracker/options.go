package tracker

import (
	"context"

	entity "github.com/hanpama/cascade/internal/entity"
	eventbus "github.com/hanpama/cascade/internal/eventbus"
)

// Defaults for the traversal budgets.
const (
	DefaultMaxDepth            = 3
	DefaultMaxEntities         = 1000
	DefaultMaxRelatedPerEntity = 100
)

// Options configures a Tracker. The zero value is not usable directly;
// New applies the defaults before running the option functions.
type Options struct {
	// MaxDepth bounds how many traversal hops from a tracked root are
	// followed when discovering related entities.
	MaxDepth int

	// MaxEntities is the hard global budget of distinct tracked keys per
	// transaction. Once reached, further tracking is dropped and the
	// cascade is flagged truncated.
	MaxEntities int

	// MaxRelatedPerEntity bounds the breadth of each traversal step.
	MaxRelatedPerEntity int

	// ExcludeTypes lists typenames that are silently skipped.
	ExcludeTypes []string

	// RelationshipTracking enables traversal of discovered relationships.
	RelationshipTracking bool

	// FieldFilter decides per-field inclusion during serialization.
	FieldFilter entity.FieldFilter

	// EntityFilter decides per-entity inclusion when building output on
	// the synchronous path.
	EntityFilter func(e any) bool

	// EntityFilterContext is the context-aware variant, honored only by
	// EndTransactionContext. The synchronous path cannot await it: when it
	// is configured without EntityFilter, the sync path flags the skip and
	// keeps the entity.
	EntityFilterContext func(ctx context.Context, e any) (bool, error)

	// ValidateEntity rejects an entity before it is tracked. An error
	// aborts the whole TrackCreate/TrackUpdate call.
	ValidateEntity func(e any) error

	// TransformEntity rewrites the raw entity before serialization.
	TransformEntity func(e any) any

	// OnError receives recoverable per-entity failures.
	OnError func(err error)

	// Bus receives lifecycle and failure events. Nil disables publishing.
	Bus *eventbus.Bus
}

// Option mutates Options.
type Option func(*Options)

func WithMaxDepth(n int) Option            { return func(o *Options) { o.MaxDepth = n } }
func WithMaxEntities(n int) Option         { return func(o *Options) { o.MaxEntities = n } }
func WithMaxRelatedPerEntity(n int) Option { return func(o *Options) { o.MaxRelatedPerEntity = n } }
func WithExcludeTypes(types ...string) Option {
	return func(o *Options) { o.ExcludeTypes = append(o.ExcludeTypes, types...) }
}
func WithRelationshipTracking(enable bool) Option {
	return func(o *Options) { o.RelationshipTracking = enable }
}
func WithFieldFilter(f entity.FieldFilter) Option { return func(o *Options) { o.FieldFilter = f } }
func WithEntityFilter(f func(e any) bool) Option  { return func(o *Options) { o.EntityFilter = f } }
func WithEntityFilterContext(f func(ctx context.Context, e any) (bool, error)) Option {
	return func(o *Options) { o.EntityFilterContext = f }
}
func WithValidateEntity(f func(e any) error) Option {
	return func(o *Options) { o.ValidateEntity = f }
}
func WithTransformEntity(f func(e any) any) Option {
	return func(o *Options) { o.TransformEntity = f }
}
func WithOnError(f func(err error)) Option { return func(o *Options) { o.OnError = f } }
func WithBus(b *eventbus.Bus) Option       { return func(o *Options) { o.Bus = b } }
