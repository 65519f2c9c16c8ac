package builder

import (
	eventbus "github.com/hanpama/cascade/internal/eventbus"
	tracker "github.com/hanpama/cascade/internal/tracker"
)

// Defaults for the response limits.
const (
	DefaultMaxResponseSizeMB  = 5.0
	DefaultMaxUpdatedEntities = 500
	DefaultMaxDeletedEntities = 100
	DefaultMaxInvalidations   = 50
)

// Invalidation is an externally computed cache-invalidation hint. The
// builder treats it as opaque.
type Invalidation = any

// Invalidator computes invalidation hints for a finished cascade. It may
// return nil for "no hints"; errors and panics are recovered by the
// builder, which falls back to an empty list.
type Invalidator interface {
	ComputeInvalidations(updated []tracker.UpdatedEntity, deleted []tracker.DeletedEntity, primary any) ([]Invalidation, error)
}

// Options configures a Builder or StreamingBuilder.
type Options struct {
	// MaxResponseSizeMB bounds the estimated payload size; exceeding it on
	// large cascades triggers the coarse second-stage truncation.
	MaxResponseSizeMB float64

	// Count limits applied independently to each response array.
	MaxUpdatedEntities int
	MaxDeletedEntities int
	MaxInvalidations   int

	// IncludeTimingMetadata keeps trackingTime/constructionTime in the
	// response. Disable for untrusted clients.
	IncludeTimingMetadata bool

	// IncludeTransactionID keeps the transaction id in the response.
	IncludeTransactionID bool

	// Invalidator is the optional collaborator computing invalidation
	// hints. Nil disables invalidations.
	Invalidator Invalidator

	// OnError receives recovered collaborator failures.
	OnError func(err error)

	// Bus receives builder events. Nil disables publishing.
	Bus *eventbus.Bus
}

// Option mutates Options.
type Option func(*Options)

func WithMaxResponseSizeMB(mb float64) Option {
	return func(o *Options) { o.MaxResponseSizeMB = mb }
}
func WithMaxUpdatedEntities(n int) Option { return func(o *Options) { o.MaxUpdatedEntities = n } }
func WithMaxDeletedEntities(n int) Option { return func(o *Options) { o.MaxDeletedEntities = n } }
func WithMaxInvalidations(n int) Option   { return func(o *Options) { o.MaxInvalidations = n } }
func WithTimingMetadata(include bool) Option {
	return func(o *Options) { o.IncludeTimingMetadata = include }
}
func WithTransactionID(include bool) Option {
	return func(o *Options) { o.IncludeTransactionID = include }
}
func WithInvalidator(inv Invalidator) Option { return func(o *Options) { o.Invalidator = inv } }
func WithOnError(f func(err error)) Option   { return func(o *Options) { o.OnError = f } }
func WithBus(b *eventbus.Bus) Option         { return func(o *Options) { o.Bus = b } }

func defaultOptions(opts []Option) Options {
	opt := Options{
		MaxResponseSizeMB:     DefaultMaxResponseSizeMB,
		MaxUpdatedEntities:    DefaultMaxUpdatedEntities,
		MaxDeletedEntities:    DefaultMaxDeletedEntities,
		MaxInvalidations:      DefaultMaxInvalidations,
		IncludeTimingMetadata: true,
		IncludeTransactionID:  true,
	}
	for _, f := range opts {
		f(&opt)
	}
	return opt
}
