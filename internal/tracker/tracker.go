package tracker

import (
	"context"
	"fmt"
	"time"

	entity "github.com/hanpama/cascade/internal/entity"
	eventbus "github.com/hanpama/cascade/internal/eventbus"
	events "github.com/hanpama/cascade/internal/events"
	txid "github.com/hanpama/cascade/internal/txid"
)

type txState int

const (
	stateIdle txState = iota
	stateActive
)

type change struct {
	entity any
	op     Operation
	at     time.Time
	ref    entity.Ref
}

type deletion struct {
	ref entity.Ref
	at  time.Time
}

// Tracker accumulates entity changes during one logical transaction and
// performs cycle-safe relationship traversal with configurable limits.
// A Tracker serves one caller at a time; construct one per write operation.
type Tracker struct {
	opt     Options
	exclude map[string]struct{}

	state        txState
	txID         string
	startedAt    time.Time
	changes      map[string]*change
	order        []string
	deleted      map[string]deletion
	deletedOrder []string
	visited      map[string]struct{}
	depth        int
	maxDepthSeen int
	limitHit     bool
	serErrors    int
	filterFlag   bool
}

// New creates a Tracker with defaulted options.
func New(opts ...Option) *Tracker {
	opt := Options{
		MaxDepth:             DefaultMaxDepth,
		MaxEntities:          DefaultMaxEntities,
		MaxRelatedPerEntity:  DefaultMaxRelatedPerEntity,
		RelationshipTracking: true,
	}
	for _, f := range opts {
		f(&opt)
	}
	exclude := make(map[string]struct{}, len(opt.ExcludeTypes))
	for _, t := range opt.ExcludeTypes {
		exclude[t] = struct{}{}
	}
	t := &Tracker{opt: opt, exclude: exclude}
	t.reset()
	return t
}

// Active reports whether a transaction is open.
func (t *Tracker) Active() bool { return t.state == stateActive }

// TransactionID returns the current transaction id, or "" when idle.
func (t *Tracker) TransactionID() string { return t.txID }

// StartTransaction opens a transaction and returns its id. Starting while
// a transaction is active is a protocol violation.
func (t *Tracker) StartTransaction() (string, error) {
	if t.state == stateActive {
		return "", protocolErr(CodeTransactionInProgress, "transaction %s is already active", t.txID)
	}
	t.reset()
	t.txID = txid.New()
	t.startedAt = time.Now()
	t.state = stateActive
	eventbus.Publish(context.Background(), t.opt.Bus, events.TransactionStart{TransactionID: t.txID})
	return t.txID, nil
}

// TrackCreate records e as created and traverses its relationships.
func (t *Tracker) TrackCreate(e any) error {
	if t.state != stateActive {
		return protocolErr(CodeNoTransaction, "TrackCreate requires an active transaction")
	}
	return t.track(e, OpCreated)
}

// TrackUpdate records e as updated and traverses its relationships.
func (t *Tracker) TrackUpdate(e any) error {
	if t.state != stateActive {
		return protocolErr(CodeNoTransaction, "TrackUpdate requires an active transaction")
	}
	return t.track(e, OpUpdated)
}

// TrackDelete records the deletion of (typename, id). A delete always wins
// over a pending update for the same key in this transaction.
func (t *Tracker) TrackDelete(typename, id string) error {
	if t.state != stateActive {
		return protocolErr(CodeNoTransaction, "TrackDelete requires an active transaction")
	}
	if id == "" {
		return protocolErr(CodeMissingID, "TrackDelete requires an id")
	}
	ref := entity.Ref{Typename: typename, ID: id}
	key := ref.Key()
	delete(t.changes, key)
	if _, dup := t.deleted[key]; !dup {
		t.deleted[key] = deletion{ref: ref, at: time.Now()}
		t.deletedOrder = append(t.deletedOrder, key)
	}
	return nil
}

// track implements one tracking step. The ordering is deliberate: the
// global entity budget is checked before the exclude filter, so excluded
// entities can still consume a budget slot on paths that reach them.
func (t *Tracker) track(e any, op Operation) error {
	if len(t.changes) >= t.opt.MaxEntities {
		t.limitHit = true
		return nil
	}
	ref, err := entity.Resolve(e)
	if err != nil {
		return protocolErr(CodeMissingID, "cannot track %s entity: %v", op, err)
	}
	if _, excluded := t.exclude[ref.Typename]; excluded {
		return nil
	}
	if t.opt.ValidateEntity != nil {
		if err := t.opt.ValidateEntity(e); err != nil {
			return err
		}
	}
	key := ref.Key()
	if _, seen := t.visited[key]; seen {
		// Idempotent no-op; the first-visit operation and entity stand.
		return nil
	}
	t.visited[key] = struct{}{}
	t.changes[key] = &change{entity: e, op: op, at: time.Now(), ref: ref}
	t.order = append(t.order, key)
	if t.opt.RelationshipTracking && t.depth < t.opt.MaxDepth {
		return t.traverse(e)
	}
	return nil
}

// traverse walks the entities discovered on e. Cycle termination falls out
// of the global visited set: a repeated key is a no-op in track.
func (t *Tracker) traverse(e any) error {
	t.depth++
	defer func() { t.depth-- }()
	// High-water depth reflects the deepest traversal point entered, not
	// just the deepest entity recorded.
	if t.depth > t.maxDepthSeen {
		t.maxDepthSeen = t.depth
	}
	related := entity.Related(e)
	if len(related) > t.opt.MaxRelatedPerEntity {
		related = related[:t.opt.MaxRelatedPerEntity]
	}
	for _, rel := range related {
		if t.limitHit {
			break
		}
		// Related entities record UPDATED regardless of the parent op.
		if err := t.track(rel, OpUpdated); err != nil {
			return err
		}
	}
	return nil
}

// GetCascadeData builds the cascade output while keeping the transaction
// active for repeated inspection.
func (t *Tracker) GetCascadeData() (*CascadeData, error) {
	if t.state != stateActive {
		return nil, protocolErr(CodeNoTransaction, "GetCascadeData requires an active transaction")
	}
	return t.build(nil), nil
}

// EndTransaction builds the cascade output, clears all transaction state,
// and returns the tracker to idle. Only the synchronous entity filter is
// applied; see EndTransactionContext for the context-aware variant.
func (t *Tracker) EndTransaction() (*CascadeData, error) {
	if t.state != stateActive {
		return nil, protocolErr(CodeNoTransaction, "EndTransaction requires an active transaction")
	}
	data := t.build(nil)
	t.finish(data, false)
	return data, nil
}

// EndTransactionContext is EndTransaction with the context-aware entity
// filter applied, awaiting each decision in insertion order so the output
// order stays deterministic.
func (t *Tracker) EndTransactionContext(ctx context.Context) (*CascadeData, error) {
	if t.state != stateActive {
		return nil, protocolErr(CodeNoTransaction, "EndTransactionContext requires an active transaction")
	}
	data := t.build(ctx)
	t.finish(data, false)
	return data, nil
}

// Abort discards the transaction unconditionally and returns the tracker
// to idle. Aborting an idle tracker is a no-op.
func (t *Tracker) Abort() {
	if t.state != stateActive {
		return
	}
	eventbus.Publish(context.Background(), t.opt.Bus, events.TransactionFinish{
		TransactionID: t.txID,
		AffectedCount: len(t.changes) + len(t.deleted),
		Depth:         t.maxDepthSeen,
		Truncated:     t.limitHit,
		Aborted:       true,
		Duration:      time.Since(t.startedAt),
	})
	t.reset()
}

// build materializes the change map in insertion order. A nil ctx selects
// the synchronous filter path.
func (t *Tracker) build(ctx context.Context) *CascadeData {
	updated := make([]UpdatedEntity, 0, len(t.changes))
	for _, key := range t.order {
		c, ok := t.changes[key]
		if !ok {
			continue // deleted after tracking
		}
		if _, gone := t.deleted[key]; gone {
			continue
		}
		var (
			ue      UpdatedEntity
			include bool
		)
		if ctx == nil {
			ue, include = t.BuildUpdated(c.entity, c.op)
		} else {
			ue, include = t.BuildUpdatedContext(ctx, c.entity, c.op)
		}
		if include {
			updated = append(updated, ue)
		}
	}
	deleted := make([]DeletedEntity, 0, len(t.deleted))
	for _, key := range t.deletedOrder {
		d := t.deleted[key]
		deleted = append(deleted, DeletedEntity{Typename: d.ref.Typename, ID: d.ref.ID, DeletedAt: d.at})
	}
	return &CascadeData{Updated: updated, Deleted: deleted, Metadata: t.MetadataSnapshot()}
}

// BuildUpdated materializes one tracked change on the synchronous path,
// applying the entity filter, transform, and serialization hooks. ok is
// false when the entity was filtered out or failed to serialize;
// serialization failures are counted and reported, never fatal.
func (t *Tracker) BuildUpdated(e any, op Operation) (ue UpdatedEntity, ok bool) {
	if t.opt.EntityFilter != nil {
		if !t.opt.EntityFilter(e) {
			return UpdatedEntity{}, false
		}
	} else if t.opt.EntityFilterContext != nil {
		// Cannot await a context-aware filter here: flag the skip once per
		// transaction and keep the entity rather than silently dropping it.
		t.reportFilterSkipped()
	}
	return t.materialize(e, op)
}

// BuildUpdatedContext is BuildUpdated with the context-aware entity filter
// honored. Filter errors are treated like serialization failures: reported
// and the entity omitted.
func (t *Tracker) BuildUpdatedContext(ctx context.Context, e any, op Operation) (ue UpdatedEntity, ok bool) {
	if t.opt.EntityFilterContext != nil {
		keep, err := t.opt.EntityFilterContext(ctx, e)
		if err != nil {
			ref, _ := entity.Resolve(e)
			t.reportSerializationError(ref, fmt.Errorf("entity filter: %w", err))
			return UpdatedEntity{}, false
		}
		if !keep {
			return UpdatedEntity{}, false
		}
	} else if t.opt.EntityFilter != nil {
		if !t.opt.EntityFilter(e) {
			return UpdatedEntity{}, false
		}
	}
	return t.materialize(e, op)
}

func (t *Tracker) materialize(e any, op Operation) (UpdatedEntity, bool) {
	ref, err := entity.Resolve(e)
	if err != nil {
		t.reportSerializationError(ref, err)
		return UpdatedEntity{}, false
	}
	dict, err := t.serialize(e, ref)
	if err != nil {
		t.reportSerializationError(ref, err)
		return UpdatedEntity{}, false
	}
	return UpdatedEntity{Typename: ref.Typename, ID: ref.ID, Operation: op, Entity: dict}, true
}

// serialize applies the transform hook and entity serialization, catching
// panics from the hook so one bad entity cannot abort the whole build.
func (t *Tracker) serialize(e any, ref entity.Ref) (dict map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			dict, err = nil, fmt.Errorf("transform %s: %v", ref.Key(), r)
		}
	}()
	if t.opt.TransformEntity != nil {
		e = t.opt.TransformEntity(e)
	}
	return entity.ToDict(e, ref.Typename, t.opt.FieldFilter)
}

// MetadataSnapshot reports transaction metadata at this instant without
// mutating state.
func (t *Tracker) MetadataSnapshot() Metadata {
	return Metadata{
		TransactionID:       t.txID,
		Timestamp:           time.Now(),
		Depth:               t.maxDepthSeen,
		AffectedCount:       len(t.changes) + len(t.deleted),
		TrackingTime:        time.Since(t.startedAt),
		TruncatedUpdated:    t.limitHit,
		SerializationErrors: t.serErrors,
	}
}

func (t *Tracker) finish(data *CascadeData, aborted bool) {
	eventbus.Publish(context.Background(), t.opt.Bus, events.TransactionFinish{
		TransactionID: t.txID,
		AffectedCount: data.Metadata.AffectedCount,
		Depth:         data.Metadata.Depth,
		Truncated:     t.limitHit,
		Aborted:       aborted,
		Duration:      time.Since(t.startedAt),
	})
	t.reset()
}

func (t *Tracker) reset() {
	t.txID = ""
	t.changes = make(map[string]*change)
	t.order = nil
	t.deleted = make(map[string]deletion)
	t.deletedOrder = nil
	t.visited = make(map[string]struct{})
	t.depth = 0
	t.maxDepthSeen = 0
	t.limitHit = false
	t.serErrors = 0
	t.filterFlag = false
	t.state = stateIdle
}

func (t *Tracker) reportSerializationError(ref entity.Ref, err error) {
	t.serErrors++
	if t.opt.OnError != nil {
		t.opt.OnError(err)
	}
	eventbus.Publish(context.Background(), t.opt.Bus, events.SerializationError{
		TransactionID: t.txID,
		Typename:      ref.Typename,
		ID:            ref.ID,
		Err:           err,
	})
}

func (t *Tracker) reportFilterSkipped() {
	if t.filterFlag {
		return
	}
	t.filterFlag = true
	if t.opt.OnError != nil {
		t.opt.OnError(fmt.Errorf("entity filter requires a context; not applied on the synchronous path"))
	}
	eventbus.Publish(context.Background(), t.opt.Bus, events.FilterSkipped{TransactionID: t.txID})
}
