package cache

import (
	"context"
	"sync"

	"github.com/jonwraymond/livequery/observe"
	"github.com/jonwraymond/livequery/query"
)

// NotifyFunc receives result updates for an attached listener.
type NotifyFunc func(Result)

// Subscription is one open transport subscription, owned exclusively by a
// single registry entry.
//
// Contract:
// - Close terminates the subscription and must be idempotent: closing an
//   already-closed or already-defunct subscription must not panic.
type Subscription interface {
	Close()
}

// Subscriber is the reactive transport consumed by the registry.
//
// Contract:
// - Subscribe opens a server subscription for (functionRef, args) and
//   invokes onUpdate whenever the server-side result changes.
// - Failures, including failure to open, are delivered as error Results
//   through onUpdate — Subscribe itself does not report them.
// - onUpdate may be invoked before Subscribe returns.
// - Pushes for one subscription are delivered in emission order.
type Subscriber interface {
	Subscribe(functionRef string, args query.Args, onUpdate NotifyFunc) Subscription
}

// Options carries optional registry collaborators.
type Options struct {
	Logger  observe.Logger
	Metrics observe.Metrics
}

// Registry is the process-wide (per instance) table of live query
// subscriptions, keyed by derived query key.
//
// Invariants:
// - An entry exists for a key iff its listener set is non-empty.
// - At most one transport subscription is open per key at any time.
// - Every attached listener observes the entry's current result at least
//   once after attaching: synchronously inside Start when a result is
//   already cached, otherwise on the first transport push.
//
// Registry operations and transport pushes may interleave from multiple
// goroutines; a single lock over the table serializes bookkeeping. Notify
// callbacks run outside the lock, so a callback may re-enter Start/End.
type Registry struct {
	subscriber Subscriber
	logger     observe.Logger
	metrics    observe.Metrics

	mu      sync.RWMutex
	entries map[query.Key]*entry
	handles map[Handle]query.Key
}

// entry is the per-key bookkeeping record.
type entry struct {
	key         query.Key
	functionRef string
	sub         Subscription
	result      Result
	order       []Handle // attachment order, drives fan-out order
	notify      map[Handle]NotifyFunc
}

// NewRegistry creates a registry over the given transport subscriber.
func NewRegistry(subscriber Subscriber, opts Options) (*Registry, error) {
	if subscriber == nil {
		return nil, ErrNilSubscriber
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.NopMetrics()
	}
	return &Registry{
		subscriber: subscriber,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		entries:    make(map[query.Key]*entry),
		handles:    make(map[Handle]query.Key),
	}, nil
}

// Probe returns the current cached result for key without side effects:
// no entry is created, no transport call is made. Absent when no entry
// exists or no push has been observed yet.
func (r *Registry) Probe(key query.Key) Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[key]; ok {
		return e.result
	}
	return Absent()
}

// Start attaches a listener to key, lazily opening the one transport
// subscription for it. The caller must have derived key itself (a skip or
// out-of-domain identity never reaches the registry) and must not reuse a
// handle that is still attached.
//
// If the entry already holds a result, notify is invoked synchronously
// with it before Start returns. Transport failures are delivered through
// notify as error Results, never as a Start error; Start errors only on
// caller contract violations.
func (r *Registry) Start(handle Handle, key query.Key, functionRef string, args query.Args, notify NotifyFunc) error {
	if notify == nil {
		return ErrNilNotify
	}

	r.mu.Lock()
	if _, attached := r.handles[handle]; attached {
		r.mu.Unlock()
		return ErrHandleAttached
	}

	e, ok := r.entries[key]
	created := false
	if !ok {
		e = &entry{
			key:         key,
			functionRef: functionRef,
			notify:      make(map[Handle]NotifyFunc),
		}
		r.entries[key] = e
		created = true
	}
	e.order = append(e.order, handle)
	e.notify[handle] = notify
	r.handles[handle] = key
	r.mu.Unlock()

	if created {
		r.open(e, args)
		return nil
	}

	// Late attach: converge on the current result without a new transport
	// round-trip. Re-read under the lock so an interleaved push is not
	// resurrected as stale.
	r.mu.RLock()
	var cached Result
	if cur, ok := r.entries[key]; ok {
		cached = cur.result
	}
	r.mu.RUnlock()

	if !cached.IsAbsent() {
		notify(cached)
	}
	return nil
}

// open opens the transport subscription for a freshly created entry. The
// subscription may push synchronously before Subscribe returns; the entry
// is already in the table, so such pushes fan out normally.
func (r *Registry) open(e *entry, args query.Args) {
	sub := r.subscriber.Subscribe(e.functionRef, args, func(res Result) {
		r.deliver(e, res)
	})

	r.mu.Lock()
	live := r.entries[e.key] == e
	if live {
		e.sub = sub
	}
	r.mu.Unlock()

	if !live {
		// Every listener detached while the subscription was opening.
		sub.Close()
		return
	}

	r.metrics.RecordOpen(context.Background(), e.functionRef)
	r.logger.Debug(context.Background(), "subscription opened",
		observe.String("query.function", e.functionRef),
		observe.String("query.key", string(e.key)),
	)
}

// deliver records a transport push on the entry and fans it out to every
// listener attached at push time, in attachment order. Pushes for torn-down
// entries are dropped.
func (r *Registry) deliver(e *entry, res Result) {
	r.mu.Lock()
	if r.entries[e.key] != e {
		r.mu.Unlock()
		return
	}
	e.result = res
	targets := make([]NotifyFunc, 0, len(e.order))
	for _, h := range e.order {
		targets = append(targets, e.notify[h])
	}
	r.mu.Unlock()

	r.metrics.RecordUpdate(context.Background(), e.functionRef, len(targets), res.Err() != nil)
	for _, fn := range targets {
		fn(res)
	}
}

// End detaches the listener identified by handle from whichever key it is
// attached to. Detaching the last listener for a key synchronously closes
// the transport subscription and discards the entry. Unknown and
// already-detached handles are no-ops: double End during UI teardown churn
// is expected, not a fault.
func (r *Registry) End(handle Handle) {
	r.mu.Lock()
	key, ok := r.handles[handle]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.handles, handle)

	e := r.entries[key]
	if e == nil {
		r.mu.Unlock()
		return
	}
	delete(e.notify, handle)
	for i, h := range e.order {
		if h == handle {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}

	last := len(e.order) == 0
	var sub Subscription
	if last {
		delete(r.entries, key)
		sub = e.sub
	}
	r.mu.Unlock()

	if !last {
		return
	}

	if sub != nil {
		sub.Close()
	}
	r.metrics.RecordClose(context.Background(), e.functionRef)
	r.logger.Debug(context.Background(), "subscription closed",
		observe.String("query.function", e.functionRef),
		observe.String("query.key", string(key)),
	)
}

// Size returns the number of live entries.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
