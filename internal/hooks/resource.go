package hooks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/log"
)

// DefaultDebounce is the quiet period after the last change event before a
// refetch runs.
const DefaultDebounce = 250 * time.Millisecond

// DefaultReconnectDelay is the first wait before resubscribing to a closed
// change feed. Later attempts double it up to maxReconnectDelay.
const DefaultReconnectDelay = time.Second

const maxReconnectDelay = 30 * time.Second

type Options struct {
	Notifier Notifier
	Logger   *log.Logger
	// Feed enables live resync. Nil means the hook only refetches after its
	// own mutations.
	Feed           ChangeFeed
	Debounce       time.Duration
	ReconnectDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	return o
}

// FetchFunc performs one scoped read for the user.
type FetchFunc[T any] func(ctx context.Context, userID uuid.UUID) (T, error)

type State[T any] struct {
	Items   T
	Loading bool
}

// Resource holds the last fetched value for the current identity.
//
// Every identity change bumps a generation counter. In-flight fetches and
// debounced refetches carry the generation they were started under and are
// dropped if it no longer matches, so a slow response for a previous user
// never lands in the current state. Within one generation a result is only
// applied if no later-started fetch has already been applied.
type Resource[T any] struct {
	name   string
	tables []string
	fetch  FetchFunc[T]
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	state   State[T]
	user    *core.User
	gen     uint64
	seq     uint64
	applied uint64
	session context.Context
	cancel  context.CancelFunc
	subs    []Subscription
	timer   *time.Timer
	changes chan struct{}
}

// NewResource creates a stopped resource. tables lists the change-feed
// tables that trigger a refetch when opts.Feed is set.
func NewResource[T any](name string, fetch FetchFunc[T], opts Options, tables ...string) *Resource[T] {
	opts = opts.withDefaults()
	return &Resource[T]{
		name:    name,
		tables:  tables,
		fetch:   fetch,
		opts:    opts,
		logger:  opts.Logger.WithComponent(log.ComponentHooks).With("resource", name),
		changes: make(chan struct{}, 1),
	}
}

// State returns a snapshot of the held value. Items are replaced wholesale
// on every fetch and never mutated in place.
func (r *Resource[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resource[T]) User() (core.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.user == nil {
		return core.User{}, false
	}
	return *r.user, true
}

// Changes receives a value after every applied state change. Sends never
// block; a slow reader sees coalesced notifications.
func (r *Resource[T]) Changes() <-chan struct{} {
	return r.changes
}

// Start binds the resource to user: it subscribes to the change feed and
// runs the initial fetch. Calling Start with the identity that is already
// active is a no-op; a different identity tears the previous one down first.
// Subscription failures are reported to the notifier and returned, but the
// initial fetch still runs.
func (r *Resource[T]) Start(ctx context.Context, user core.User) error {
	r.mu.Lock()
	if r.user != nil && r.user.ID == user.ID {
		r.mu.Unlock()
		return nil
	}
	old := r.teardownLocked()
	var zero T
	u := user
	r.user = &u
	r.state = State[T]{Items: zero, Loading: true}
	r.session, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	gen, session := r.gen, r.session
	r.mu.Unlock()
	closeAll(old)

	r.logger.Debug("Resource started", log.FieldUserID, user.ID.String(), log.FieldGeneration, gen)

	var subErr error
	if r.opts.Feed != nil {
		subErr = r.subscribe(session, gen, user.ID)
	}
	_ = r.fetchGen(ctx, gen)
	return subErr
}

// Stop cancels in-flight requests, closes subscriptions and clears state.
func (r *Resource[T]) Stop() {
	r.mu.Lock()
	old := r.teardownLocked()
	r.user = nil
	var zero T
	r.state = State[T]{Items: zero}
	r.mu.Unlock()
	closeAll(old)
	r.signal()
}

// Fetch rereads the collection for the current identity. With no identity it
// does nothing. On failure the previous state is kept, the notifier is told,
// and the error is returned for callers that want it.
func (r *Resource[T]) Fetch(ctx context.Context) error {
	r.mu.Lock()
	if r.user == nil {
		r.mu.Unlock()
		return nil
	}
	gen := r.gen
	r.mu.Unlock()
	return r.fetchGen(ctx, gen)
}

func (r *Resource[T]) fetchGen(ctx context.Context, gen uint64) error {
	r.mu.Lock()
	if gen != r.gen || r.user == nil {
		r.mu.Unlock()
		return nil
	}
	r.seq++
	seq, userID, session := r.seq, r.user.ID, r.session
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(session, cancel)
	defer stop()

	items, err := r.fetch(ctx, userID)

	r.mu.Lock()
	if gen != r.gen || seq < r.applied {
		r.mu.Unlock()
		r.logger.Debug("Discarding stale fetch result", log.FieldGeneration, gen)
		return nil
	}
	r.state.Loading = false
	if err == nil {
		r.applied = seq
		r.state.Items = items
	}
	r.mu.Unlock()
	r.signal()

	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		fields := log.NewFields().WithOperation(log.OpFetch).WithUser(userID).WithError(err)
		r.logger.WarnContext(ctx, "Fetch failed", fields.ToSlice()...)
		r.opts.Notifier.Notify(LevelError, errorMessage(err))
		return err
	}
	return nil
}

// begin returns a context cancelled when either ctx ends or the current
// identity is torn down, plus the identity and its generation.
func (r *Resource[T]) begin(ctx context.Context) (context.Context, context.CancelFunc, core.User, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.user == nil {
		return ctx, func() {}, core.User{}, 0, core.ErrNotAuthenticated
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.session, cancel)
	return ctx, func() { stop(); cancel() }, *r.user, r.gen, nil
}

func (r *Resource[T]) subscribe(session context.Context, gen uint64, userID uuid.UUID) error {
	var errs []error
	var subs []Subscription
	var tables []string
	for _, table := range r.tables {
		sub, err := r.opts.Feed.Subscribe(session, table, userID)
		if err != nil {
			fields := log.NewFields().WithOperation(log.OpSubscribe).WithUser(userID).WithError(err)
			r.logger.Warn("Change feed subscription failed", append(fields.ToSlice(), log.FieldTable, table)...)
			r.opts.Notifier.Notify(LevelError, "Live updates unavailable: "+err.Error())
			errs = append(errs, err)
			continue
		}
		subs = append(subs, sub)
		tables = append(tables, table)
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		closeAll(subs)
		return errors.Join(errs...)
	}
	r.subs = append(r.subs, subs...)
	r.mu.Unlock()

	for i, sub := range subs {
		go r.pump(session, gen, tables[i], userID, sub)
	}
	return errors.Join(errs...)
}

// pump turns every event into a debounced refetch; the payload is ignored.
// When the feed closes a subscription of the current generation the user is
// told, and pump resubscribes with backoff and refetches once restored.
func (r *Resource[T]) pump(session context.Context, gen uint64, table string, userID uuid.UUID, sub Subscription) {
	for {
		if !r.drain(session, gen, sub) {
			return
		}
		r.dropSub(sub)
		_ = sub.Close()
		r.logger.Warn("Change feed closed", log.FieldTable, table, log.FieldGeneration, gen)
		r.opts.Notifier.Notify(LevelError, "Live updates interrupted, reconnecting")

		next, ok := r.resubscribe(session, gen, table, userID)
		if !ok {
			return
		}
		sub = next
		r.opts.Notifier.Notify(LevelInfo, "Live updates restored")
		// changes made while disconnected were never delivered
		r.schedule(gen)
	}
}

// drain forwards events until the session ends or the feed closes the
// subscription. It reports whether the close happened under a live
// generation.
func (r *Resource[T]) drain(session context.Context, gen uint64, sub Subscription) bool {
	events := sub.Events()
	for {
		select {
		case <-session.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return session.Err() == nil && r.current(gen)
			}
			r.logger.Debug("Change received", log.FieldTable, ev.Table, log.FieldChangeType, string(ev.Type))
			r.schedule(gen)
		}
	}
}

func (r *Resource[T]) resubscribe(session context.Context, gen uint64, table string, userID uuid.UUID) (Subscription, bool) {
	delay := r.opts.ReconnectDelay
	for {
		t := time.NewTimer(delay)
		select {
		case <-session.Done():
			t.Stop()
			return nil, false
		case <-t.C:
		}

		sub, err := r.opts.Feed.Subscribe(session, table, userID)
		if err != nil {
			delay = min(delay*2, maxReconnectDelay)
			fields := log.NewFields().WithOperation(log.OpSubscribe).WithUser(userID).WithError(err)
			r.logger.Warn("Change feed resubscribe failed", append(fields.ToSlice(), log.FieldTable, table, "retry_in", delay.String())...)
			continue
		}

		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			_ = sub.Close()
			return nil, false
		}
		r.subs = append(r.subs, sub)
		r.mu.Unlock()
		r.logger.Info("Change feed restored", log.FieldTable, table, log.FieldGeneration, gen)
		return sub, true
	}
}

func (r *Resource[T]) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen == r.gen
}

// dropSub forgets a subscription the feed already closed.
func (r *Resource[T]) dropSub(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := make([]Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if s != sub {
			kept = append(kept, s)
		}
	}
	r.subs = kept
}

// schedule restarts the trailing-edge debounce timer.
func (r *Resource[T]) schedule(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	session := r.session
	r.timer = time.AfterFunc(r.opts.Debounce, func() {
		_ = r.fetchGen(session, gen)
	})
}

func (r *Resource[T]) teardownLocked() []Subscription {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
	subs := r.subs
	r.subs = nil
	return subs
}

func (r *Resource[T]) signal() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

func closeAll(subs []Subscription) {
	for _, s := range subs {
		_ = s.Close()
	}
}

// errorMessage extracts the text shown to the user for a remote failure.
func errorMessage(err error) string {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	return err.Error()
}
