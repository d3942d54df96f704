package cacheinfra

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-rpc-query/cache"
)

// Interface assertion to ensure queryClient implements cache.QueryClient
var _ cache.QueryClient = (*queryClient)(nil)

// errNoQueryFn is returned by fetches of queries registered without a query function.
var errNoQueryFn = errors.New("cacheinfra: query has no query function")

// queryClient is the default reactive query cache. Query data lives in a store
// (sturdyc or go-cache) while per-key state (observers, in-flight fetches,
// invalidation) lives in a registry keyed by the serialized cache key.
type queryClient struct {
	store      store
	serializer cache.KeySerializer
	queries    *xsync.MapOf[string, *queryState]
	staleTime  time.Duration
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueryClient creates the default query client. It validates the configuration
// and initializes the store selected by cfg.Backend.
func NewQueryClient(cfg cache.Config, logger *slog.Logger) (*queryClient, error) {
	if cfg.Backend == "" {
		cfg.Backend = cache.BackendSturdyc
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &queryClient{
		store:      newStore(cfg),
		serializer: cache.NewDefaultKeySerializer(),
		queries:    xsync.NewMapOf[string, *queryState](),
		staleTime:  cfg.StaleTime,
		logger:     logger.With("component", "query_client", "backend", cfg.Backend),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// state returns the registry entry for key, creating it when absent.
func (c *queryClient) state(key cache.Key) *queryState {
	hash := c.serializer.SerializeKey(key)
	st, _ := c.queries.LoadOrCompute(hash, func() *queryState {
		return newQueryState(c, key, hash)
	})
	return st
}

func (c *queryClient) effectiveStaleTime(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return c.staleTime
}

// each calls fn for every registered query addressed by key under filters.
func (c *queryClient) each(key cache.Key, filters *cache.QueryFilters, fn func(st *queryState)) {
	c.queries.Range(func(_ string, st *queryState) bool {
		if filters.Match(st.key, key) {
			fn(st)
		}
		return true
	})
}

func queryRun(opts cache.QueryOptions) runFunc {
	return func(ctx context.Context) (any, error) {
		if opts.QueryFn == nil {
			return nil, errNoQueryFn
		}
		return opts.QueryFn(cache.QueryFunctionContext{Context: ctx, QueryKey: opts.QueryKey})
	}
}

// Query registers an observer for opts.QueryKey and starts a fetch when the
// query is enabled and its data is missing or stale.
func (c *queryClient) Query(opts cache.QueryOptions) cache.Query {
	st := c.state(opts.QueryKey)
	run := queryRun(opts)
	return c.observe(st, run, opts)
}

func (c *queryClient) observe(st *queryState, run runFunc, opts cache.QueryOptions) *queryObserver {
	st.mu.Lock()
	st.run = run
	st.staleTime = c.effectiveStaleTime(opts.StaleTime)
	id := st.addObserverLocked(opts.Enabled)
	_, hasData := c.store.Get(st.hash)
	stale := st.isStaleLocked(hasData, st.staleTime)
	st.mu.Unlock()

	if opts.Enabled && stale {
		c.logger.Debug("query fetch on subscribe", "key", st.key.String())
		st.startFetch(run)
	}

	return &queryObserver{st: st, id: id, run: run}
}

// InfiniteQuery registers an observer for a paginated query.
func (c *queryClient) InfiniteQuery(opts cache.InfiniteQueryOptions) cache.InfiniteQuery {
	st := c.state(opts.QueryKey)
	run := c.infiniteRun(st, opts)
	return &infiniteObserver{
		queryObserver: c.observe(st, run, opts.QueryOptions),
		client:        c,
		opts:          opts,
	}
}

// Mutation creates a mutation handle. Mutations are not cached.
func (c *queryClient) Mutation(opts cache.MutationOptions) cache.Mutation {
	return newMutation(opts)
}

// FetchQuery returns cached data when it is fresh and fetches it otherwise.
func (c *queryClient) FetchQuery(ctx context.Context, opts cache.QueryOptions) (any, error) {
	st := c.state(opts.QueryKey)
	return c.fetch(ctx, st, queryRun(opts), opts.StaleTime)
}

func (c *queryClient) fetch(ctx context.Context, st *queryState, run runFunc, staleTime time.Duration) (any, error) {
	st.mu.Lock()
	if st.run == nil {
		st.run = run
	}
	data, hasData := c.store.Get(st.hash)
	stale := st.isStaleLocked(hasData, c.effectiveStaleTime(staleTime))
	st.mu.Unlock()

	if hasData && !stale {
		return data, nil
	}

	call := st.startFetch(run)
	if err := call.wait(ctx); err != nil {
		return nil, err
	}
	return call.data, call.err
}

// PrefetchQuery warms the cache. Fetch failures are not reported.
func (c *queryClient) PrefetchQuery(ctx context.Context, opts cache.QueryOptions) error {
	if _, err := c.FetchQuery(ctx, opts); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Debug("prefetch failed", "key", opts.QueryKey.String(), "error", err)
	}
	return nil
}

// FetchInfiniteQuery returns the cached pages when fresh and fetches them otherwise.
func (c *queryClient) FetchInfiniteQuery(ctx context.Context, opts cache.InfiniteQueryOptions) (cache.InfiniteData, error) {
	st := c.state(opts.QueryKey)
	data, err := c.fetch(ctx, st, c.infiniteRun(st, opts), opts.StaleTime)
	if err != nil {
		return cache.InfiniteData{}, err
	}
	return toInfiniteData(data)
}

// PrefetchInfiniteQuery warms the cache for a paginated query.
func (c *queryClient) PrefetchInfiniteQuery(ctx context.Context, opts cache.InfiniteQueryOptions) error {
	if _, err := c.FetchInfiniteQuery(ctx, opts); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Debug("prefetch failed", "key", opts.QueryKey.String(), "error", err)
	}
	return nil
}

// InvalidateQueries marks matching queries stale and refetches the active ones.
func (c *queryClient) InvalidateQueries(ctx context.Context, key cache.Key, filters *cache.QueryFilters) error {
	var calls []*fetchCall
	c.each(key, filters, func(st *queryState) {
		st.mu.Lock()
		st.invalidated = true
		active := st.activeLocked()
		run := st.run
		st.mu.Unlock()
		st.notify()

		if active && run != nil {
			calls = append(calls, st.startFetch(run))
		}
	})
	return waitAll(ctx, calls)
}

// RefetchQueries refetches every matching query that is not disabled.
func (c *queryClient) RefetchQueries(ctx context.Context, key cache.Key, filters *cache.QueryFilters) error {
	var calls []*fetchCall
	c.each(key, filters, func(st *queryState) {
		st.mu.Lock()
		run := st.run
		disabled := st.disabledLocked()
		st.mu.Unlock()

		if run != nil && !disabled {
			calls = append(calls, st.startFetch(run))
		}
	})
	return waitAll(ctx, calls)
}

// CancelQueries cancels in-flight fetches of matching queries. Cancelled
// queries keep the state they had before the fetch started.
func (c *queryClient) CancelQueries(ctx context.Context, key cache.Key, filters *cache.QueryFilters) error {
	var calls []*fetchCall
	c.each(key, filters, func(st *queryState) {
		if call := st.cancelInflight(); call != nil {
			calls = append(calls, call)
		}
	})
	return waitAll(ctx, calls)
}

// ResetQueries drops the data of matching queries and refetches the active ones.
func (c *queryClient) ResetQueries(ctx context.Context, key cache.Key, filters *cache.QueryFilters) error {
	var calls []*fetchCall
	c.each(key, filters, func(st *queryState) {
		if call := st.cancelInflight(); call != nil {
			_ = call.wait(ctx)
		}

		st.mu.Lock()
		c.store.Delete(st.hash)
		st.err = nil
		st.invalidated = false
		st.dataUpdatedAt = time.Time{}
		active := st.activeLocked()
		run := st.run
		st.mu.Unlock()
		st.notify()

		if active && run != nil {
			calls = append(calls, st.startFetch(run))
		}
	})
	return waitAll(ctx, calls)
}

// SetQueryData writes the value computed by updater. A nil result leaves the cache untouched.
// The updater runs under the query's lock and must not call back into the client for the same key.
func (c *queryClient) SetQueryData(key cache.Key, updater cache.Updater) any {
	if updater == nil {
		return nil
	}

	st := c.state(key)
	st.mu.Lock()
	previous, _ := c.store.Get(st.hash)
	next := updater(previous)
	if next == nil {
		st.mu.Unlock()
		return nil
	}
	c.store.Set(st.hash, next)
	st.dataUpdatedAt = c.now()
	st.err = nil
	st.invalidated = false
	st.mu.Unlock()
	st.notify()

	return next
}

// GetQueryData returns the cached value stored under key.
func (c *queryClient) GetQueryData(key cache.Key) (any, bool) {
	return c.store.Get(c.serializer.SerializeKey(key))
}

// Clear cancels every fetch and removes all queries and data.
func (c *queryClient) Clear() {
	c.queries.Range(func(hash string, st *queryState) bool {
		st.cancelInflight()
		c.queries.Delete(hash)
		return true
	})
	for _, key := range c.store.Keys() {
		c.store.Delete(key)
	}
}

// Close cancels all in-flight fetches. The client must not be used afterwards.
func (c *queryClient) Close() error {
	c.cancel()
	return nil
}

func waitAll(ctx context.Context, calls []*fetchCall) error {
	for _, call := range calls {
		if err := call.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// queryState is the registry entry of one cache key.
type queryState struct {
	client *queryClient
	key    cache.Key
	hash   string

	mu            sync.Mutex
	run           runFunc
	staleTime     time.Duration
	dataUpdatedAt time.Time
	err           error
	invalidated   bool
	inflight      *fetchCall
	observers     map[uint64]bool
	listeners     map[uint64]func(cache.QueryResult)
	nextID        uint64
}

type runFunc func(ctx context.Context) (any, error)

type fetchCall struct {
	done      chan struct{}
	cancel    context.CancelFunc
	cancelled bool
	data      any
	err       error
}

func (f *fetchCall) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newQueryState(c *queryClient, key cache.Key, hash string) *queryState {
	return &queryState{
		client:    c,
		key:       key,
		hash:      hash,
		observers: make(map[uint64]bool),
		listeners: make(map[uint64]func(cache.QueryResult)),
	}
}

func (st *queryState) addObserverLocked(enabled bool) uint64 {
	st.nextID++
	st.observers[st.nextID] = enabled
	return st.nextID
}

// activeLocked reports whether at least one enabled observer is registered.
func (st *queryState) activeLocked() bool {
	for _, enabled := range st.observers {
		if enabled {
			return true
		}
	}
	return false
}

// disabledLocked reports whether the query is observed only by disabled observers.
func (st *queryState) disabledLocked() bool {
	return len(st.observers) > 0 && !st.activeLocked()
}

func (st *queryState) isStaleLocked(hasData bool, staleTime time.Duration) bool {
	if !hasData || st.invalidated {
		return true
	}
	if staleTime > 0 && st.client.now().Sub(st.dataUpdatedAt) >= staleTime {
		return true
	}
	return false
}

func (st *queryState) resultLocked() cache.QueryResult {
	data, hasData := st.client.store.Get(st.hash)

	result := cache.QueryResult{
		Status:        cache.StatusPending,
		FetchStatus:   cache.FetchStatusIdle,
		Data:          data,
		Err:           st.err,
		DataUpdatedAt: st.dataUpdatedAt,
		IsStale:       st.isStaleLocked(hasData, st.staleTime),
	}
	if st.inflight != nil {
		result.FetchStatus = cache.FetchStatusFetching
	}
	switch {
	case st.err != nil:
		result.Status = cache.StatusError
	case hasData:
		result.Status = cache.StatusSuccess
	}
	return result
}

func (st *queryState) result() cache.QueryResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.resultLocked()
}

// notify delivers the current snapshot to every listener, outside the lock.
func (st *queryState) notify() {
	st.mu.Lock()
	result := st.resultLocked()
	listeners := make([]func(cache.QueryResult), 0, len(st.listeners))
	for _, listener := range st.listeners {
		listeners = append(listeners, listener)
	}
	st.mu.Unlock()

	for _, listener := range listeners {
		listener(result)
	}
}

// startFetch runs fn on its own goroutine unless a fetch is already in flight,
// in which case the in-flight call is returned.
func (st *queryState) startFetch(run runFunc) *fetchCall {
	st.mu.Lock()
	if st.inflight != nil {
		call := st.inflight
		st.mu.Unlock()
		return call
	}

	ctx, cancel := context.WithCancel(st.client.ctx)
	call := &fetchCall{done: make(chan struct{}), cancel: cancel}
	st.inflight = call
	st.mu.Unlock()
	st.notify()

	go func() {
		defer cancel()
		data, err := run(ctx)
		st.settle(call, data, err)
	}()

	return call
}

func (st *queryState) settle(call *fetchCall, data any, err error) {
	st.mu.Lock()
	call.data, call.err = data, err
	if st.inflight == call {
		st.inflight = nil
	}

	switch {
	case call.cancelled:
		if call.err == nil {
			call.err = context.Canceled
		}
	case err != nil:
		st.err = err
	default:
		st.client.store.Set(st.hash, data)
		st.dataUpdatedAt = st.client.now()
		st.err = nil
		st.invalidated = false
	}
	close(call.done)
	st.mu.Unlock()

	if err != nil && !call.cancelled {
		st.client.logger.Debug("query fetch failed", "key", st.key.String(), "error", err)
	}
	st.notify()
}

// cancelInflight cancels the in-flight fetch, if any, and returns it.
func (st *queryState) cancelInflight() *fetchCall {
	st.mu.Lock()
	defer st.mu.Unlock()

	call := st.inflight
	if call == nil {
		return nil
	}
	call.cancelled = true
	call.cancel()
	st.inflight = nil
	return call
}
