package cacheinfra

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-rpc-query/cache"
)

// queryObserver is the handle returned by Query.
type queryObserver struct {
	st  *queryState
	id  uint64
	run runFunc

	mu          sync.Mutex
	listenerIDs []uint64
	closed      bool
}

func (o *queryObserver) Key() cache.Key {
	return o.st.key
}

func (o *queryObserver) Result() cache.QueryResult {
	return o.st.result()
}

func (o *queryObserver) Subscribe(fn func(cache.QueryResult)) func() {
	st := o.st
	st.mu.Lock()
	st.nextID++
	id := st.nextID
	st.listeners[id] = fn
	st.mu.Unlock()

	o.mu.Lock()
	o.listenerIDs = append(o.listenerIDs, id)
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.listeners, id)
			st.mu.Unlock()
		})
	}
}

// Refetch fetches regardless of the enabled flag and waits for the result.
// Fetch failures are reported through the returned result.
func (o *queryObserver) Refetch(ctx context.Context) (cache.QueryResult, error) {
	call := o.st.startFetch(o.run)
	if err := call.wait(ctx); err != nil {
		return o.st.result(), err
	}
	return o.st.result(), nil
}

func (o *queryObserver) Wait(ctx context.Context) (cache.QueryResult, error) {
	o.st.mu.Lock()
	call := o.st.inflight
	o.st.mu.Unlock()

	if call != nil {
		if err := call.wait(ctx); err != nil {
			return o.st.result(), err
		}
	}
	return o.st.result(), nil
}

func (o *queryObserver) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	ids := o.listenerIDs
	o.mu.Unlock()

	st := o.st
	st.mu.Lock()
	delete(st.observers, o.id)
	for _, id := range ids {
		delete(st.listeners, id)
	}
	st.mu.Unlock()
}

// infiniteObserver is the handle returned by InfiniteQuery.
type infiniteObserver struct {
	*queryObserver
	client *queryClient
	opts   cache.InfiniteQueryOptions
}

// FetchNextPage appends the page after the last cached one. It is a no-op when
// there is no next page.
func (o *infiniteObserver) FetchNextPage(ctx context.Context) (cache.QueryResult, error) {
	if _, err := o.Wait(ctx); err != nil {
		return o.Result(), err
	}

	call := o.st.startFetch(o.client.nextPageRun(o.st, o.opts))
	if err := call.wait(ctx); err != nil {
		return o.Result(), err
	}
	return o.Result(), nil
}

func (o *infiniteObserver) HasNextPage() bool {
	data, ok := o.client.infiniteData(o.st)
	if !ok || len(data.Pages) == 0 || o.opts.GetNextPageParam == nil {
		return false
	}
	_, ok = o.opts.GetNextPageParam(data.Pages[len(data.Pages)-1], data.Pages)
	return ok
}

// infiniteData returns the cached pages of st, converting hydrated values.
func (c *queryClient) infiniteData(st *queryState) (cache.InfiniteData, bool) {
	value, ok := c.store.Get(st.hash)
	if !ok || value == nil {
		return cache.InfiniteData{}, false
	}
	data, err := toInfiniteData(value)
	if err != nil {
		return cache.InfiniteData{}, false
	}
	return data, true
}

func toInfiniteData(value any) (cache.InfiniteData, error) {
	if data, ok := value.(cache.InfiniteData); ok {
		return data, nil
	}
	data, err := cache.DataAs[cache.InfiniteData](value)
	if err != nil {
		return cache.InfiniteData{}, fmt.Errorf("cacheinfra: not infinite data: %w", err)
	}
	return data, nil
}

// infiniteRun fetches every cached page again, starting from the first cached
// page param (or InitialPageParam) and deriving the following params.
func (c *queryClient) infiniteRun(st *queryState, opts cache.InfiniteQueryOptions) runFunc {
	return func(ctx context.Context) (any, error) {
		if opts.QueryFn == nil {
			return nil, errNoQueryFn
		}

		existing, _ := c.infiniteData(st)
		pageCount := len(existing.Pages)
		if pageCount == 0 {
			pageCount = 1
		}

		param := opts.InitialPageParam
		if len(existing.PageParams) > 0 {
			param = existing.PageParams[0]
		}

		var out cache.InfiniteData
		for i := 0; i < pageCount; i++ {
			if i > 0 {
				if opts.GetNextPageParam == nil {
					break
				}
				next, ok := opts.GetNextPageParam(out.Pages[i-1], out.Pages)
				if !ok {
					break
				}
				param = next
			}

			page, err := opts.QueryFn(cache.QueryFunctionContext{
				Context:   ctx,
				QueryKey:  opts.QueryKey,
				PageParam: param,
			})
			if err != nil {
				return nil, err
			}
			out.Pages = append(out.Pages, page)
			out.PageParams = append(out.PageParams, param)
		}
		return out, nil
	}
}

// nextPageRun fetches the page following the last cached one.
func (c *queryClient) nextPageRun(st *queryState, opts cache.InfiniteQueryOptions) runFunc {
	refetch := c.infiniteRun(st, opts)
	return func(ctx context.Context) (any, error) {
		existing, ok := c.infiniteData(st)
		if !ok || len(existing.Pages) == 0 {
			return refetch(ctx)
		}
		if opts.GetNextPageParam == nil {
			return existing, nil
		}

		param, ok := opts.GetNextPageParam(existing.Pages[len(existing.Pages)-1], existing.Pages)
		if !ok {
			return existing, nil
		}

		page, err := opts.QueryFn(cache.QueryFunctionContext{
			Context:   ctx,
			QueryKey:  opts.QueryKey,
			PageParam: param,
		})
		if err != nil {
			return nil, err
		}

		return cache.InfiniteData{
			Pages:      append(append([]any{}, existing.Pages...), page),
			PageParams: append(append([]any{}, existing.PageParams...), param),
		}, nil
	}
}

// mutation is the handle returned by Mutation.
type mutation struct {
	opts cache.MutationOptions

	mu     sync.Mutex
	result cache.MutationResult
}

func newMutation(opts cache.MutationOptions) *mutation {
	return &mutation{opts: opts, result: cache.MutationResult{IsIdle: true}}
}

func (m *mutation) Key() cache.Key {
	return m.opts.MutationKey
}

func (m *mutation) Mutate(ctx context.Context, variables any) (any, error) {
	m.mu.Lock()
	m.result = cache.MutationResult{Status: cache.StatusPending, Variables: variables}
	m.mu.Unlock()

	if m.opts.MutationFn == nil {
		err := fmt.Errorf("cacheinfra: mutation %s has no mutation function", m.opts.MutationKey)
		m.mu.Lock()
		m.result = cache.MutationResult{Status: cache.StatusError, Err: err, Variables: variables}
		m.mu.Unlock()
		return nil, err
	}

	data, err := m.opts.MutationFn(ctx, variables)

	m.mu.Lock()
	if err != nil {
		m.result = cache.MutationResult{Status: cache.StatusError, Err: err, Variables: variables}
	} else {
		m.result = cache.MutationResult{Status: cache.StatusSuccess, Data: data, Variables: variables}
	}
	m.mu.Unlock()

	if err != nil {
		if m.opts.OnError != nil {
			m.opts.OnError(err, variables)
		}
		return nil, err
	}
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(data, variables)
	}
	return data, nil
}

func (m *mutation) Result() cache.MutationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

func (m *mutation) Reset() {
	m.mu.Lock()
	m.result = cache.MutationResult{IsIdle: true}
	m.mu.Unlock()
}
