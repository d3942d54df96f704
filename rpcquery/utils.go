package rpcquery

import (
	"context"
	"fmt"

	"github.com/goliatone/go-rpc-query/cache"
)

// Utility methods.
const (
	UtilInvalidate       = "invalidate"
	UtilPrefetch         = "prefetch"
	UtilPrefetchInfinite = "prefetchInfinite"
	UtilFetch            = "fetch"
	UtilFetchInfinite    = "fetchInfinite"
	UtilRefetch          = "refetch"
	UtilCancel           = "cancel"
	UtilReset            = "reset"
	UtilSetData          = "setData"
	UtilSetInfiniteData  = "setInfiniteData"
	UtilGetData          = "getData"
	UtilGetInfiniteData  = "getInfiniteData"
)

// utilVariants maps every utility method to the variant its key is tagged with.
var utilVariants = map[string]cache.QueryType{
	UtilInvalidate:       cache.QueryTypeAny,
	UtilPrefetch:         cache.QueryTypeQuery,
	UtilPrefetchInfinite: cache.QueryTypeInfinite,
	UtilFetch:            cache.QueryTypeQuery,
	UtilFetchInfinite:    cache.QueryTypeInfinite,
	UtilRefetch:          cache.QueryTypeAny,
	UtilCancel:           cache.QueryTypeAny,
	UtilReset:            cache.QueryTypeAny,
	UtilSetData:          cache.QueryTypeQuery,
	UtilSetInfiniteData:  cache.QueryTypeInfinite,
	UtilGetData:          cache.QueryTypeQuery,
	UtilGetInfiniteData:  cache.QueryTypeInfinite,
}

// Utils exposes cache management per procedure, independent of subscriptions.
type Utils struct {
	root *Root
}

// Invoke runs a utility method for the procedure at path. An empty path
// addresses every query, which is how the root-level invalidate works.
//
// Arguments per method:
//
//	invalidate | refetch | cancel | reset (input, filters)
//	prefetch | fetch | prefetchInfinite | fetchInfinite (input, opts)
//	setData | setInfiniteData (input, updater)
//	getData | getInfiniteData (input)
func (u *Utils) Invoke(ctx context.Context, path []string, method string, args ...any) (any, error) {
	variant, ok := utilVariants[method]
	if !ok {
		return nil, notAFunction(path, method)
	}

	c := &call{
		path:      append([]string{}, path...),
		method:    method,
		args:      args,
		queryType: variant,
	}

	u.root.logger.Debug("utils call", "path", c.joinedPath(), "method", method)

	switch method {
	case UtilPrefetch, UtilFetch, UtilPrefetchInfinite, UtilFetchInfinite:
		opts, err := optionsArg(args, 1)
		if err != nil {
			return nil, invalidArguments(c.path, method, err)
		}
		c.transport, c.cacheOpts = SplitOptions(opts)
		return u.fetch(ctx, c)

	case UtilInvalidate, UtilRefetch, UtilCancel, UtilReset:
		filters, err := filtersArg(c.arg(1))
		if err != nil {
			return nil, invalidArguments(c.path, method, err)
		}
		return nil, u.manage(ctx, method, u.key(c), filters)

	case UtilSetData, UtilSetInfiniteData:
		return u.root.queryClient.SetQueryData(u.key(c), updaterArg(c.arg(1))), nil

	case UtilGetData:
		data, _ := u.root.queryClient.GetQueryData(u.key(c))
		return data, nil

	default: // UtilGetInfiniteData
		data, ok := u.root.queryClient.GetQueryData(u.key(c))
		if !ok {
			return nil, nil
		}
		return cache.DataAs[cache.InfiniteData](data)
	}
}

// key computes the key of a utility call. Cursors do not take part in
// infinite keys.
func (u *Utils) key(c *call) cache.Key {
	input := c.arg(0)
	if c.queryType == cache.QueryTypeInfinite {
		input, _ = stripCursor(input)
	}
	return cache.ComputeKey(c.path, input, c.queryType)
}

func (u *Utils) fetch(ctx context.Context, c *call) (any, error) {
	root := u.root
	input := c.arg(0)

	if c.queryType == cache.QueryTypeQuery {
		opts, err := c.cacheOpts.QueryOptions()
		if err != nil {
			return nil, invalidArguments(c.path, c.method, err)
		}
		opts.QueryKey = u.key(c)
		opts.QueryFn = root.queryFn(c.joinedPath(), input, c.transport)

		if c.method == UtilPrefetch {
			return nil, root.queryClient.PrefetchQuery(ctx, opts)
		}
		return root.queryClient.FetchQuery(ctx, opts)
	}

	opts, err := c.cacheOpts.InfiniteQueryOptions()
	if err != nil {
		return nil, invalidArguments(c.path, c.method, err)
	}
	opts.QueryKey = u.key(c)
	opts.QueryFn = root.infiniteQueryFn(c.joinedPath(), input, c.transport)

	if c.method == UtilPrefetchInfinite {
		return nil, root.queryClient.PrefetchInfiniteQuery(ctx, opts)
	}
	return root.queryClient.FetchInfiniteQuery(ctx, opts)
}

func (u *Utils) manage(ctx context.Context, method string, key cache.Key, filters *cache.QueryFilters) error {
	qc := u.root.queryClient
	switch method {
	case UtilInvalidate:
		return qc.InvalidateQueries(ctx, key, filters)
	case UtilRefetch:
		return qc.RefetchQueries(ctx, key, filters)
	case UtilCancel:
		return qc.CancelQueries(ctx, key, filters)
	default:
		return qc.ResetQueries(ctx, key, filters)
	}
}

func filtersArg(v any) (*cache.QueryFilters, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case *cache.QueryFilters:
		return f, nil
	case cache.QueryFilters:
		return &f, nil
	default:
		return nil, fmt.Errorf("expected query filters, got %T", v)
	}
}

// updaterArg accepts an updater function or a plain value replacing the cached data.
func updaterArg(v any) cache.Updater {
	switch u := v.(type) {
	case cache.Updater:
		return u
	case func(any) any:
		return u
	default:
		return cache.SetValue(v)
	}
}

// Invalidate marks every query stale and refetches the active ones.
func (u *Utils) Invalidate(ctx context.Context, filters *cache.QueryFilters) error {
	_, err := u.Invoke(ctx, nil, UtilInvalidate, nil, filters)
	return err
}

// Path returns the utilities of the procedure at the given segments.
func (u *Utils) Path(segments ...string) *UtilsProcedure {
	return &UtilsProcedure{utils: u, path: append([]string{}, segments...)}
}

// UtilsProcedure is the typed utility surface of one procedure.
type UtilsProcedure struct {
	utils *Utils
	path  []string
}

// Path returns the utilities of a child procedure.
func (p *UtilsProcedure) Path(segments ...string) *UtilsProcedure {
	path := make([]string, 0, len(p.path)+len(segments))
	path = append(path, p.path...)
	path = append(path, segments...)
	return &UtilsProcedure{utils: p.utils, path: path}
}

// Call invokes a utility method by name.
func (p *UtilsProcedure) Call(ctx context.Context, method string, args ...any) (any, error) {
	return p.utils.Invoke(ctx, p.path, method, args...)
}

func (p *UtilsProcedure) Invalidate(ctx context.Context, input any, filters *cache.QueryFilters) error {
	_, err := p.Call(ctx, UtilInvalidate, input, filters)
	return err
}

func (p *UtilsProcedure) Refetch(ctx context.Context, input any, filters *cache.QueryFilters) error {
	_, err := p.Call(ctx, UtilRefetch, input, filters)
	return err
}

func (p *UtilsProcedure) Cancel(ctx context.Context, input any, filters *cache.QueryFilters) error {
	_, err := p.Call(ctx, UtilCancel, input, filters)
	return err
}

func (p *UtilsProcedure) Reset(ctx context.Context, input any, filters *cache.QueryFilters) error {
	_, err := p.Call(ctx, UtilReset, input, filters)
	return err
}

func (p *UtilsProcedure) Prefetch(ctx context.Context, input any, opts Options) error {
	_, err := p.Call(ctx, UtilPrefetch, input, opts)
	return err
}

func (p *UtilsProcedure) PrefetchInfinite(ctx context.Context, input any, opts Options) error {
	_, err := p.Call(ctx, UtilPrefetchInfinite, input, opts)
	return err
}

func (p *UtilsProcedure) Fetch(ctx context.Context, input any, opts Options) (any, error) {
	return p.Call(ctx, UtilFetch, input, opts)
}

func (p *UtilsProcedure) FetchInfinite(ctx context.Context, input any, opts Options) (cache.InfiniteData, error) {
	v, err := p.Call(ctx, UtilFetchInfinite, input, opts)
	if err != nil {
		return cache.InfiniteData{}, err
	}
	data, _ := v.(cache.InfiniteData)
	return data, nil
}

// SetData writes the value computed by updater and returns it.
func (p *UtilsProcedure) SetData(input any, updater cache.Updater) any {
	v, _ := p.Call(context.Background(), UtilSetData, input, updater)
	return v
}

// SetInfiniteData writes the pages computed by updater and returns them.
func (p *UtilsProcedure) SetInfiniteData(input any, updater cache.Updater) any {
	v, _ := p.Call(context.Background(), UtilSetInfiniteData, input, updater)
	return v
}

// GetData returns the cached data of the query for input.
// The cache never holds nil, so a nil value means nothing is cached.
func (p *UtilsProcedure) GetData(input any) (any, bool) {
	v, err := p.Call(context.Background(), UtilGetData, input)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// GetInfiniteData returns the cached pages of the infinite query for input.
func (p *UtilsProcedure) GetInfiniteData(input any) (cache.InfiniteData, bool) {
	v, err := p.Call(context.Background(), UtilGetInfiniteData, input)
	if err != nil || v == nil {
		return cache.InfiniteData{}, false
	}
	data, ok := v.(cache.InfiniteData)
	return data, ok
}
