package rpcquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-rpc-query/cache"
	"github.com/goliatone/go-rpc-query/rpcclient"
	"github.com/goliatone/go-rpc-query/ssr"
)

// Procedure methods.
const (
	MethodQuery         = "query"
	MethodMutation      = "mutation"
	MethodInfiniteQuery = "infiniteQuery"
	MethodSSR           = "ssr"
	MethodSSRInfinite   = "ssrInfinite"
)

// cursorField is merged into infinite query inputs with the current page param.
const cursorField = "cursor"

// parsedOptions marks methods whose options position depends on the argument shape.
const parsedOptions = -1

type procedureMethod struct {
	optionIndex int
	queryType   cache.QueryType
	handle      func(r *Root, ctx context.Context, c *call) (any, error)
}

var procedureMethods = map[string]procedureMethod{
	MethodQuery:         {optionIndex: 1, queryType: cache.QueryTypeQuery, handle: (*Root).query},
	MethodMutation:      {optionIndex: 0, queryType: cache.QueryTypeAny, handle: (*Root).mutation},
	MethodInfiniteQuery: {optionIndex: 1, queryType: cache.QueryTypeInfinite, handle: (*Root).infiniteQuery},
	MethodSSR:           {optionIndex: parsedOptions, queryType: cache.QueryTypeQuery, handle: (*Root).serverFetch},
	MethodSSRInfinite:   {optionIndex: parsedOptions, queryType: cache.QueryTypeInfinite, handle: (*Root).serverFetch},
}

// call is one invocation of a procedure or utility method.
type call struct {
	path      []string
	method    string
	args      []any
	queryType cache.QueryType
	transport *rpcclient.RequestOptions
	cacheOpts cache.Options
}

func (c *call) arg(i int) any {
	if i < len(c.args) {
		return c.args[i]
	}
	return nil
}

func (c *call) joinedPath() string {
	return strings.Join(c.path, ".")
}

// Invoke runs method on the procedure at path. Reactive methods return a
// cache.Query, cache.Mutation or cache.InfiniteQuery handle immediately; server
// fetches block until the result is stored in the event's SSR bag.
//
// Arguments per method:
//
//	query(input, opts)
//	mutation(opts)
//	infiniteQuery(input, opts)
//	ssr(event) | ssr(event, opts) | ssr(input, event) | ssr(input, event, opts)
//	ssrInfinite: same shapes as ssr
func (r *Root) Invoke(ctx context.Context, path []string, method string, args ...any) (any, error) {
	entry, ok := procedureMethods[method]
	if !ok {
		return nil, notAFunction(path, method)
	}

	c := &call{
		path:      append([]string{}, path...),
		method:    method,
		args:      args,
		queryType: entry.queryType,
	}

	if entry.optionIndex != parsedOptions {
		opts, err := optionsArg(args, entry.optionIndex)
		if err != nil {
			return nil, invalidArguments(c.path, method, err)
		}
		c.transport, c.cacheOpts = SplitOptions(opts)
	}

	r.logger.Debug("procedure call", "path", c.joinedPath(), "method", method, "mode", r.mode)
	return entry.handle(r, ctx, c)
}

func (r *Root) enabled(opts cache.QueryOptions) bool {
	return opts.Enabled && r.mode == ModeClient
}

func (r *Root) query(_ context.Context, c *call) (any, error) {
	opts, err := c.cacheOpts.QueryOptions()
	if err != nil {
		return nil, invalidArguments(c.path, c.method, err)
	}

	input := c.arg(0)
	opts.QueryKey = cache.ComputeKey(c.path, input, cache.QueryTypeQuery)
	opts.Enabled = r.enabled(opts)
	opts.QueryFn = r.queryFn(c.joinedPath(), input, c.transport)

	return r.queryClient.Query(opts), nil
}

func (r *Root) mutation(_ context.Context, c *call) (any, error) {
	opts, err := c.cacheOpts.MutationOptions()
	if err != nil {
		return nil, invalidArguments(c.path, c.method, err)
	}

	path, transport := c.joinedPath(), c.transport
	opts.MutationKey = cache.ComputeKey(c.path, nil, cache.QueryTypeAny)
	opts.MutationFn = func(ctx context.Context, variables any) (any, error) {
		return r.client.Mutation(ctx, path, variables, transport)
	}

	return r.queryClient.Mutation(opts), nil
}

func (r *Root) infiniteQuery(_ context.Context, c *call) (any, error) {
	opts, err := c.cacheOpts.InfiniteQueryOptions()
	if err != nil {
		return nil, invalidArguments(c.path, c.method, err)
	}

	input := c.arg(0)
	keyInput, _ := stripCursor(input)
	opts.QueryKey = cache.ComputeKey(c.path, keyInput, cache.QueryTypeInfinite)
	opts.Enabled = r.enabled(opts.QueryOptions)
	opts.QueryFn = r.infiniteQueryFn(c.joinedPath(), input, c.transport)

	return r.queryClient.InfiniteQuery(opts), nil
}

// serverFetch calls the procedure, stores the result in the event's SSR bag under
// the key the client side computes, then triggers the event continuation.
func (r *Root) serverFetch(ctx context.Context, c *call) (any, error) {
	if r.mode == ModeClient {
		return nil, unavailable(c.path, c.method, "is only available on the server")
	}

	input, ev, transport, err := parseServerArgs(c.args)
	if err != nil {
		return nil, invalidArguments(c.path, c.method, err)
	}

	keyInput, pageParam := input, any(nil)
	if c.queryType == cache.QueryTypeInfinite {
		keyInput, pageParam = stripCursor(input)
	}
	key := cache.ComputeKey(c.path, keyInput, c.queryType)

	data, err := r.client.Query(ctx, c.joinedPath(), input, withFetch(transport, ev.Fetch))
	if err != nil {
		return nil, err
	}

	var value any = data
	if c.queryType == cache.QueryTypeInfinite {
		value = cache.InfiniteData{Pages: []any{data}, PageParams: []any{pageParam}}
	}
	ssr.GetSSRData(ev).Set(key, value)

	r.continueParent(ctx, c, ev)
	return nil, nil
}

// continueParent triggers the event continuation without waiting for it.
func (r *Root) continueParent(ctx context.Context, c *call, ev *ssr.Event) {
	if ev.Parent == nil {
		return
	}

	parentCtx := context.WithoutCancel(ctx)
	go func() {
		if err := ev.Parent(parentCtx); err != nil {
			r.logger.Warn("ssr continuation failed",
				"event", ev.ID,
				"path", c.joinedPath(),
				"method", c.method,
				"error", err,
			)
		}
	}()
}

func (r *Root) queryFn(path string, input any, transport *rpcclient.RequestOptions) cache.QueryFunc {
	return func(qctx cache.QueryFunctionContext) (any, error) {
		return r.client.Query(qctx.Context, path, input, transport)
	}
}

func (r *Root) infiniteQueryFn(path string, input any, transport *rpcclient.RequestOptions) cache.QueryFunc {
	return func(qctx cache.QueryFunctionContext) (any, error) {
		pageInput, err := withCursor(input, qctx.PageParam)
		if err != nil {
			return nil, err
		}
		return r.client.Query(qctx.Context, path, pageInput, transport)
	}
}

// parseServerArgs resolves the argument shapes of server fetches. Events are
// recognized by type.
func parseServerArgs(args []any) (input any, ev *ssr.Event, transport *rpcclient.RequestOptions, err error) {
	var opts any

	switch len(args) {
	case 1:
		ev = asEvent(args[0])
	case 2:
		if e := asEvent(args[0]); e != nil {
			ev, opts = e, args[1]
		} else {
			input, ev = args[0], asEvent(args[1])
		}
	case 3:
		input, ev, opts = args[0], asEvent(args[1]), args[2]
	default:
		return nil, nil, nil, fmt.Errorf("expected 1 to 3 arguments, got %d", len(args))
	}

	if ev == nil {
		return nil, nil, nil, fmt.Errorf("missing request event")
	}

	transport, err = transportArg(opts)
	if err != nil {
		return nil, nil, nil, err
	}
	return input, ev, transport, nil
}

func asEvent(v any) *ssr.Event {
	ev, _ := v.(*ssr.Event)
	return ev
}

// transportArg accepts request options directly or a merged Options bag.
func transportArg(v any) (*rpcclient.RequestOptions, error) {
	switch opts := v.(type) {
	case nil:
		return nil, nil
	case *rpcclient.RequestOptions:
		return opts, nil
	case rpcclient.RequestOptions:
		return &opts, nil
	case Options:
		transport, _ := SplitOptions(opts)
		return transport, nil
	case map[string]any:
		transport, _ := SplitOptions(opts)
		return transport, nil
	default:
		return nil, fmt.Errorf("expected request options, got %T", v)
	}
}

// inputObject returns input as a JSON object. Structs are converted through
// their JSON form.
func inputObject(input any) (map[string]any, bool) {
	switch in := input.(type) {
	case nil:
		return map[string]any{}, true
	case map[string]any:
		return copyMap(in), true
	case Options:
		return copyMap(in), true
	}

	data, err := json.Marshal(input)
	if err != nil {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// withCursor returns a copy of input with the cursor field set to cursor.
func withCursor(input, cursor any) (map[string]any, error) {
	obj, ok := inputObject(input)
	if !ok {
		return nil, fmt.Errorf("rpcquery: infinite query input must be an object, got %T", input)
	}
	obj[cursorField] = cursor
	return obj, nil
}

// stripCursor removes the cursor field from object inputs, returning the
// remaining input and the cursor. An input holding only a cursor becomes nil.
// Other inputs are returned unchanged.
func stripCursor(input any) (any, any) {
	if input == nil {
		return nil, nil
	}

	obj, ok := inputObject(input)
	if !ok {
		return input, nil
	}
	cursor, has := obj[cursorField]
	if !has {
		return input, nil
	}
	delete(obj, cursorField)
	if len(obj) == 0 {
		return nil, cursor
	}
	return obj, cursor
}
