package rpcquery

import (
	"context"
	"fmt"

	"github.com/goliatone/go-rpc-query/cache"
	"github.com/goliatone/go-rpc-query/rpcclient"
	"github.com/goliatone/go-rpc-query/ssr"
)

// Procedure is a path into the procedure tree.
type Procedure struct {
	root *Root
	path []string
}

// Path returns the procedure at the given segments.
func (r *Root) Path(segments ...string) *Procedure {
	return &Procedure{root: r, path: append([]string{}, segments...)}
}

// Path returns the child procedure at the given segments.
func (p *Procedure) Path(segments ...string) *Procedure {
	path := make([]string, 0, len(p.path)+len(segments))
	path = append(path, p.path...)
	path = append(path, segments...)
	return &Procedure{root: p.root, path: path}
}

// Segments returns a copy of the procedure path.
func (p *Procedure) Segments() []string {
	return append([]string{}, p.path...)
}

// Call invokes method on the procedure.
func (p *Procedure) Call(ctx context.Context, method string, args ...any) (any, error) {
	return p.root.Invoke(ctx, p.path, method, args...)
}

// Query registers a reactive query for input.
func (p *Procedure) Query(input any, opts Options) (cache.Query, error) {
	v, err := p.Call(context.Background(), MethodQuery, input, opts)
	if err != nil {
		return nil, err
	}
	return handle[cache.Query](v)
}

// Mutation creates a mutation handle.
func (p *Procedure) Mutation(opts Options) (cache.Mutation, error) {
	v, err := p.Call(context.Background(), MethodMutation, opts)
	if err != nil {
		return nil, err
	}
	return handle[cache.Mutation](v)
}

// InfiniteQuery registers a reactive paginated query. The cursor of every page
// is merged into input.
func (p *Procedure) InfiniteQuery(input any, opts Options) (cache.InfiniteQuery, error) {
	v, err := p.Call(context.Background(), MethodInfiniteQuery, input, opts)
	if err != nil {
		return nil, err
	}
	return handle[cache.InfiniteQuery](v)
}

// SSR fetches the procedure on the server and stores the result in ev's SSR bag.
// A nil input calls the procedure without input.
func (p *Procedure) SSR(ctx context.Context, input any, ev *ssr.Event, opts *rpcclient.RequestOptions) error {
	_, err := p.Call(ctx, MethodSSR, serverArgs(input, ev, opts)...)
	return err
}

// SSRInfinite fetches the first page on the server and stores it in ev's SSR bag.
func (p *Procedure) SSRInfinite(ctx context.Context, input any, ev *ssr.Event, opts *rpcclient.RequestOptions) error {
	_, err := p.Call(ctx, MethodSSRInfinite, serverArgs(input, ev, opts)...)
	return err
}

func serverArgs(input any, ev *ssr.Event, opts *rpcclient.RequestOptions) []any {
	if input == nil {
		return []any{ev, opts}
	}
	return []any{input, ev, opts}
}

func handle[T any](v any) (T, error) {
	h, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("rpcquery: unexpected handle %T", v)
	}
	return h, nil
}
