package rpcclient

import (
	"context"
	"net/http"
)

// ProcedureType tags the kind of procedure a call targets.
type ProcedureType string

const (
	ProcedureQuery    ProcedureType = "query"
	ProcedureMutation ProcedureType = "mutation"
)

// Context keys understood by the HTTP transport.
const (
	// ContextFetch holds a FetchFunc that replaces the transport's HTTP client.
	ContextFetch = "fetch"
	// ContextHeaders holds a map[string]string of extra request headers.
	ContextHeaders = "headers"
)

// FetchFunc performs an HTTP round trip. Server renders use it to forward the
// credentials of the incoming request.
type FetchFunc func(req *http.Request) (*http.Response, error)

// RequestOptions are the per-call transport options.
type RequestOptions struct {
	// Context is an arbitrary bag handed to the transport.
	Context map[string]any
	// Signal aborts the call when it is done, in addition to the call context.
	Signal context.Context
}

// ContextValue returns the transport context entry stored under key.
func (o *RequestOptions) ContextValue(key string) (any, bool) {
	if o == nil || o.Context == nil {
		return nil, false
	}
	v, ok := o.Context[key]
	return v, ok
}

// Client issues procedure calls against a remote procedure tree.
// path is the dot-joined procedure path, opts may be nil.
type Client interface {
	Query(ctx context.Context, path string, input any, opts *RequestOptions) (any, error)
	Mutation(ctx context.Context, path string, input any, opts *RequestOptions) (any, error)
}
