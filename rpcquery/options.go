package rpcquery

import (
	"context"
	"fmt"

	"github.com/goliatone/go-rpc-query/cache"
	"github.com/goliatone/go-rpc-query/rpcclient"
)

// Transport option fields. Every other field of an Options bag belongs to the cache.
const (
	OptionContext = "context"
	OptionSignal  = "signal"
)

// Options is a caller supplied bag merging transport and cache options.
type Options map[string]any

// isTransportField reports whether field belongs to the transport.
func isTransportField(field string) bool {
	return field == OptionContext || field == OptionSignal
}

// SplitOptions partitions merged into transport and cache options without
// modifying it. A nil bag yields (nil, nil). Transport fields holding a value of
// the wrong type are dropped.
func SplitOptions(merged Options) (*rpcclient.RequestOptions, cache.Options) {
	if merged == nil {
		return nil, nil
	}

	transport := &rpcclient.RequestOptions{}
	cacheOpts := make(cache.Options, len(merged))

	for field, value := range merged {
		if !isTransportField(field) {
			cacheOpts[field] = value
			continue
		}

		switch field {
		case OptionContext:
			if m, ok := value.(map[string]any); ok {
				transport.Context = copyMap(m)
			}
		case OptionSignal:
			if signal, ok := value.(context.Context); ok {
				transport.Signal = signal
			}
		}
	}

	return transport, cacheOpts
}

// optionsArg extracts the options bag at index i of args. A missing or nil
// argument yields a nil bag.
func optionsArg(args []any, i int) (Options, error) {
	if i < 0 || i >= len(args) || args[i] == nil {
		return nil, nil
	}

	switch opts := args[i].(type) {
	case Options:
		return opts, nil
	case map[string]any:
		return Options(opts), nil
	case cache.Options:
		return Options(opts), nil
	default:
		return nil, fmt.Errorf("argument %d: expected options, got %T", i, args[i])
	}
}

// withFetch returns a copy of opts whose transport context carries fetch.
func withFetch(opts *rpcclient.RequestOptions, fetch rpcclient.FetchFunc) *rpcclient.RequestOptions {
	out := &rpcclient.RequestOptions{}
	if opts != nil {
		out.Signal = opts.Signal
		out.Context = copyMap(opts.Context)
	}
	if out.Context == nil {
		out.Context = make(map[string]any, 1)
	}
	if fetch != nil {
		out.Context[rpcclient.ContextFetch] = fetch
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
