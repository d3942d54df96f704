package cache

import (
	"fmt"
	"time"
)

// Recognized cache option fields.
const (
	OptionEnabled          = "enabled"
	OptionStaleTime        = "staleTime"
	OptionInitialPageParam = "initialPageParam"
	OptionGetNextPageParam = "getNextPageParam"
	OptionOnSuccess        = "onSuccess"
	OptionOnError          = "onError"
)

// Options is the cache side of a caller supplied option bag.
// Unrecognized fields are ignored.
type Options map[string]any

// OptionError reports a recognized option field holding a value of the wrong type.
type OptionError struct {
	Field    string
	Expected string
	Got      any
}

// Error implements the error interface.
func (e *OptionError) Error() string {
	return fmt.Sprintf("option %q: expected %s, got %T", e.Field, e.Expected, e.Got)
}

// QueryOptions decodes the fields relevant to a query. Enabled defaults to true.
func (o Options) QueryOptions() (QueryOptions, error) {
	opts := QueryOptions{Enabled: true}

	if v, ok := o[OptionEnabled]; ok && v != nil {
		enabled, ok := v.(bool)
		if !ok {
			return opts, &OptionError{Field: OptionEnabled, Expected: "bool", Got: v}
		}
		opts.Enabled = enabled
	}

	if v, ok := o[OptionStaleTime]; ok && v != nil {
		switch st := v.(type) {
		case time.Duration:
			opts.StaleTime = st
		case string:
			d, err := time.ParseDuration(st)
			if err != nil {
				return opts, &OptionError{Field: OptionStaleTime, Expected: "duration", Got: v}
			}
			opts.StaleTime = d
		default:
			return opts, &OptionError{Field: OptionStaleTime, Expected: "duration", Got: v}
		}
	}

	return opts, nil
}

// InfiniteQueryOptions decodes the fields relevant to a paginated query.
func (o Options) InfiniteQueryOptions() (InfiniteQueryOptions, error) {
	base, err := o.QueryOptions()
	if err != nil {
		return InfiniteQueryOptions{}, err
	}

	opts := InfiniteQueryOptions{
		QueryOptions:     base,
		InitialPageParam: o[OptionInitialPageParam],
	}

	if v, ok := o[OptionGetNextPageParam]; ok && v != nil {
		fn, ok := v.(func(lastPage any, allPages []any) (any, bool))
		if !ok {
			return opts, &OptionError{Field: OptionGetNextPageParam, Expected: "func(any, []any) (any, bool)", Got: v}
		}
		opts.GetNextPageParam = fn
	}

	return opts, nil
}

// MutationOptions decodes the fields relevant to a mutation.
func (o Options) MutationOptions() (MutationOptions, error) {
	var opts MutationOptions

	if v, ok := o[OptionOnSuccess]; ok && v != nil {
		fn, ok := v.(func(data, variables any))
		if !ok {
			return opts, &OptionError{Field: OptionOnSuccess, Expected: "func(any, any)", Got: v}
		}
		opts.OnSuccess = fn
	}

	if v, ok := o[OptionOnError]; ok && v != nil {
		fn, ok := v.(func(err error, variables any))
		if !ok {
			return opts, &OptionError{Field: OptionOnError, Expected: "func(error, any)", Got: v}
		}
		opts.OnError = fn
	}

	return opts, nil
}
