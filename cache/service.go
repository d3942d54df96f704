package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status describes whether a query holds data.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchStatus describes whether a fetch is in flight.
type FetchStatus string

const (
	FetchStatusIdle     FetchStatus = "idle"
	FetchStatusFetching FetchStatus = "fetching"
)

// QueryFunctionContext is handed to every QueryFunc invocation.
type QueryFunctionContext struct {
	Context   context.Context
	QueryKey  Key
	PageParam any
}

// QueryFunc fetches the data of a query from the source of truth.
type QueryFunc func(qctx QueryFunctionContext) (any, error)

// MutationFunc performs a mutation with the given variables.
type MutationFunc func(ctx context.Context, variables any) (any, error)

// Updater computes the next cached value from the previous one.
// Returning nil leaves the cache untouched.
type Updater func(previous any) any

// SetValue returns an Updater that replaces the cached value with v.
func SetValue(v any) Updater {
	return func(any) any { return v }
}

// QueryOptions configures a query registration or a direct fetch.
type QueryOptions struct {
	QueryKey  Key
	QueryFn   QueryFunc
	Enabled   bool
	StaleTime time.Duration
}

// InfiniteQueryOptions configures a paginated query.
type InfiniteQueryOptions struct {
	QueryOptions
	InitialPageParam any
	// GetNextPageParam returns the param of the page after lastPage, false when there is none.
	GetNextPageParam func(lastPage any, allPages []any) (any, bool)
}

// MutationOptions configures a mutation handle.
type MutationOptions struct {
	MutationKey Key
	MutationFn  MutationFunc
	OnSuccess   func(data, variables any)
	OnError     func(err error, variables any)
}

// QueryFilters narrows the queries addressed by a key.
type QueryFilters struct {
	Exact     bool
	Predicate func(key Key) bool
}

// Match reports whether key is addressed by filter key k under these filters.
func (f *QueryFilters) Match(key, k Key) bool {
	exact := f != nil && f.Exact
	if !key.Matches(k, exact) {
		return false
	}
	if f != nil && f.Predicate != nil {
		return f.Predicate(key)
	}
	return true
}

// InfiniteData is the cached value of a paginated query.
type InfiniteData struct {
	Pages      []any `json:"pages" msgpack:"pages"`
	PageParams []any `json:"pageParams" msgpack:"pageParams"`
}

// QueryResult is a snapshot of a query's state.
type QueryResult struct {
	Status        Status
	FetchStatus   FetchStatus
	Data          any
	Err           error
	DataUpdatedAt time.Time
	IsStale       bool
}

// MutationResult is a snapshot of a mutation's state.
type MutationResult struct {
	Status    Status
	Data      any
	Err       error
	Variables any
	IsIdle    bool
}

// Query is a reactive subscription to a cached query.
type Query interface {
	Key() Key
	Result() QueryResult
	// Subscribe registers fn for every state change and returns the unsubscribe function.
	Subscribe(fn func(QueryResult)) func()
	Refetch(ctx context.Context) (QueryResult, error)
	// Wait blocks until no fetch is in flight for the query.
	Wait(ctx context.Context) (QueryResult, error)
	Close()
}

// InfiniteQuery is a reactive subscription to a paginated query.
type InfiniteQuery interface {
	Query
	FetchNextPage(ctx context.Context) (QueryResult, error)
	HasNextPage() bool
}

// Mutation is a reactive handle around a mutation function.
type Mutation interface {
	Key() Key
	Mutate(ctx context.Context, variables any) (any, error)
	Result() MutationResult
	Reset()
}

// QueryClient is the reactive cache the adapter drives.
type QueryClient interface {
	Query(opts QueryOptions) Query
	InfiniteQuery(opts InfiniteQueryOptions) InfiniteQuery
	Mutation(opts MutationOptions) Mutation

	FetchQuery(ctx context.Context, opts QueryOptions) (any, error)
	PrefetchQuery(ctx context.Context, opts QueryOptions) error
	FetchInfiniteQuery(ctx context.Context, opts InfiniteQueryOptions) (InfiniteData, error)
	PrefetchInfiniteQuery(ctx context.Context, opts InfiniteQueryOptions) error

	InvalidateQueries(ctx context.Context, key Key, filters *QueryFilters) error
	RefetchQueries(ctx context.Context, key Key, filters *QueryFilters) error
	CancelQueries(ctx context.Context, key Key, filters *QueryFilters) error
	ResetQueries(ctx context.Context, key Key, filters *QueryFilters) error

	SetQueryData(key Key, updater Updater) any
	GetQueryData(key Key) (any, bool)

	Clear()
	Close() error
}

// GetQueryData is a type-safe wrapper around QueryClient.GetQueryData.
func GetQueryData[T any](client QueryClient, key Key) (T, bool, error) {
	value, ok := client.GetQueryData(key)
	if !ok {
		var zero T
		return zero, false, nil
	}
	data, err := DataAs[T](value)
	return data, true, err
}

// DataAs converts a cached value into T. Values that were decoded generically
// (hydrated bags, JSON-RPC replies) are converted through their JSON form.
func DataAs[T any](value any) (T, error) {
	var zero T
	if value == nil {
		return zero, nil
	}

	if typed, ok := value.(T); ok {
		return typed, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("cache: convert %T to %T: %w", value, zero, err)
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("cache: convert %T to %T: %w", value, zero, err)
	}
	return out, nil
}
