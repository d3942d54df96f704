// Package cache defines the query cache contracts and the cache key codec used by the
// procedure adapter.
//
// # Overview
//
// The package exports:
//
//   - Key and ComputeKey: the normalized address of a procedure result
//   - KeySerializer: turns a Key into the string address used by stores
//   - QueryClient: the reactive cache driven by the adapter, with Query,
//     InfiniteQuery and Mutation handles
//   - Options: the cache side of a caller supplied option bag
//
// # Cache Keys
//
// A key is derived from the procedure path, the input and the query variant:
//
//	cache.ComputeKey([]string{"post", "byId"}, "1", cache.QueryTypeQuery)
//	// [["post","byId"],{"input":"1","type":"query"}]
//
//	cache.ComputeKey([]string{"foo"}, nil, cache.QueryTypeAny)
//	// [["foo"]]
//
//	cache.ComputeKey(nil, nil, cache.QueryTypeAny)
//	// []
//
// The meta element is omitted when there is no input and the variant is "any".
// Keys built from the same path, input and variant always serialize to the same
// address, which is what lets server-side prefetched data hydrate the client cache.
//
// # Key Serialization Strategy
//
// The default key serializer normalizes inputs through their JSON form and then
// serializes them reflectively:
//
//   - Strings are quoted so separators inside values cannot collide
//   - Numbers keep their JSON text, so 1 and 1.0 share an address
//   - Maps: sorted key-value pairs for deterministic output
//   - Structs: encoded through their JSON tags, like the wire does
//   - Values with no JSON form (functions, channels) fall back to reflection
//
// # Partial Matching
//
// Invalidate, refetch, cancel and reset address every query whose key starts with
// the filter key. A filter meta narrows the match to the given variant and input:
//
//	filter := cache.ComputeKey([]string{"names"}, nil, cache.QueryTypeAny)
//	key.Matches(filter, false) // true for every query under "names"
//
// # See Also
//
// The default QueryClient implementation lives in internal/cacheinfra and is built
// through rpcquery.NewQueryClient.
package cache
