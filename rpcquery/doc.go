// Package rpcquery connects an RPC client to the reactive query cache.
//
// A Root addresses procedures by path. Every leaf exposes cache-aware methods
// instead of raw calls:
//
//	root, err := rpcquery.New(cfg)
//	post := root.Path("post", "byId")
//
//	q, err := post.Query("1", nil)                  // reactive, keyed [["post","byId"],{"input":"1","type":"query"}]
//	m, err := root.Path("post", "create").Mutation(nil)
//	pages, err := root.Path("post", "list").InfiniteQuery(map[string]any{"limit": 10}, rpcquery.Options{
//		"getNextPageParam": nextCursor,
//	})
//
// The same calls are available by name through Root.Invoke, which resolves the
// method against a fixed dispatch table:
//
//	root.Invoke(ctx, []string{"post", "byId"}, "query", "1", nil)
//	root.Invoke(ctx, []string{"names"}, "bogus") // ErrNotAFunction: names.bogus
//
// # Options
//
// Options bags mix transport fields ("context", "signal") with cache fields
// ("enabled", "staleTime", "getNextPageParam", ...). SplitOptions routes each field
// to its side without modifying the bag.
//
// # Execution Mode
//
// In ModeClient reactive queries fetch on subscription and server fetches fail with
// ErrUnavailable. In ModeServer reactive queries stay idle and the ssr methods fetch
// through the request event, writing the result to the event's SSR bag under the key
// the client computes:
//
//	err := root.Path("post", "byId").SSR(ctx, "1", ev, nil)
//	bag, _ := root.SSRData(ev)
//
// On the client, LoadSSRData seeds the bag into the query client so the first
// subscription is a cache hit.
//
// # Utilities
//
// Root.Context returns Utils, the per-procedure cache management surface
// (invalidate, prefetch, fetch, refetch, cancel, reset, setData, getData and their
// infinite variants).
package rpcquery
