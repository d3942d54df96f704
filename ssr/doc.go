// Package ssr bridges server renders and the query cache.
//
// A server render creates one Event per request. Procedure calls made through the
// event's Fetch carry the credentials of the incoming request, and every result
// prefetched during the render is written to the event's Data bag, addressed by the
// same cache key the client cache will look up:
//
//	ev := ssr.NewRequestEvent(r, nil, nil)
//	_, _ = root.Path("post", "byId").SSR(ctx, "1", ev)
//	payload, _ := ssr.GetSSRData(ev).Dehydrate()
//
// On the client, Hydrate decodes the payload and the bag is seeded into the cache
// with LoadSSRData, so the first subscription is a cache hit.
package ssr
