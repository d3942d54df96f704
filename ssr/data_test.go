package ssr_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-rpc-query/cache"
	"github.com/goliatone/go-rpc-query/pkg/testsupport"
	"github.com/goliatone/go-rpc-query/ssr"
)

func TestGetSSRData_SameBagPerEvent(t *testing.T) {
	ev := ssr.NewEvent(nil, nil)

	first := ssr.GetSSRData(ev)
	second := ssr.GetSSRData(ev)
	assert.Same(t, first, second)

	other := ssr.GetSSRData(ssr.NewEvent(nil, nil))
	assert.NotSame(t, first, other)
}

func TestGetSSRData_ConcurrentFirstUse(t *testing.T) {
	ev := ssr.NewEvent(nil, nil)

	bags := make([]*ssr.Data, 16)
	var wg sync.WaitGroup
	for i := range bags {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bags[i] = ssr.GetSSRData(ev)
		}(i)
	}
	wg.Wait()

	for _, bag := range bags {
		assert.Same(t, bags[0], bag)
	}
}

func TestData_LastWriteWins(t *testing.T) {
	data := ssr.NewData()
	key := cache.ComputeKey([]string{"post", "byId"}, "1", cache.QueryTypeQuery)

	data.Set(key, "first")
	data.Set(cache.ComputeKey([]string{"post", "byId"}, "1", cache.QueryTypeQuery), "second")

	value, ok := data.Get(key)
	require.True(t, ok)
	assert.Equal(t, "second", value)
	assert.Equal(t, 1, data.Len())
}

func TestData_ConcurrentWriters(t *testing.T) {
	data := ssr.NewData()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data.Set(cache.ComputeKey([]string{"post", "byId"}, fmt.Sprint(i), cache.QueryTypeQuery), i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, data.Len())
}

func TestData_JSONRoundTrip(t *testing.T) {
	data := ssr.NewData()
	byID := cache.ComputeKey([]string{"post", "byId"}, map[string]any{"id": 1}, cache.QueryTypeQuery)
	names := cache.ComputeKey([]string{"names"}, nil, cache.QueryTypeQuery)
	data.Set(byID, map[string]any{"title": "hello"})
	data.Set(names, []string{"a", "b"})

	encoded, err := json.Marshal(data)
	require.NoError(t, err)

	decoded := ssr.NewData()
	require.NoError(t, json.Unmarshal(encoded, decoded))
	assert.Equal(t, 2, decoded.Len())

	value, ok := decoded.Get(byID)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"title": "hello"}, value)

	value, ok = decoded.Get(names)
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, value)
}

func TestData_DehydrateHydrate(t *testing.T) {
	data := ssr.NewData()
	byID := cache.ComputeKey([]string{"post", "byId"}, map[string]any{"id": 1}, cache.QueryTypeQuery)
	list := cache.ComputeKey([]string{"post", "list"}, map[string]any{"limit": 10}, cache.QueryTypeInfinite)
	data.Set(byID, "post-1")
	data.Set(list, cache.InfiniteData{Pages: []any{"page-1"}, PageParams: []any{nil}})

	payload, err := data.Dehydrate()
	require.NoError(t, err)

	hydrated, err := ssr.Hydrate(payload)
	require.NoError(t, err)
	require.Equal(t, 2, hydrated.Len())

	value, ok := hydrated.Get(byID)
	require.True(t, ok)
	assert.Equal(t, "post-1", value)

	value, ok = hydrated.Get(list)
	require.True(t, ok)
	pages, err := cache.DataAs[cache.InfiniteData](value)
	require.NoError(t, err)
	assert.Equal(t, []any{"page-1"}, pages.Pages)
}

func TestData_DehydrateHydrate_StructInputUsesJSONNames(t *testing.T) {
	type byPostID struct {
		PostID int `json:"post_id"`
	}

	data := ssr.NewData()
	key := cache.ComputeKey([]string{"post", "byId"}, byPostID{PostID: 1}, cache.QueryTypeQuery)
	data.Set(key, "post-1")

	payload, err := data.Dehydrate()
	require.NoError(t, err)

	hydrated, err := ssr.Hydrate(payload)
	require.NoError(t, err)

	value, ok := hydrated.Get(key)
	require.True(t, ok)
	assert.Equal(t, "post-1", value)
	assert.Equal(t, `[["post","byId"],{"input":{"post_id":1},"type":"query"}]`, hydrated.Entries()[0].Key.String())
}

func TestHydrate_InvalidPayload(t *testing.T) {
	_, err := ssr.Hydrate([]byte{0xc1})
	assert.Error(t, err)
}

func TestData_Entries_Ordered(t *testing.T) {
	data := ssr.NewData()
	data.Set(cache.ComputeKey([]string{"b"}, nil, cache.QueryTypeQuery), 2)
	data.Set(cache.ComputeKey([]string{"a"}, nil, cache.QueryTypeQuery), 1)

	entries := data.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"a"}, entries[0].Key.Path)
	assert.Equal(t, []string{"b"}, entries[1].Key.Path)
}

func TestNewRequestEvent_ForwardsCredentials(t *testing.T) {
	var cookie, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie = r.Header.Get("Cookie")
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	incoming := httptest.NewRequest(http.MethodGet, "/posts/1", nil)
	incoming.Header.Set("Cookie", "session=abc")
	incoming.Header.Set("Authorization", "Bearer token")
	incoming.Header.Set("X-Request-Id", "req-1")

	ev := ssr.NewRequestEvent(incoming, srv.Client(), nil)
	assert.Equal(t, "req-1", ev.ID)
	assert.Same(t, incoming, ev.Request)

	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	require.NoError(t, err)
	resp, err := ev.Fetch(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "session=abc", cookie)
	assert.Equal(t, "Bearer token", auth)
}

func TestMiddleware_AttachesEvent(t *testing.T) {
	var seen *ssr.Event
	handler := ssr.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, ok := ssr.EventFromContext(r.Context())
		require.True(t, ok)
		seen = ev
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, seen)
	assert.NotEmpty(t, seen.ID)
	assert.NotNil(t, seen.Fetch)

	_, ok := ssr.EventFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}

func TestLocals(t *testing.T) {
	ev := ssr.NewEvent(nil, nil)
	_, ok := ev.Locals.Get("user")
	assert.False(t, ok)

	ev.Locals.Set("user", "ada")
	v, ok := ev.Locals.Get("user")
	assert.True(t, ok)
	assert.Equal(t, "ada", v)
}

func TestData_WireFormat(t *testing.T) {
	data := ssr.NewData()
	data.Set(cache.ComputeKey([]string{"post", "byId"}, "1", cache.QueryTypeQuery), map[string]any{"id": "1", "title": "hello"})
	data.Set(cache.ComputeKey([]string{"names"}, nil, cache.QueryTypeQuery), []string{"a", "b"})

	testsupport.CompareWithGoldenJSON(t, testsupport.GoldenPath("bag.json"), data)
}
