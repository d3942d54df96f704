package di

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/goliatone/go-rpc-query/cache"
	"github.com/goliatone/go-rpc-query/pkg/testsupport"
	"github.com/goliatone/go-rpc-query/rpcclient"
	"github.com/goliatone/go-rpc-query/rpcquery"
	"github.com/goliatone/go-rpc-query/ssr"
)

// Post represents a test model served by the procedure server
type Post struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// postServer is a JSON-RPC procedure server backed by an in-memory post store
type postServer struct {
	mu        sync.RWMutex
	posts     map[string]Post
	callCount map[string]int // Track procedure calls to verify caching behavior
	cookies   []string
	srv       *httptest.Server
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
}

func newPostServer(t *testing.T) *postServer {
	t.Helper()

	s := &postServer{
		posts:     make(map[string]Post),
		callCount: make(map[string]int),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *postServer) endpoint() string {
	return s.srv.URL + "/rpc"
}

func (s *postServer) trackCall(method string, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount[method]++
	if cookie := r.Header.Get("Cookie"); cookie != "" {
		s.cookies = append(s.cookies, cookie)
	}
}

func (s *postServer) getCallCount(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callCount[method]
}

func (s *postServer) seenCookies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.cookies...)
}

func (s *postServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.trackCall(req.Method, r)

	result, rpcErr := s.dispatch(req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *postServer) dispatch(req rpcRequest) (any, *json2.Error) {
	switch req.Method {
	case "post.byId":
		var id string
		if err := json.Unmarshal(req.Params, &id); err != nil {
			return nil, &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error()}
		}
		s.mu.RLock()
		post, ok := s.posts[id]
		s.mu.RUnlock()
		if !ok {
			return nil, &json2.Error{Code: json2.E_SERVER, Message: "post not found"}
		}
		return post, nil

	case "post.list":
		var in struct {
			Limit  int  `json:"limit"`
			Cursor *int `json:"cursor"`
		}
		if err := json.Unmarshal(req.Params, &in); err != nil {
			return nil, &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error()}
		}
		return s.page(in.Limit, in.Cursor), nil

	case "post.create":
		var post Post
		if err := json.Unmarshal(req.Params, &post); err != nil {
			return nil, &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error()}
		}
		s.mu.Lock()
		s.posts[post.ID] = post
		s.mu.Unlock()
		return post, nil
	}
	return nil, &json2.Error{Code: json2.E_NO_METHOD, Message: "unknown procedure " + req.Method}
}

func (s *postServer) page(limit int, cursor *int) map[string]any {
	s.mu.RLock()
	ids := make([]string, 0, len(s.posts))
	for id := range s.posts {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	start := 0
	if cursor != nil {
		start = *cursor
	}
	end := min(start+limit, len(ids))
	if start > end {
		start = end
	}

	out := map[string]any{"items": ids[start:end]}
	if end < len(ids) {
		out["next"] = end
	}
	return out
}

func (s *postServer) seed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("post-%02d", i)
		s.posts[id] = Post{ID: id, Title: fmt.Sprintf("Post %d", i)}
	}
}

func newTestContainer(t testing.TB, endpoint string, mode rpcquery.Mode) *Container {
	t.Helper()

	config := rpcquery.DefaultConfig()
	config.Mode = mode
	config.Transport.Endpoint = endpoint
	config.Transport.RetryBaseWait = time.Millisecond
	config.Cache.Backend = cache.BackendMemory

	container, err := NewContainer(config, WithLogger(testsupport.DiscardLogger()))
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}
	t.Cleanup(func() { _ = container.Close() })
	return container
}

func nextPageParam(lastPage any, _ []any) (any, bool) {
	page, ok := lastPage.(map[string]any)
	if !ok {
		return nil, false
	}
	next, ok := page["next"]
	return next, ok
}

func TestEndToEndQueryFlow(t *testing.T) {
	server := newPostServer(t)
	server.seed(3)
	container := newTestContainer(t, server.endpoint(), rpcquery.ModeClient)
	root := container.Root()
	ctx := context.Background()

	// Step 1: First query should hit the procedure server
	q, err := root.Path("post", "byId").Query("post-01", nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	defer q.Close()

	result, err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if result.Status != cache.StatusSuccess {
		t.Fatalf("Expected success, got %s (%v)", result.Status, result.Err)
	}

	post, err := cache.DataAs[Post](result.Data)
	if err != nil {
		t.Fatalf("DataAs() failed: %v", err)
	}
	if post.Title != "Post 1" {
		t.Errorf("Expected title %q, got %q", "Post 1", post.Title)
	}

	// Step 2: A second subscriber is served from the cache
	again, err := root.Path("post", "byId").Query("post-01", nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	defer again.Close()
	if _, err := again.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if calls := server.getCallCount("post.byId"); calls != 1 {
		t.Errorf("Expected 1 procedure call, got %d", calls)
	}

	// Step 3: A mutation followed by an invalidation refetches the query
	m, err := root.Path("post", "create").Mutation(nil)
	if err != nil {
		t.Fatalf("Mutation() failed: %v", err)
	}
	if _, err := m.Mutate(ctx, Post{ID: "post-01", Title: "Edited"}); err != nil {
		t.Fatalf("Mutate() failed: %v", err)
	}

	utils, err := root.Context()
	if err != nil {
		t.Fatalf("Context() failed: %v", err)
	}
	if err := utils.Path("post").Invalidate(ctx, nil, nil); err != nil {
		t.Fatalf("Invalidate() failed: %v", err)
	}

	if calls := server.getCallCount("post.byId"); calls != 2 {
		t.Errorf("Expected 2 procedure calls after invalidation, got %d", calls)
	}

	post, err = cache.DataAs[Post](q.Result().Data)
	if err != nil {
		t.Fatalf("DataAs() failed: %v", err)
	}
	if post.Title != "Edited" {
		t.Errorf("Expected refetched title %q, got %q", "Edited", post.Title)
	}
}

func TestEndToEndInfiniteFlow(t *testing.T) {
	server := newPostServer(t)
	server.seed(5)
	container := newTestContainer(t, server.endpoint(), rpcquery.ModeClient)
	ctx := context.Background()

	q, err := container.Root().Path("post", "list").InfiniteQuery(map[string]any{"limit": 2}, rpcquery.Options{
		"getNextPageParam": nextPageParam,
	})
	if err != nil {
		t.Fatalf("InfiniteQuery() failed: %v", err)
	}
	defer q.Close()

	if _, err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	for q.HasNextPage() {
		if _, err := q.FetchNextPage(ctx); err != nil {
			t.Fatalf("FetchNextPage() failed: %v", err)
		}
	}

	data, err := cache.DataAs[cache.InfiniteData](q.Result().Data)
	if err != nil {
		t.Fatalf("DataAs() failed: %v", err)
	}
	if len(data.Pages) != 3 {
		t.Errorf("Expected 3 pages, got %d", len(data.Pages))
	}
	if calls := server.getCallCount("post.list"); calls != 3 {
		t.Errorf("Expected 3 procedure calls, got %d", calls)
	}
}

func TestServerRenderHydratesClient(t *testing.T) {
	server := newPostServer(t)
	server.seed(4)
	ctx := context.Background()

	backend := newTestContainer(t, server.endpoint(), rpcquery.ModeServer)

	// Step 1: Render on the server with the incoming request's credentials
	incoming := httptest.NewRequest(http.MethodGet, "/posts/post-02", nil)
	incoming.Header.Set("Cookie", "session=abc")
	incoming.Header.Set("X-Request-Id", "req-1")

	parents := make(chan struct{}, 2)
	ev := ssr.NewRequestEvent(incoming, server.srv.Client(), func(context.Context) error {
		parents <- struct{}{}
		return nil
	})

	root := backend.Root()
	if err := root.Path("post", "byId").SSR(ctx, "post-02", ev, nil); err != nil {
		t.Fatalf("SSR() failed: %v", err)
	}
	if err := root.Path("post", "list").SSRInfinite(ctx, map[string]any{"limit": 2}, ev, nil); err != nil {
		t.Fatalf("SSRInfinite() failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-parents:
		case <-time.After(time.Second):
			t.Fatal("parent continuation not triggered")
		}
	}

	cookies := server.seenCookies()
	if len(cookies) != 2 || cookies[0] != "session=abc" {
		t.Errorf("Expected forwarded cookies, got %v", cookies)
	}

	// Step 2: Ship the bag to the client
	bag, err := root.SSRData(ev)
	if err != nil {
		t.Fatalf("SSRData() failed: %v", err)
	}
	payload, err := bag.Dehydrate()
	if err != nil {
		t.Fatalf("Dehydrate() failed: %v", err)
	}
	hydrated, err := ssr.Hydrate(payload)
	if err != nil {
		t.Fatalf("Hydrate() failed: %v", err)
	}

	// Step 3: The client reads the rendered data without calling the server
	client := newTestContainer(t, server.endpoint(), rpcquery.ModeClient)
	client.Root().LoadSSRData(hydrated)

	byID, err := client.Root().Path("post", "byId").Query("post-02", nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	defer byID.Close()
	list, err := client.Root().Path("post", "list").InfiniteQuery(map[string]any{"limit": 2}, rpcquery.Options{
		"getNextPageParam": nextPageParam,
	})
	if err != nil {
		t.Fatalf("InfiniteQuery() failed: %v", err)
	}
	defer list.Close()

	if _, err := byID.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if _, err := list.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	post, err := cache.DataAs[Post](byID.Result().Data)
	if err != nil {
		t.Fatalf("DataAs() failed: %v", err)
	}
	if post.ID != "post-02" {
		t.Errorf("Expected post-02, got %q", post.ID)
	}

	if calls := server.getCallCount("post.byId"); calls != 1 {
		t.Errorf("Expected only the server render call, got %d", calls)
	}
	if calls := server.getCallCount("post.list"); calls != 1 {
		t.Errorf("Expected only the server render call, got %d", calls)
	}

	// Step 4: Pagination continues from the hydrated cursor
	if !list.HasNextPage() {
		t.Fatal("Expected a next page after the hydrated one")
	}
	if _, err := list.FetchNextPage(ctx); err != nil {
		t.Fatalf("FetchNextPage() failed: %v", err)
	}
	if calls := server.getCallCount("post.list"); calls != 2 {
		t.Errorf("Expected 2 list calls, got %d", calls)
	}
}

func TestErrorPropagation(t *testing.T) {
	server := newPostServer(t)
	container := newTestContainer(t, server.endpoint(), rpcquery.ModeServer)
	ctx := context.Background()

	ev := ssr.NewRequestEvent(httptest.NewRequest(http.MethodGet, "/", nil), server.srv.Client(), nil)
	err := container.Root().Path("post", "byId").SSR(ctx, "missing", ev, nil)
	if err == nil {
		t.Fatal("Expected SSR() to fail for a missing post")
	}

	// Procedure errors are not wrapped by the adapter
	var rpcErr *json2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected a JSON-RPC error, got %T: %v", err, err)
	}
	if rpcErr.Message != "post not found" {
		t.Errorf("Unexpected message %q", rpcErr.Message)
	}
	if errors.Is(err, rpcquery.ErrInvalidArguments) {
		t.Error("Procedure errors should not be reported as adapter errors")
	}

	if n := ssr.GetSSRData(ev).Len(); n != 0 {
		t.Errorf("Expected an empty bag after a failed fetch, got %d entries", n)
	}
}

func TestModeGuards(t *testing.T) {
	server := newPostServer(t)
	server.seed(1)
	ctx := context.Background()

	client := newTestContainer(t, server.endpoint(), rpcquery.ModeClient)
	ev := ssr.NewEvent(nil, nil)
	if err := client.Root().Path("post", "byId").SSR(ctx, "post-00", ev, nil); !errors.Is(err, rpcquery.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable in client mode, got %v", err)
	}

	backend := newTestContainer(t, server.endpoint(), rpcquery.ModeServer)
	q, err := backend.Root().Path("post", "byId").Query("post-00", nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	defer q.Close()
	if _, err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if calls := server.getCallCount("post.byId"); calls != 0 {
		t.Errorf("Expected no procedure calls, got %d", calls)
	}
}

func TestTransportContextOverride(t *testing.T) {
	server := newPostServer(t)
	server.seed(1)
	container := newTestContainer(t, server.endpoint(), rpcquery.ModeClient)

	var fetched int
	fetch := rpcclient.FetchFunc(func(req *http.Request) (*http.Response, error) {
		fetched++
		req.Header.Set("Cookie", "override=1")
		return server.srv.Client().Do(req)
	})

	utils, err := container.Root().Context()
	if err != nil {
		t.Fatalf("Context() failed: %v", err)
	}
	_, err = utils.Path("post", "byId").Fetch(context.Background(), "post-00", rpcquery.Options{
		rpcquery.OptionContext: map[string]any{rpcclient.ContextFetch: fetch},
	})
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	if fetched != 1 {
		t.Errorf("Expected the context fetch to be used once, got %d", fetched)
	}
	if cookies := server.seenCookies(); len(cookies) != 1 || cookies[0] != "override=1" {
		t.Errorf("Expected the override cookie, got %v", cookies)
	}
}
