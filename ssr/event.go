package ssr

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-rpc-query/rpcclient"
)

// forwardedHeaders are copied from the incoming request to procedure calls
// made while rendering it.
var forwardedHeaders = []string{"Cookie", "Authorization"}

// Event is the request-scoped context of a server render.
type Event struct {
	// ID identifies the request in logs.
	ID string

	// Request is the incoming request, if any.
	Request *http.Request

	// Fetch performs procedure calls on behalf of the request.
	Fetch rpcclient.FetchFunc

	// Parent resolves the data of enclosing layouts. Server fetches trigger it
	// after writing their result without waiting for it.
	Parent func(ctx context.Context) error

	// Locals holds request-scoped values, including the SSR bag.
	Locals Locals
}

// NewEvent creates an event with a fresh ID.
func NewEvent(fetch rpcclient.FetchFunc, parent func(ctx context.Context) error) *Event {
	return &Event{
		ID:     uuid.NewString(),
		Fetch:  fetch,
		Parent: parent,
	}
}

// NewRequestEvent creates an event for r whose Fetch forwards r's cookies and
// authorization to the procedure server. A nil client uses http.DefaultClient.
func NewRequestEvent(r *http.Request, client *http.Client, parent func(ctx context.Context) error) *Event {
	if client == nil {
		client = http.DefaultClient
	}

	ev := NewEvent(forwardingFetch(r, client), parent)
	ev.Request = r
	if id := r.Header.Get("X-Request-Id"); id != "" {
		ev.ID = id
	}
	return ev
}

func forwardingFetch(incoming *http.Request, client *http.Client) rpcclient.FetchFunc {
	return func(req *http.Request) (*http.Response, error) {
		for _, name := range forwardedHeaders {
			if req.Header.Get(name) != "" {
				continue
			}
			if value := incoming.Header.Get(name); value != "" {
				req.Header.Set(name, value)
			}
		}
		return client.Do(req)
	}
}

// Locals is the request-scoped storage of an Event.
type Locals struct {
	mu     sync.Mutex
	data   *Data
	values map[string]any
}

// Set stores a request-scoped value.
func (l *Locals) Set(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.values == nil {
		l.values = make(map[string]any)
	}
	l.values[key] = value
}

// Get returns a request-scoped value.
func (l *Locals) Get(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.values[key]
	return v, ok
}

// ssrData returns the bag of the request, creating it on first use.
func (l *Locals) ssrData() *Data {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.data == nil {
		l.data = NewData()
	}
	return l.data
}

// GetSSRData returns the SSR bag of ev. Every call for the same event returns the
// same bag.
func GetSSRData(ev *Event) *Data {
	return ev.Locals.ssrData()
}
