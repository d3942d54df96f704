package testsupport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/goliatone/go-rpc-query/rpcclient"
	"github.com/goliatone/go-rpc-query/ssr"
)

// ErrNoResponse is returned by RecordingClient for procedures without a stub.
var ErrNoResponse = errors.New("testsupport: no response stubbed")

// Call is one procedure call seen by a RecordingClient.
type Call struct {
	Kind  rpcclient.ProcedureType
	Path  string
	Input any
	Opts  *rpcclient.RequestOptions
}

// Responder computes the result of a stubbed procedure.
type Responder func(ctx context.Context, input any) (any, error)

// RecordingClient is an rpcclient.Client that records calls and answers from stubs.
type RecordingClient struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]Responder
}

// NewRecordingClient creates an empty RecordingClient.
func NewRecordingClient() *RecordingClient {
	return &RecordingClient{responses: make(map[string]Responder)}
}

// Respond stubs path with a fixed result.
func (c *RecordingClient) Respond(path string, result any) *RecordingClient {
	return c.RespondWith(path, func(context.Context, any) (any, error) {
		return result, nil
	})
}

// Fail stubs path with an error.
func (c *RecordingClient) Fail(path string, err error) *RecordingClient {
	return c.RespondWith(path, func(context.Context, any) (any, error) {
		return nil, err
	})
}

// RespondWith stubs path with fn.
func (c *RecordingClient) RespondWith(path string, fn Responder) *RecordingClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[path] = fn
	return c
}

func (c *RecordingClient) Query(ctx context.Context, path string, input any, opts *rpcclient.RequestOptions) (any, error) {
	return c.record(ctx, Call{Kind: rpcclient.ProcedureQuery, Path: path, Input: input, Opts: opts})
}

func (c *RecordingClient) Mutation(ctx context.Context, path string, input any, opts *rpcclient.RequestOptions) (any, error) {
	return c.record(ctx, Call{Kind: rpcclient.ProcedureMutation, Path: path, Input: input, Opts: opts})
}

func (c *RecordingClient) record(ctx context.Context, call Call) (any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	fn := c.responses[call.Path]
	c.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResponse, call.Path)
	}
	return fn(ctx, call.Input)
}

// Calls returns a snapshot of the recorded calls.
func (c *RecordingClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call{}, c.calls...)
}

// CallCount returns the number of calls made to path.
func (c *RecordingClient) CallCount(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, call := range c.calls {
		if call.Path == path {
			n++
		}
	}
	return n
}

// Reset forgets the recorded calls and keeps the stubs.
func (c *RecordingClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// NewTestEvent creates a request event whose Fetch fails the test when used
// and whose Parent reports on the returned channel.
func NewTestEvent(t *testing.T) (*ssr.Event, <-chan error) {
	t.Helper()

	parents := make(chan error, 8)
	fetch := func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected network fetch: %s %s", req.Method, req.URL)
		return nil, errors.New("testsupport: network disabled")
	}
	ev := ssr.NewEvent(fetch, func(context.Context) error {
		parents <- nil
		return nil
	})
	return ev, parents
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
