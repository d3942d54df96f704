package ssr

import (
	"context"
	"net/http"
)

type eventContextKey struct{}

// WithEvent returns a copy of ctx carrying ev.
func WithEvent(ctx context.Context, ev *Event) context.Context {
	return context.WithValue(ctx, eventContextKey{}, ev)
}

// EventFromContext returns the event attached by Middleware or WithEvent.
func EventFromContext(ctx context.Context) (*Event, bool) {
	ev, ok := ctx.Value(eventContextKey{}).(*Event)
	return ev, ok && ev != nil
}

// Middleware attaches a request event to every request. Procedure calls made
// through the event forward the request's cookies and authorization using client.
func Middleware(client *http.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ev := NewRequestEvent(r, client, nil)
			next.ServeHTTP(w, r.WithContext(WithEvent(r.Context(), ev)))
		})
	}
}
