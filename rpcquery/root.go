package rpcquery

import (
	"log/slog"

	"github.com/goliatone/go-rpc-query/cache"
	"github.com/goliatone/go-rpc-query/internal/cacheinfra"
	"github.com/goliatone/go-rpc-query/rpcclient"
	"github.com/goliatone/go-rpc-query/ssr"
)

// Mode is the execution context the adapter runs in.
type Mode string

const (
	// ModeClient enables reactive fetching and rejects server fetches.
	ModeClient Mode = "client"
	// ModeServer disables reactive fetching and enables server fetches.
	ModeServer Mode = "server"
)

func (m Mode) valid() bool {
	return m == ModeClient || m == ModeServer
}

// Root accessor names.
const (
	AccessorContext     = "context"
	AccessorQueryClient = "queryClient"
	AccessorSSR         = "ssr"
	AccessorLoadSSRData = "loadSSRData"
)

// Config configures the root factory.
type Config struct {
	// Mode selects the execution context. Defaults to client.
	Mode Mode `yaml:"mode"`

	// ServerOnlyContext makes the context accessor unavailable in client mode.
	ServerOnlyContext bool `yaml:"server_only_context"`

	// Transport configures the JSON-RPC HTTP client.
	Transport rpcclient.HTTPConfig `yaml:"transport"`

	// Cache configures the default query client.
	Cache cache.Config `yaml:"cache"`
}

// DefaultConfig returns a Config populated with sensible defaults.
// Transport.Endpoint has no default.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeClient,
		Transport: rpcclient.DefaultHTTPConfig(),
		Cache:     cache.DefaultConfig(),
	}
}

// Option customizes a Root.
type Option func(*Root)

// WithMode sets the execution mode, overriding the configuration.
func WithMode(mode Mode) Option {
	return func(r *Root) {
		r.mode = mode
	}
}

// WithLogger sets the logger used by the adapter and the collaborators it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Root) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithServerOnlyContext makes the context accessor unavailable in client mode.
func WithServerOnlyContext() Option {
	return func(r *Root) {
		r.serverOnlyContext = true
	}
}

// WithRPCClient replaces the configured HTTP transport.
func WithRPCClient(client rpcclient.Client) Option {
	return func(r *Root) {
		r.client = client
	}
}

// WithQueryClient replaces the configured query client.
func WithQueryClient(queryClient cache.QueryClient) Option {
	return func(r *Root) {
		r.queryClient = queryClient
	}
}

// Root is the entry point of the adapter. Procedures are addressed by path;
// the accessors expose the utilities, the query client and the SSR bridge.
type Root struct {
	client            rpcclient.Client
	queryClient       cache.QueryClient
	mode              Mode
	serverOnlyContext bool
	logger            *slog.Logger
	utils             *Utils
}

// New builds a Root from configuration. Collaborators supplied through
// WithRPCClient and WithQueryClient are used instead of the configured ones.
func New(cfg Config, opts ...Option) (*Root, error) {
	r := &Root{
		mode:              cfg.Mode,
		serverOnlyContext: cfg.ServerOnlyContext,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.mode == "" {
		r.mode = ModeClient
	}
	if !r.mode.valid() {
		return nil, &cache.ConfigError{Field: "Mode", Message: "must be one of client, server"}
	}

	if r.client == nil {
		transport := cfg.Transport
		if transport.Logger == nil {
			transport.Logger = r.logger
		}
		client, err := rpcclient.NewHTTPClient(transport)
		if err != nil {
			return nil, err
		}
		r.client = client
	}

	if r.queryClient == nil {
		queryClient, err := NewQueryClient(cfg.Cache, r.logger)
		if err != nil {
			return nil, err
		}
		r.queryClient = queryClient
	}

	r.utils = &Utils{root: r}
	return r, nil
}

// NewRoot builds a Root around existing collaborators.
func NewRoot(client rpcclient.Client, queryClient cache.QueryClient, opts ...Option) *Root {
	r := &Root{
		client:      client,
		queryClient: queryClient,
		mode:        ModeClient,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.mode.valid() {
		r.mode = ModeClient
	}
	r.utils = &Utils{root: r}
	return r
}

// NewQueryClient creates the default query client backed by the store selected
// in cfg.
func NewQueryClient(cfg cache.Config, logger *slog.Logger) (cache.QueryClient, error) {
	return cacheinfra.NewQueryClient(cfg, logger)
}

// Mode returns the execution mode.
func (r *Root) Mode() Mode {
	return r.mode
}

// Get resolves a root accessor by name. Names other than the accessors start a
// procedure path and yield a *Procedure.
func (r *Root) Get(name string) (any, error) {
	switch name {
	case AccessorContext:
		return r.Context()
	case AccessorQueryClient:
		return r.queryClient, nil
	case AccessorSSR:
		if r.mode == ModeClient {
			return nil, unavailable(nil, AccessorSSR, "is only available on the server")
		}
		return ssr.GetSSRData, nil
	case AccessorLoadSSRData:
		return r.LoadSSRData, nil
	}
	return r.Path(name), nil
}

// Context returns the utilities bound to the root's clients.
func (r *Root) Context() (*Utils, error) {
	if r.serverOnlyContext && r.mode == ModeClient {
		return nil, unavailable(nil, AccessorContext, "is only available on the server")
	}
	return r.utils, nil
}

// QueryClient returns the query client driven by the root.
func (r *Root) QueryClient() cache.QueryClient {
	return r.queryClient
}

// SSRData returns the SSR bag of ev. It fails in client mode.
func (r *Root) SSRData(ev *ssr.Event) (*ssr.Data, error) {
	if r.mode == ModeClient {
		return nil, unavailable(nil, AccessorSSR, "is only available on the server")
	}
	return ssr.GetSSRData(ev), nil
}

// LoadSSRData seeds every entry of data into the query client. Loading the same
// bag again leaves the cache in the same state.
func (r *Root) LoadSSRData(data *ssr.Data) {
	if data == nil {
		return
	}

	entries := data.Entries()
	for _, entry := range entries {
		r.queryClient.SetQueryData(entry.Key, cache.SetValue(entry.Value))
	}
	r.logger.Debug("ssr data loaded", "entries", len(entries))
}

// Close releases the query client.
func (r *Root) Close() error {
	return r.queryClient.Close()
}
