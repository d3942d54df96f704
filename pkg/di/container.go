package di

import (
	"log/slog"

	"github.com/goliatone/go-rpc-query/cache"
	"github.com/goliatone/go-rpc-query/rpcclient"
	"github.com/goliatone/go-rpc-query/rpcquery"
)

// Container provides dependency injection for the adapter.
// It manages singleton instances of the transport, the query client and the
// root built on top of them.
type Container struct {
	client      rpcclient.Client
	queryClient cache.QueryClient
	root        *rpcquery.Root
	config      rpcquery.Config
	logger      *slog.Logger
}

// ContainerOption customizes a Container.
type ContainerOption func(*Container)

// WithLogger sets the logger handed to every component the container builds.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRPCClient replaces the HTTP transport built from the configuration.
func WithRPCClient(client rpcclient.Client) ContainerOption {
	return func(c *Container) {
		c.client = client
	}
}

// NewContainer creates a new DI container with the provided configuration.
// It initializes the JSON-RPC transport and the query client, then wires
// both into the root.
func NewContainer(config rpcquery.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		transport := config.Transport
		transport.Logger = c.logger
		client, err := rpcclient.NewHTTPClient(transport)
		if err != nil {
			return nil, err
		}
		c.client = client
	}

	queryClient, err := rpcquery.NewQueryClient(config.Cache, c.logger)
	if err != nil {
		return nil, err
	}
	c.queryClient = queryClient

	rootOpts := []rpcquery.Option{
		rpcquery.WithRPCClient(c.client),
		rpcquery.WithQueryClient(queryClient),
		rpcquery.WithLogger(c.logger),
	}
	root, err := rpcquery.New(config, rootOpts...)
	if err != nil {
		_ = queryClient.Close()
		return nil, err
	}
	c.root = root

	return c, nil
}

// NewContainerWithDefaults creates a new DI container using the default
// configuration against the given procedure endpoint.
func NewContainerWithDefaults(endpoint string) (*Container, error) {
	config := rpcquery.DefaultConfig()
	config.Transport.Endpoint = endpoint
	return NewContainer(config)
}

// Root returns the singleton adapter root.
func (c *Container) Root() *rpcquery.Root {
	return c.root
}

// QueryClient returns the singleton query client.
// This allows access to the underlying cache for advanced use cases.
func (c *Container) QueryClient() cache.QueryClient {
	return c.queryClient
}

// RPCClient returns the singleton procedure transport.
func (c *Container) RPCClient() rpcclient.Client {
	return c.client
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() rpcquery.Config {
	return c.config
}

// Close releases the query client.
func (c *Container) Close() error {
	return c.root.Close()
}
