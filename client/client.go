// Package client provides an HTTP connector for a cluster of
// interchangeable database servers. A Client spreads statements over a
// rotating server pool: a server that fails is benched and the call moves
// on to the next one, so a logical call only fails once every server has
// refused it or the request itself is broken.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/crate/crate-go/internal/observability"
	"github.com/crate/crate-go/internal/pool"
	"github.com/crate/crate-go/internal/transport"
)

// Client issues SQL statements and blob operations against a cluster.
// All methods are safe for concurrent use.
type Client struct {
	cfg     *Config
	pool    *pool.Pool
	sender  transport.Sender
	logger  zerolog.Logger
	sqlPath string
}

type options struct {
	logger *zerolog.Logger
	sender transport.Sender
}

// Option customizes a Client at construction time.
type Option func(*options)

// WithLogger attaches a logger; without it the client stays silent.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// withSender swaps the HTTP layer out, for tests that fake servers.
func withSender(sender transport.Sender) Option {
	return func(o *options) {
		o.sender = sender
	}
}

// New builds a client for the servers named in cfg. A nil cfg and an empty
// server list both fall back to the local default server.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := zerolog.Nop()
	if o.logger != nil {
		logger = *o.logger
	}
	logger = logger.With().Str("component", "client").Logger()

	servers, err := pool.ParseServers(cfg.serverList(), cfg.scheme())
	if err != nil {
		return nil, err
	}

	sender := o.sender
	if sender == nil {
		sender = transport.New(transport.Options{
			Timeout:               cfg.Timeout,
			MaxIdleConnsPerServer: cfg.MaxIdleConnsPerServer,
		}, logger)
	}

	sqlPath := "/_sql"
	if cfg.ErrorTrace {
		sqlPath = "/_sql?error_trace=1"
	}

	c := &Client{
		cfg:     cfg,
		pool:    pool.New(servers, logger),
		sender:  sender,
		logger:  logger,
		sqlPath: sqlPath,
	}
	logger.Debug().Strs("servers", servers).Msg("client configured")
	return c, nil
}

// ServerInfos fetches the root resource of one specific server, bypassing
// the rotation. A server that answers is restored into the rotation if it
// was benched, which makes this the recovery path for servers that went
// away and came back.
func (c *Client) ServerInfos(ctx context.Context, server string) (*ServerInfo, error) {
	req := &transport.Request{
		Method: http.MethodGet,
		Path:   "/",
		Header: map[string]string{"Accept": "application/json"},
	}
	resp, err := c.pinned(ctx, server, req)
	if err != nil {
		return nil, err
	}
	if err := raiseForStatus(resp); err != nil {
		return nil, err
	}
	return decodeServerInfo(server, resp.Body)
}

// ClusterHealth probes every configured server concurrently and reports
// one status per server, in configuration order. An inactive server is not
// contacted before the retry interval since its failure has elapsed; that
// wait is a plain sleep, cut short when ctx ends.
func (c *Client) ClusterHealth(ctx context.Context) []ServerStatus {
	ctx, span := observability.StartSpan(ctx, tracerName, "cluster.health")
	defer span.End()

	servers := c.pool.Servers()
	statuses := make([]ServerStatus, len(servers))
	g, ctx := errgroup.WithContext(ctx)
	for i, server := range servers {
		i, server := i, server
		g.Go(func() error {
			statuses[i] = c.probe(ctx, server)
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

func (c *Client) probe(ctx context.Context, server string) ServerStatus {
	status := ServerStatus{Server: server}
	since, inactive := c.pool.FailureSince(server)
	status.Active = !inactive
	if inactive {
		if wait := c.cfg.RetryInterval - time.Since(since); wait > 0 {
			select {
			case <-ctx.Done():
				status.Err = ctx.Err()
				return status
			case <-time.After(wait):
			}
		}
	}
	info, err := c.ServerInfos(ctx, server)
	if err != nil {
		status.Err = err
		return status
	}
	status.Info = info
	return status
}

// ActiveServers returns the servers currently in rotation.
func (c *Client) ActiveServers() []string {
	active, _ := c.pool.Snapshot()
	return active
}

// InactiveServers returns the benched servers keyed to their recorded
// failure descriptions.
func (c *Client) InactiveServers() map[string]string {
	_, inactive := c.pool.Snapshot()
	return inactive
}

// Servers returns the full configured server set in configuration order.
func (c *Client) Servers() []string {
	return c.pool.Servers()
}

// Close releases idle connections. The client must not be used afterwards.
func (c *Client) Close() error {
	return c.sender.Close()
}
