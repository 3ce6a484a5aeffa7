package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crate/crate-go/internal/metrics"
	"github.com/crate/crate-go/internal/observability"
	"github.com/crate/crate-go/internal/pool"
	"github.com/crate/crate-go/internal/transport"
)

const tracerName = "crate-go"

// callOptions tunes how the executor treats a single logical call.
type callOptions struct {
	// followRedirect allows one redirect hop; the follow-up itself is
	// never redirected again.
	followRedirect bool
}

// execute runs one logical call against the pool. Servers that fail at the
// transport level or answer with a 5xx are deactivated and the call moves
// on to the next one; the call fails only once no active server remains, or
// when the request itself turns out to be broken.
func (c *Client) execute(ctx context.Context, req *transport.Request, opts callOptions) (*transport.Response, error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "cluster.execute",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.Path),
		))
	defer span.End()

	if req.Header == nil {
		req.Header = make(map[string]string, 1)
	}
	if _, ok := req.Header["X-Request-ID"]; !ok {
		req.Header["X-Request-ID"] = uuid.NewString()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		server, err := c.pool.Pick()
		if err != nil {
			metrics.RecordPoolExhausted()
			connErr := &ConnectionError{Message: err.Error()}
			observability.RecordError(ctx, connErr)
			return nil, connErr
		}

		resp, err := c.sender.Do(ctx, server, req)
		if err != nil {
			// The caller backing out is not a server failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !transport.IsConnectivityError(err) {
				progErr := &ProgrammingError{Message: err.Error()}
				observability.RecordError(ctx, progErr)
				return nil, progErr
			}
			if terminal := c.failover(ctx, server, err.Error(), "transport"); terminal != nil {
				return nil, terminal
			}
			continue
		}

		if resp.StatusCode >= 500 {
			discardBody(resp)
			if terminal := c.failover(ctx, server, resp.Reason, "server_error"); terminal != nil {
				return nil, terminal
			}
			continue
		}

		// The server answered and can serve; lift a concurrent deactivation.
		c.pool.Reactivate(server)

		if opts.followRedirect && resp.StatusCode >= 300 && resp.StatusCode < 400 {
			if location := resp.Header.Get("Location"); location != "" {
				discardBody(resp)
				return c.followRedirect(ctx, server, req, location)
			}
		}

		observability.AddSpanAttributes(ctx, attribute.String("db.server", server))
		return resp, nil
	}
}

// failover benches one failed server and reports whether the pool is now
// exhausted. A non-nil return is the terminal error for the whole call,
// built from this failure rather than an older one.
func (c *Client) failover(ctx context.Context, server, reason, kind string) error {
	metrics.RecordFailover(kind)
	c.logger.Debug().
		Str("server", server).
		Str("reason", reason).
		Msg("server failed, trying next")
	remaining := c.pool.Deactivate(server, reason)
	observability.AddSpanEvent(ctx, "failover",
		attribute.String("db.server", server),
		attribute.String("reason", reason),
	)
	if remaining > 0 {
		return nil
	}
	metrics.RecordPoolExhausted()
	exhausted := &pool.ExhaustedError{LastFailure: reason}
	connErr := &ConnectionError{Message: exhausted.Error()}
	observability.RecordError(ctx, connErr)
	return connErr
}

// pinned dispatches against one fixed server with no failover. The pool is
// not consulted, so a transport failure names the server directly instead
// of draining the rotation.
func (c *Client) pinned(ctx context.Context, server string, req *transport.Request) (*transport.Response, error) {
	if req.Header == nil {
		req.Header = make(map[string]string, 1)
	}
	if _, ok := req.Header["X-Request-ID"]; !ok {
		req.Header["X-Request-ID"] = uuid.NewString()
	}

	resp, err := c.sender.Do(ctx, server, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !transport.IsConnectivityError(err) {
			return nil, &ProgrammingError{Message: err.Error()}
		}
		return nil, &ConnectionError{Message: "Server not available, exception: " + err.Error()}
	}
	if resp.StatusCode < 500 {
		// An answer below 5xx proves the server serves again.
		c.pool.Reactivate(server)
	}
	return resp, nil
}

// followRedirect performs the single allowed redirect hop: the request is
// re-issued against the redirect target and that outcome is returned
// unchanged, whatever it is. A relative location stays on the origin
// server.
func (c *Client) followRedirect(ctx context.Context, origin string, req *transport.Request, location string) (*transport.Response, error) {
	target, err := url.Parse(location)
	if err != nil {
		return nil, &ProgrammingError{Message: fmt.Sprintf("invalid redirect location %q", location)}
	}

	server := origin
	if target.Host != "" {
		scheme := target.Scheme
		if scheme == "" {
			scheme = c.cfg.scheme()
		}
		server = scheme + "://" + target.Host
	}

	next := &transport.Request{
		Method:  req.Method,
		Path:    req.Path,
		Body:    req.Body,
		GetBody: req.GetBody,
		Header:  req.Header,
		Stream:  req.Stream,
	}
	if target.Path != "" && target.Path != "/" {
		next.Path = target.RequestURI()
	}

	c.logger.Debug().
		Str("origin", origin).
		Str("server", server).
		Str("path", next.Path).
		Msg("following redirect")
	return c.pinned(ctx, server, next)
}

// discardBody releases a streamed body the executor is not going to hand
// out, keeping the connection reusable.
func discardBody(resp *transport.Response) {
	if resp.RawBody != nil {
		resp.RawBody.Close()
		resp.RawBody = nil
	}
}
