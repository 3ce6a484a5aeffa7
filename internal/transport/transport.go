// Package transport performs single HTTP exchanges against cluster servers.
// Retrying against other servers and following redirects are decisions made
// above this layer; a Sender never does either on its own.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/crate/crate-go/internal/metrics"
)

const userAgent = "crate-go/1.0"

// Request describes one HTTP exchange. Body carries an in-memory payload
// that can safely be re-sent on another server. Payloads that are too large
// or arrive from a stream supply GetBody instead, which is called once per
// dispatch; when GetBody is nil and Body is nil the request has no payload.
// Stream leaves the response body unread for the caller to consume.
type Request struct {
	Method  string
	Path    string
	Body    []byte
	GetBody func() (io.Reader, error)
	Header  map[string]string
	Stream  bool
}

// Response is a fixed view of one HTTP exchange outcome: status line,
// headers and body. For streamed requests RawBody holds the unread body and
// the caller owns closing it; otherwise Body holds the fully read payload.
type Response struct {
	StatusCode int
	Reason     string
	Header     http.Header
	Body       []byte
	RawBody    io.ReadCloser
}

// Sender performs one exchange against one server.
type Sender interface {
	Do(ctx context.Context, server string, req *Request) (*Response, error)
	Close() error
}

// Options tunes the shared HTTP machinery.
type Options struct {
	// Timeout bounds each exchange from dial to body read.
	Timeout time.Duration
	// MaxIdleConnsPerServer caps kept-alive connections per server.
	MaxIdleConnsPerServer int
}

type restySender struct {
	client    *resty.Client
	transport *http.Transport
	logger    zerolog.Logger
}

// New returns a Sender backed by one pooled HTTP client. Connections are
// kept alive per server by the shared transport, so consecutive exchanges
// against the same server reuse them.
func New(opts Options, logger zerolog.Logger) Sender {
	maxIdle := opts.MaxIdleConnsPerServer
	if maxIdle <= 0 {
		maxIdle = 10
	}

	tr := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	httpClient := &http.Client{
		Transport: tr,
		// 3xx responses surface unchanged; the caller follows at most one
		// hop itself.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	client := resty.NewWithClient(httpClient).
		SetHeader("User-Agent", userAgent).
		SetTimeout(opts.Timeout).
		SetRetryCount(0) // failover happens in the executor, not here

	return &restySender{
		client:    client,
		transport: tr,
		logger:    logger.With().Str("component", "transport").Logger(),
	}
}

// Do performs the exchange against server and returns its outcome. An error
// is returned only when no HTTP response was obtained at all; HTTP-level
// failures are reported through the Response status.
func (s *restySender) Do(ctx context.Context, server string, req *Request) (*Response, error) {
	r := s.client.R().SetContext(ctx)
	for k, v := range req.Header {
		r.SetHeader(k, v)
	}

	switch {
	case req.GetBody != nil:
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("request body: %w", err)
		}
		r.SetBody(body)
	case req.Body != nil:
		r.SetBody(req.Body)
	}

	if req.Stream {
		r.SetDoNotParseResponse(true)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, joinURL(server, req.Path))
	latency := time.Since(start)
	if err != nil {
		metrics.RecordRequest(req.Method, server, "error", latency.Seconds())
		s.logger.Debug().
			Err(err).
			Str("server", server).
			Str("method", req.Method).
			Str("path", req.Path).
			Dur("latency", latency).
			Msg("HTTP request failed")
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Reason:     reasonPhrase(resp.RawResponse),
		Header:     resp.Header(),
	}
	if req.Stream {
		if resp.RawResponse != nil {
			out.RawBody = resp.RawResponse.Body
		}
	} else {
		out.Body = resp.Bytes()
	}

	metrics.RecordRequest(req.Method, server, strconv.Itoa(out.StatusCode), latency.Seconds())
	s.logger.Debug().
		Str("server", server).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", out.StatusCode).
		Dur("latency", latency).
		Msg("HTTP request")
	return out, nil
}

// Close releases idle connections. In-flight exchanges are unaffected.
func (s *restySender) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

func joinURL(server, path string) string {
	if path == "" {
		return server
	}
	if strings.HasPrefix(path, "/") {
		return server + path
	}
	return server + "/" + path
}

// reasonPhrase extracts the status-line phrase, falling back to the
// standard text for the code when the server sent none.
func reasonPhrase(raw *http.Response) string {
	if raw == nil {
		return ""
	}
	prefix := strconv.Itoa(raw.StatusCode) + " "
	if strings.HasPrefix(raw.Status, prefix) && len(raw.Status) > len(prefix) {
		return raw.Status[len(prefix):]
	}
	if raw.Status != "" {
		return raw.Status
	}
	return http.StatusText(raw.StatusCode)
}
