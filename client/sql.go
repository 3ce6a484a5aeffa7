package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/crate/crate-go/internal/transport"
)

// sqlPayload is the statement envelope posted to the SQL endpoint.
type sqlPayload struct {
	Stmt     string  `json:"stmt"`
	Args     []any   `json:"args,omitempty"`
	BulkArgs [][]any `json:"bulk_args,omitempty"`
}

// SQL executes stmt with optional positional arguments. time.Time
// arguments are sent as epoch milliseconds, the wire form the server
// expects for timestamp columns.
func (c *Client) SQL(ctx context.Context, stmt string, args ...any) (*SQLResult, error) {
	payload := sqlPayload{Stmt: stmt}
	if len(args) > 0 {
		payload.Args = coerceArgs(args)
	}
	return c.submit(ctx, payload)
}

// BulkSQL executes stmt once per parameter set in a single round trip.
// Per-set outcomes are reported under Results; a rejected bulk surfaces as
// a ProgrammingError joining the per-set messages.
func (c *Client) BulkSQL(ctx context.Context, stmt string, bulkArgs [][]any) (*SQLResult, error) {
	payload := sqlPayload{Stmt: stmt, BulkArgs: coerceBulkArgs(bulkArgs)}
	return c.submit(ctx, payload)
}

func (c *Client) submit(ctx context.Context, payload sqlPayload) (*SQLResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ProgrammingError{Message: "marshal statement payload: " + err.Error()}
	}
	req := &transport.Request{
		Method: http.MethodPost,
		Path:   c.sqlPath,
		Body:   body,
		Header: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
	}
	resp, err := c.execute(ctx, req, callOptions{})
	if err != nil {
		return nil, err
	}
	if err := raiseForStatus(resp); err != nil {
		return nil, err
	}
	return decodeSQLResult(resp.Body)
}

func coerceArgs(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = coerceArg(arg)
	}
	return out
}

func coerceBulkArgs(bulkArgs [][]any) [][]any {
	out := make([][]any, len(bulkArgs))
	for i, set := range bulkArgs {
		out[i] = coerceArgs(set)
	}
	return out
}

// coerceArg converts temporal values into epoch milliseconds. Everything
// else passes through to plain JSON encoding.
func coerceArg(arg any) any {
	switch v := arg.(type) {
	case time.Time:
		return v.UnixMilli()
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UnixMilli()
	default:
		return arg
	}
}
