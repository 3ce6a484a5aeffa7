package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crate/crate-go/internal/transport"
)

// raiseForStatus maps a response status onto the error taxonomy. Success
// and redirect statuses return nil. A 4xx becomes a ProgrammingError, with
// the server's own error payload preferred over the bare status line. A 5xx
// becomes a ConnectionError; pooled calls normally consume those during
// failover, so only pinned calls surface them here.
func raiseForStatus(resp *transport.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode < 500:
		return clientError(resp)
	default:
		return &ConnectionError{
			Message: fmt.Sprintf("%d Server Error: %s", resp.StatusCode, resp.Reason),
		}
	}
}

// errorPayload is the error envelope a server attaches to a rejected
// statement. Bulk executions report per-parameter-set outcomes under
// results instead of a single error.
type errorPayload struct {
	Error      errorDetail  `json:"error"`
	ErrorTrace string       `json:"error_trace"`
	Results    []BulkResult `json:"results"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// bulkErrors collects the non-empty per-set error messages; sets that
// succeeded or carry no message are skipped.
func (p *errorPayload) bulkErrors() []string {
	var msgs []string
	for _, result := range p.Results {
		if result.ErrorMessage != "" {
			msgs = append(msgs, result.ErrorMessage)
		}
	}
	return msgs
}

func clientError(resp *transport.Response) error {
	fallback := fmt.Sprintf("%d Client Error: %s", resp.StatusCode, resp.Reason)
	if !isJSONContent(resp.Header.Get("Content-Type")) || len(resp.Body) == 0 {
		return &ProgrammingError{Message: fallback, StatusCode: resp.StatusCode}
	}
	var payload errorPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return &ProgrammingError{Message: fallback, StatusCode: resp.StatusCode}
	}
	if msgs := payload.bulkErrors(); len(msgs) > 0 {
		return &ProgrammingError{
			Message:    strings.Join(msgs, "\n"),
			StatusCode: resp.StatusCode,
			ErrorTrace: payload.ErrorTrace,
		}
	}
	if payload.Error.Message != "" {
		return &ProgrammingError{
			Message:    payload.Error.Message,
			StatusCode: resp.StatusCode,
			ErrorTrace: payload.ErrorTrace,
		}
	}
	return &ProgrammingError{
		Message:    fallback,
		StatusCode: resp.StatusCode,
		ErrorTrace: payload.ErrorTrace,
	}
}

func isJSONContent(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}
