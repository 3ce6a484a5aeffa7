package transport

import (
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// IsConnectivityError reports whether err came out of the HTTP machinery
// itself: dial failures, DNS errors, timeouts, connections dropped mid
// exchange. Those mark the server as unreachable. Everything else means the
// request itself could not be built or sent and is the caller's problem.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	// Anything the HTTP client wraps is a transport-level failure,
	// including timeouts from the per-request deadline.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return true
	}

	return false
}
