package client

import (
	"errors"
	"fmt"
)

// ConnectionError reports that no server could serve a logical call: every
// candidate failed at the transport level or answered that it is
// unavailable. The message carries the last attempted server's failure
// description and is stable enough for direct display.
type ConnectionError struct {
	Message string
}

func (e *ConnectionError) Error() string {
	return e.Message
}

// ProgrammingError reports that a server was reached but rejected the
// request: a bad statement, bad parameters, or a failure while building the
// request itself. It never triggers failover, since the request is presumed
// broken rather than the server.
type ProgrammingError struct {
	Message    string
	StatusCode int
	// ErrorTrace holds the server-side stack trace when the connector was
	// configured to request one.
	ErrorTrace string
}

func (e *ProgrammingError) Error() string {
	return e.Message
}

// BlobLocationNotFoundError reports a blob operation against a table that
// does not exist or has blob support disabled.
type BlobLocationNotFoundError struct {
	Table string
}

func (e *BlobLocationNotFoundError) Error() string {
	return fmt.Sprintf("blob table %q does not exist", e.Table)
}

// DigestNotFoundError reports a download of a blob that is not stored
// under the given digest.
type DigestNotFoundError struct {
	Table  string
	Digest string
}

func (e *DigestNotFoundError) Error() string {
	return fmt.Sprintf("blob %s/%s not found", e.Table, e.Digest)
}

// IsConnectionError reports whether err is a connectivity-class failure.
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsProgrammingError reports whether err is a statement-class failure.
func IsProgrammingError(err error) bool {
	var target *ProgrammingError
	return errors.As(err, &target)
}
