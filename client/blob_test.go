package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crate/crate-go/internal/transport"
)

const fakeDigest = "fake0000000000000000000000000000000000aa"

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func statusSender(status int, reason string) *fakeSender {
	sender := &fakeSender{}
	sender.handler = func(_ int, _ string, _ *transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: status, Reason: reason, Header: http.Header{}}, nil
	}
	return sender
}

func TestBlobPutCreated(t *testing.T) {
	sender := statusSender(201, "Created")
	c := newTestClient(t, []string{"s1:4200"}, sender)

	created, err := c.BlobPut(context.Background(), "myblobs", fakeDigest, bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	assert.True(t, created)

	calls := sender.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "PUT", calls[0].method)
	assert.Equal(t, "/_blobs/myblobs/"+fakeDigest, calls[0].path)
}

func TestBlobPutAlreadyExists(t *testing.T) {
	sender := statusSender(409, "Conflict")
	c := newTestClient(t, []string{"s1:4200"}, sender)

	created, err := c.BlobPut(context.Background(), "myblobs", fakeDigest, bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestBlobPutMissingTable(t *testing.T) {
	sender := statusSender(404, "Not Found")
	c := newTestClient(t, []string{"s1:4200"}, sender)

	_, err := c.BlobPut(context.Background(), "missing", fakeDigest, bytes.NewReader([]byte("data")))
	var locErr *BlobLocationNotFoundError
	require.ErrorAs(t, err, &locErr)
	assert.Equal(t, "missing", locErr.Table)
}

func TestBlobGetStreamsBody(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, _ string, req *transport.Request) (*transport.Response, error) {
		require.True(t, req.Stream)
		return &transport.Response{
			StatusCode: 200,
			Reason:     "OK",
			Header:     http.Header{},
			RawBody:    io.NopCloser(bytes.NewReader([]byte("blob content"))),
		}, nil
	}
	c := newTestClient(t, []string{"s1:4200"}, sender)

	body, err := c.BlobGet(context.Background(), "myblobs", fakeDigest)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "blob content", string(data))
}

func TestBlobGetNotFoundClosesStream(t *testing.T) {
	tracker := &closeTracker{Reader: bytes.NewReader(nil)}
	sender := &fakeSender{}
	sender.handler = func(_ int, _ string, _ *transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 404, Reason: "Not Found", Header: http.Header{}, RawBody: tracker}, nil
	}
	c := newTestClient(t, []string{"s1:4200"}, sender)

	_, err := c.BlobGet(context.Background(), "myblobs", fakeDigest)
	var notFound *DigestNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "myblobs", notFound.Table)
	assert.Equal(t, fakeDigest, notFound.Digest)
	assert.True(t, tracker.closed)
}

func TestBlobExists(t *testing.T) {
	sender := statusSender(200, "OK")
	c := newTestClient(t, []string{"s1:4200"}, sender)

	exists, err := c.BlobExists(context.Background(), "myblobs", fakeDigest)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "HEAD", sender.recorded()[0].method)

	sender = statusSender(404, "Not Found")
	c = newTestClient(t, []string{"s1:4200"}, sender)

	exists, err = c.BlobExists(context.Background(), "myblobs", fakeDigest)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBlobDelete(t *testing.T) {
	sender := statusSender(204, "No Content")
	c := newTestClient(t, []string{"s1:4200"}, sender)

	deleted, err := c.BlobDelete(context.Background(), "myblobs", fakeDigest)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "DELETE", sender.recorded()[0].method)

	sender = statusSender(404, "Not Found")
	c = newTestClient(t, []string{"s1:4200"}, sender)

	deleted, err = c.BlobDelete(context.Background(), "myblobs", fakeDigest)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestBlobRedirectFollowedOnce(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, server string, _ *transport.Request) (*transport.Response, error) {
		if server == "http://s1:4200" {
			return &transport.Response{
				StatusCode: 307,
				Reason:     "Temporary Redirect",
				Header:     http.Header{"Location": []string{"http://s3:4200"}},
			}, nil
		}
		return &transport.Response{
			StatusCode: 200,
			Reason:     "OK",
			Header:     http.Header{},
			RawBody:    io.NopCloser(bytes.NewReader([]byte("from the shard holder"))),
		}, nil
	}
	c := newTestClient(t, []string{"s1:4200", "s2:4200"}, sender)

	body, err := c.BlobGet(context.Background(), "myblobs", fakeDigest)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "from the shard holder", string(data))

	calls := sender.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "http://s1:4200", calls[0].server)
	assert.Equal(t, "http://s3:4200", calls[1].server)
	// The original path is replayed against the redirect target.
	assert.Equal(t, calls[0].path, calls[1].path)

	// Redirects never touch the pool membership.
	assert.Len(t, c.ActiveServers(), 2)
	assert.Empty(t, c.InactiveServers())
}

func TestBlobRedirectOutcomeReturnedUnchanged(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(n int, _ string, _ *transport.Request) (*transport.Response, error) {
		if n == 0 {
			return &transport.Response{
				StatusCode: 307,
				Reason:     "Temporary Redirect",
				Header:     http.Header{"Location": []string{"http://s3:4200"}},
			}, nil
		}
		return &transport.Response{StatusCode: 404, Reason: "Not Found", Header: http.Header{}}, nil
	}
	c := newTestClient(t, []string{"s1:4200"}, sender)

	_, err := c.BlobGet(context.Background(), "myblobs", fakeDigest)
	var notFound *DigestNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Len(t, sender.recorded(), 2)
}

func TestBlobPutReplaysSeekablePayload(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(n int, server string, req *transport.Request) (*transport.Response, error) {
		reader, err := req.GetBody()
		require.NoError(t, err)
		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data), "attempt %d", n)
		if n == 0 {
			return nil, connectionRefused(server)
		}
		return &transport.Response{StatusCode: 201, Reason: "Created", Header: http.Header{}}, nil
	}
	c := newTestClient(t, []string{"s1:4200", "s2:4200"}, sender)

	created, err := c.BlobPut(context.Background(), "myblobs", fakeDigest, bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, sender.recorded(), 2)
}

func TestBlobPutNonReplayablePayloadCannotFailOver(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(n int, server string, req *transport.Request) (*transport.Response, error) {
		reader, err := req.GetBody()
		if err != nil {
			// The HTTP layer reports a broken body as a request error.
			return nil, fmt.Errorf("request body: %w", err)
		}
		if _, err := io.ReadAll(reader); err != nil {
			return nil, fmt.Errorf("request body: %w", err)
		}
		return nil, connectionRefused(server)
	}
	c := newTestClient(t, []string{"s1:4200", "s2:4200"}, sender)

	var buf bytes.Buffer
	buf.WriteString("one-shot")
	_, err := c.BlobPut(context.Background(), "myblobs", fakeDigest, &buf)
	require.True(t, IsProgrammingError(err))
	assert.Contains(t, err.Error(), "not replayable")
}

func TestBlobContainerPutComputesDigest(t *testing.T) {
	sender := &fakeSender{}
	var received []byte
	sender.handler = func(_ int, _ string, req *transport.Request) (*transport.Response, error) {
		reader, err := req.GetBody()
		require.NoError(t, err)
		received, err = io.ReadAll(reader)
		require.NoError(t, err)
		return &transport.Response{StatusCode: 201, Reason: "Created", Header: http.Header{}}, nil
	}
	c := newTestClient(t, []string{"s1:4200"}, sender)

	container := c.Blob("myblobs")
	digest, created, err := container.Put(context.Background(), bytes.NewReader([]byte("Hello World")))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "0a4d55a8d778e5022fab701977c5d840bbc486d0", digest)
	assert.Equal(t, "Hello World", string(received))
	assert.Equal(t, "/_blobs/myblobs/"+digest, sender.recorded()[0].path)
}

func TestBlobContainerDelegates(t *testing.T) {
	sender := statusSender(200, "OK")
	c := newTestClient(t, []string{"s1:4200"}, sender)

	container := c.Blob("images")
	assert.Equal(t, "images", container.Table())

	exists, err := container.Exists(context.Background(), fakeDigest)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "/_blobs/images/"+fakeDigest, sender.recorded()[0].path)
}
