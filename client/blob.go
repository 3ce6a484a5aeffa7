package client

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/crate/crate-go/internal/transport"
)

func blobPath(table, digest string) string {
	return "/_blobs/" + table + "/" + digest
}

// BlobPut uploads data under its SHA-1 digest. It reports true when the
// blob was created and false when it already existed. Pass an
// io.ReadSeeker when possible: a seekable payload can be replayed against
// another server during failover, a plain reader cannot.
func (c *Client) BlobPut(ctx context.Context, table, digest string, data io.Reader) (bool, error) {
	req := &transport.Request{
		Method:  http.MethodPut,
		Path:    blobPath(table, digest),
		GetBody: replayableBody(data),
	}
	resp, err := c.execute(ctx, req, callOptions{followRedirect: true})
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusCreated:
		return true, nil
	case http.StatusConflict:
		return false, nil
	case http.StatusBadRequest, http.StatusNotFound:
		return false, &BlobLocationNotFoundError{Table: table}
	}
	return false, raiseForStatus(resp)
}

// BlobGet streams the blob stored under digest. The caller owns the
// returned body and must close it.
func (c *Client) BlobGet(ctx context.Context, table, digest string) (io.ReadCloser, error) {
	req := &transport.Request{
		Method: http.MethodGet,
		Path:   blobPath(table, digest),
		Stream: true,
	}
	resp, err := c.execute(ctx, req, callOptions{followRedirect: true})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		discardBody(resp)
		return nil, &DigestNotFoundError{Table: table, Digest: digest}
	}
	if err := raiseForStatus(resp); err != nil {
		discardBody(resp)
		return nil, err
	}
	if resp.RawBody != nil {
		return resp.RawBody, nil
	}
	return io.NopCloser(bytes.NewReader(resp.Body)), nil
}

// BlobExists reports whether a blob is stored under digest.
func (c *Client) BlobExists(ctx context.Context, table, digest string) (bool, error) {
	req := &transport.Request{
		Method: http.MethodHead,
		Path:   blobPath(table, digest),
	}
	resp, err := c.execute(ctx, req, callOptions{followRedirect: true})
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, raiseForStatus(resp)
}

// BlobDelete removes the blob stored under digest. It reports true when
// the blob existed and false when there was nothing to delete.
func (c *Client) BlobDelete(ctx context.Context, table, digest string) (bool, error) {
	req := &transport.Request{
		Method: http.MethodDelete,
		Path:   blobPath(table, digest),
	}
	resp, err := c.execute(ctx, req, callOptions{followRedirect: true})
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, raiseForStatus(resp)
}

// replayableBody wraps an upload payload so each dispatch attempt gets a
// fresh reader. Seekable payloads rewind; anything else is handed out once
// and refuses a replay, which surfaces as a request error instead of
// silently uploading a truncated body.
func replayableBody(data io.Reader) func() (io.Reader, error) {
	if data == nil {
		return nil
	}
	if seeker, ok := data.(io.ReadSeeker); ok {
		return func() (io.Reader, error) {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
			return seeker, nil
		}
	}
	used := false
	return func() (io.Reader, error) {
		if used {
			return nil, errors.New("blob payload is not replayable, provide an io.ReadSeeker to allow failover")
		}
		used = true
		return data, nil
	}
}

// BlobContainer wraps the blob operations of one table and computes
// digests on behalf of the caller.
type BlobContainer struct {
	table  string
	client *Client
}

// Blob returns a container view over the given blob table.
func (c *Client) Blob(table string) *BlobContainer {
	return &BlobContainer{table: table, client: c}
}

func (b *BlobContainer) Table() string {
	return b.table
}

// Put uploads data, computing its SHA-1 digest first. The digest is
// returned whether or not the body had to be uploaded.
func (b *BlobContainer) Put(ctx context.Context, data io.ReadSeeker) (digest string, created bool, err error) {
	h := sha1.New()
	if _, err := io.Copy(h, data); err != nil {
		return "", false, err
	}
	digest = hex.EncodeToString(h.Sum(nil))
	if _, err := data.Seek(0, io.SeekStart); err != nil {
		return "", false, err
	}
	created, err = b.client.BlobPut(ctx, b.table, digest, data)
	return digest, created, err
}

func (b *BlobContainer) Get(ctx context.Context, digest string) (io.ReadCloser, error) {
	return b.client.BlobGet(ctx, b.table, digest)
}

func (b *BlobContainer) Exists(ctx context.Context, digest string) (bool, error) {
	return b.client.BlobExists(ctx, b.table, digest)
}

func (b *BlobContainer) Delete(ctx context.Context, digest string) (bool, error) {
	return b.client.BlobDelete(ctx, b.table, digest)
}
