package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crate/crate-go/internal/transport"
)

const infoResult = `{"name":"crate1","cluster_name":"test-cluster","version":{"number":"5.10.1"}}`

func TestNewDefaultsToLocalServer(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, []string{"http://127.0.0.1:4200"}, c.Servers())
}

func TestNewRejectsInvalidServer(t *testing.T) {
	_, err := New(&Config{Servers: []string{"ftp://files.example.com"}})
	require.Error(t, err)
}

func TestServerInfos(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, _ string, req *transport.Request) (*transport.Response, error) {
		require.Equal(t, "GET", req.Method)
		require.Equal(t, "/", req.Path)
		return jsonResponse(200, "OK", infoResult), nil
	}
	c := newTestClient(t, []string{"s1:4200"}, sender)

	info, err := c.ServerInfos(context.Background(), "http://s1:4200")
	require.NoError(t, err)
	assert.Equal(t, "http://s1:4200", info.Server)
	assert.Equal(t, "crate1", info.Name)
	assert.Equal(t, "test-cluster", info.ClusterName)
	assert.Equal(t, "5.10.1", info.Version)
}

func TestServerInfosUnavailable(t *testing.T) {
	sender := statusSender(503, "Service Unavailable")
	c := newTestClient(t, []string{"s1:4200", "s2:4200"}, sender)

	_, err := c.ServerInfos(context.Background(), "http://s1:4200")
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "503 Server Error: Service Unavailable", connErr.Message)

	// A pinned probe never drains the rotation.
	assert.Len(t, c.ActiveServers(), 2)
}

func TestServerInfosUnauthorized(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, _ string, _ *transport.Request) (*transport.Response, error) {
		return textResponse(401, "Unauthorized", "<html>login</html>"), nil
	}
	c := newTestClient(t, []string{"s1:4200"}, sender)

	_, err := c.ServerInfos(context.Background(), "http://s1:4200")
	var progErr *ProgrammingError
	require.ErrorAs(t, err, &progErr)
	assert.Equal(t, "401 Client Error: Unauthorized", progErr.Message)
}

func TestServerInfosUnreachable(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, server string, _ *transport.Request) (*transport.Response, error) {
		return nil, connectionRefused(server)
	}
	c := newTestClient(t, []string{"s1:4200"}, sender)

	_, err := c.ServerInfos(context.Background(), "http://s1:4200")
	require.True(t, IsConnectionError(err))
	assert.Contains(t, err.Error(), "Server not available, exception:")
}

func TestServerInfosRestoresBenchedServer(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, _ string, _ *transport.Request) (*transport.Response, error) {
		return jsonResponse(200, "OK", infoResult), nil
	}
	c := newTestClient(t, []string{"s1:4200", "s2:4200"}, sender)

	c.pool.Deactivate("http://s1:4200", "read timeout")
	require.Equal(t, []string{"http://s2:4200"}, c.ActiveServers())

	_, err := c.ServerInfos(context.Background(), "http://s1:4200")
	require.NoError(t, err)

	// Restored servers rejoin at the tail of the rotation.
	assert.Equal(t, []string{"http://s2:4200", "http://s1:4200"}, c.ActiveServers())
	assert.Empty(t, c.InactiveServers())
}

func TestClusterHealthReportsEveryServer(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, server string, _ *transport.Request) (*transport.Response, error) {
		if server == "http://s2:4200" {
			return nil, connectionRefused(server)
		}
		return jsonResponse(200, "OK", infoResult), nil
	}
	c := newTestClient(t, []string{"s1:4200", "s2:4200"}, sender, func(cfg *Config) {
		cfg.RetryInterval = 0
	})

	statuses := c.ClusterHealth(context.Background())
	require.Len(t, statuses, 2)

	assert.Equal(t, "http://s1:4200", statuses[0].Server)
	assert.True(t, statuses[0].Active)
	require.NotNil(t, statuses[0].Info)
	assert.Equal(t, "5.10.1", statuses[0].Info.Version)

	assert.Equal(t, "http://s2:4200", statuses[1].Server)
	require.Error(t, statuses[1].Err)
	assert.True(t, IsConnectionError(statuses[1].Err))
}

func TestClusterHealthRestoresRecoveredServer(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, _ string, _ *transport.Request) (*transport.Response, error) {
		return jsonResponse(200, "OK", infoResult), nil
	}
	c := newTestClient(t, []string{"s1:4200", "s2:4200"}, sender, func(cfg *Config) {
		cfg.RetryInterval = 0
	})

	c.pool.Deactivate("http://s1:4200", "read timeout")
	statuses := c.ClusterHealth(context.Background())
	require.Len(t, statuses, 2)

	for _, status := range statuses {
		assert.NoError(t, status.Err)
	}
	assert.Len(t, c.ActiveServers(), 2)
	assert.Empty(t, c.InactiveServers())
}

func TestClusterHealthHonorsRetryInterval(t *testing.T) {
	sender := &fakeSender{}
	sender.handler = func(_ int, _ string, _ *transport.Request) (*transport.Response, error) {
		return jsonResponse(200, "OK", infoResult), nil
	}
	c := newTestClient(t, []string{"s1:4200", "s2:4200"}, sender, func(cfg *Config) {
		cfg.RetryInterval = time.Hour
	})

	c.pool.Deactivate("http://s1:4200", "read timeout")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	statuses := c.ClusterHealth(ctx)
	require.Len(t, statuses, 2)

	// The benched server is still resting, so the probe gave up waiting
	// without contacting it.
	require.Error(t, statuses[0].Err)
	assert.ErrorIs(t, statuses[0].Err, context.DeadlineExceeded)
	for _, call := range sender.recorded() {
		assert.NotEqual(t, "http://s1:4200", call.server)
	}
	assert.Len(t, c.InactiveServers(), 1)
}

func TestConcurrentCallsKeepPartitionConsistent(t *testing.T) {
	servers := []string{"s1:4200", "s2:4200", "s3:4200"}
	sender := &fakeSender{}
	sender.handler = func(n int, server string, req *transport.Request) (*transport.Response, error) {
		switch {
		case req.Path == "/":
			return jsonResponse(200, "OK", infoResult), nil
		case n%10 == 3:
			return nil, connectionRefused(server)
		case n%17 == 5:
			return textResponse(503, "Service Unavailable", ""), nil
		default:
			return jsonResponse(200, "OK", okResult), nil
		}
	}
	c := newTestClient(t, servers, sender, func(cfg *Config) {
		cfg.RetryInterval = 0
	})

	var wg sync.WaitGroup
	unexpected := make(chan error, 5)
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if i%20 == 19 {
					c.ClusterHealth(context.Background())
					continue
				}
				_, err := c.SQL(context.Background(), "select 1")
				if err != nil && !IsConnectionError(err) {
					unexpected <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(unexpected)
	for err := range unexpected {
		t.Fatalf("unexpected error class: %v", err)
	}

	// Whatever happened, every server sits on exactly one side.
	active, inactive := c.pool.Snapshot()
	all := append([]string(nil), active...)
	for server := range inactive {
		all = append(all, server)
	}
	sort.Strings(all)
	assert.Equal(t, []string{"http://s1:4200", "http://s2:4200", "http://s3:4200"}, all)
}

func TestKeepAliveReusesConnection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"cols":["remote"],"rows":[["%s"]],"rowcount":1,"duration":0.1}`, r.RemoteAddr)
	}))
	defer ts.Close()

	c, err := New(&Config{Servers: []string{ts.URL}})
	require.NoError(t, err)
	defer c.Close()

	var remotes []string
	for i := 0; i < 5; i++ {
		result, err := c.SQL(context.Background(), "select remote")
		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		remotes = append(remotes, result.Rows[0][0].(string))
	}

	// The same source port on every request means the connection was reused.
	for _, remote := range remotes[1:] {
		assert.Equal(t, remotes[0], remote)
	}
}

func TestRedirectAcrossRealServers(t *testing.T) {
	var targetHits atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		targetHits.Add(1)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "blob bytes")
	}))
	defer target.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", target.URL+r.URL.Path)
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer origin.Close()

	c, err := New(&Config{Servers: []string{origin.URL}})
	require.NoError(t, err)
	defer c.Close()

	body, err := c.BlobGet(context.Background(), "myblobs", fakeDigest)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "blob bytes", string(data))
	assert.Equal(t, int32(1), targetHits.Load())
}
