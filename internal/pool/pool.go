package pool

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/crate/crate-go/internal/metrics"
)

// ExhaustedError is returned when every configured server has been
// deactivated and no candidate remains for selection.
type ExhaustedError struct {
	// LastFailure is the failure description of the most recently
	// deactivated server.
	LastFailure string
}

func (e *ExhaustedError) Error() string {
	return "No more Servers available, exception from last server: " + e.LastFailure
}

// failure records why and when a server left the active rotation.
type failure struct {
	reason string
	since  time.Time
}

// Pool partitions a fixed server set into active and inactive members and
// hands out active servers in round-robin order. The set itself never
// changes after construction; only the partition moves. At every instant
// the active sequence and the inactive map together hold exactly the
// configured servers, each on one side only.
//
// Safe for concurrent use. Mutations and snapshots run under one mutex;
// callers perform network I/O outside of it.
type Pool struct {
	mu          sync.Mutex
	rr          roundRobin
	servers     []string
	active      []string
	inactive    map[string]failure
	lastFailure string
	logger      zerolog.Logger
}

// New builds a pool with every server active, in the given order.
func New(servers []string, logger zerolog.Logger) *Pool {
	p := &Pool{
		servers:  make([]string, len(servers)),
		active:   make([]string, len(servers)),
		inactive: make(map[string]failure, len(servers)),
		logger:   logger.With().Str("component", "pool").Logger(),
	}
	copy(p.servers, servers)
	copy(p.active, servers)
	metrics.SetPoolSize(len(p.active), 0)
	return p
}

// Pick returns the next active server in rotation order. When no server is
// active it returns an ExhaustedError carrying the last recorded failure.
func (p *Pool) Pick() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	server, err := p.rr.next(p.active)
	if err != nil {
		return "", &ExhaustedError{LastFailure: p.lastFailure}
	}
	return server, nil
}

// Deactivate removes server from the rotation and records reason as its
// failure description. Deactivating an already-inactive server only
// refreshes its reason; unknown servers are ignored. The return value is
// the number of servers still active, so a caller that just emptied the
// pool can report exhaustion with its own failure in hand.
func (p *Pool) Deactivate(server, reason string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastFailure = reason
	if _, ok := p.inactive[server]; ok {
		p.inactive[server] = failure{reason: reason, since: time.Now()}
		return len(p.active)
	}

	idx := -1
	for i, s := range p.active {
		if s == server {
			idx = i
			break
		}
	}
	if idx < 0 {
		return len(p.active)
	}

	p.active = append(p.active[:idx], p.active[idx+1:]...)
	p.inactive[server] = failure{reason: reason, since: time.Now()}
	metrics.RecordServerDeactivated(server)
	metrics.SetPoolSize(len(p.active), len(p.inactive))
	p.logger.Warn().
		Str("server", server).
		Str("reason", reason).
		Msg("removed server from active pool")
	return len(p.active)
}

// Reactivate restores an inactive server to the tail of the rotation and
// drops its failure record. It reports whether the server was restored;
// servers that are already active or unknown are left untouched.
func (p *Pool) Reactivate(server string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inactive[server]; !ok {
		return false
	}

	delete(p.inactive, server)
	p.active = append(p.active, server)
	metrics.RecordServerReactivated(server)
	metrics.SetPoolSize(len(p.active), len(p.inactive))
	p.logger.Warn().
		Str("server", server).
		Msg("restored server into active pool")
	return true
}

// Snapshot returns independent copies of the active rotation and of the
// inactive servers with their failure descriptions, taken under the lock
// so the two sides always form a consistent partition.
func (p *Pool) Snapshot() (active []string, inactive map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	active = make([]string, len(p.active))
	copy(active, p.active)
	inactive = make(map[string]string, len(p.inactive))
	for server, f := range p.inactive {
		inactive[server] = f.reason
	}
	return active, inactive
}

// Servers returns the full configured server set in configuration order,
// regardless of the current partition.
func (p *Pool) Servers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	servers := make([]string, len(p.servers))
	copy(servers, p.servers)
	return servers
}

// FailureSince reports when server was deactivated. ok is false for
// servers that are currently active or not part of the pool.
func (p *Pool) FailureSince(server string) (since time.Time, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.inactive[server]
	return f.since, ok
}
