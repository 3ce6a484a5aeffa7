package pool

import "errors"

// ErrNoActiveServers is returned when a selection is attempted against an
// empty active sequence.
var ErrNoActiveServers = errors.New("no active servers")

// roundRobin selects members of a sequence in rotation order. The cursor
// only ever advances; selection takes it modulo the current length, so the
// sequence may grow or shrink between calls without the cursor going out of
// range. Not safe for concurrent use on its own: the pool serializes access
// under its lock.
type roundRobin struct {
	cursor uint64
}

// next returns the member at the cursor position and advances the cursor.
func (r *roundRobin) next(servers []string) (string, error) {
	if len(servers) == 0 {
		return "", ErrNoActiveServers
	}
	idx := r.cursor % uint64(len(servers))
	r.cursor++
	return servers[idx], nil
}
