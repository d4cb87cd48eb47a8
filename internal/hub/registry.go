package hub

import (
	"errors"
	"sort"
	"sync"

	"github.com/roach88/famshelf/internal/protocol"
)

// ErrAlreadyJoined is returned when a connection joins a second time.
// Switching groups requires a new connection.
var ErrAlreadyJoined = errors.New("connection already joined a group")

// entry is one registered connection.
type entry struct {
	conn       Conn
	groupID    string
	memberID   string
	memberName string
	state      State
	ordinal    uint64
}

// target is an immutable copy of an entry taken for fan-out.
type target struct {
	conn  Conn
	state State
}

// departure describes a removed connection.
type departure struct {
	groupID    string
	memberID   string
	memberName string
	state      State
	remaining  int
}

// Registry maps groups to their live connections and connections to their
// member identity.
//
// Thread-safety: all methods are safe for concurrent use. Fan-out works on
// copies returned by targets, so removals during a broadcast are harmless.
type Registry struct {
	mu      sync.RWMutex
	groups  map[string]map[string]*entry
	conns   map[string]*entry
	ordinal uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]map[string]*entry),
		conns:  make(map[string]*entry),
	}
}

// add registers conn under groupID in StateConnecting.
func (r *Registry) add(conn Conn, groupID, memberID, memberName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID()]; exists {
		return ErrAlreadyJoined
	}

	r.ordinal++
	e := &entry{
		conn:       conn,
		groupID:    groupID,
		memberID:   memberID,
		memberName: memberName,
		state:      StateConnecting,
		ordinal:    r.ordinal,
	}

	set, ok := r.groups[groupID]
	if !ok {
		set = make(map[string]*entry)
		r.groups[groupID] = set
	}
	set[conn.ID()] = e
	r.conns[conn.ID()] = e
	return nil
}

// advance moves connID from one state to the next. It reports false if
// the connection is gone or not in the expected state.
func (r *Registry) advance(connID string, from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok || e.state != from {
		return false
	}
	e.state = to
	return true
}

// remove unregisters connID. An emptied group is dropped from the map.
func (r *Registry) remove(connID string) (departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return departure{}, false
	}
	delete(r.conns, connID)

	set := r.groups[e.groupID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.groups, e.groupID)
	}

	d := departure{
		groupID:    e.groupID,
		memberID:   e.memberID,
		memberName: e.memberName,
		state:      e.state,
		remaining:  len(set),
	}
	e.state = StateLeft
	return d, true
}

// removeAll empties the registry and returns every connection it held.
func (r *Registry) removeAll() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Conn, 0, len(r.conns))
	for _, e := range r.sorted(r.conns) {
		e.state = StateLeft
		out = append(out, e.conn)
	}
	r.groups = make(map[string]map[string]*entry)
	r.conns = make(map[string]*entry)
	return out
}

// targets copies groupID's connections in join order.
func (r *Registry) targets(groupID string) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.sorted(r.groups[groupID])
	out := make([]target, len(entries))
	for i, e := range entries {
		out[i] = target{conn: e.conn, state: e.state}
	}
	return out
}

// Lookup returns the group and state of a registered connection.
func (r *Registry) Lookup(connID string) (groupID string, state State, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return "", StateLeft, false
	}
	return e.groupID, e.state, true
}

// Members lists groupID's live connections in join order.
func (r *Registry) Members(groupID string) []protocol.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.sorted(r.groups[groupID])
	out := make([]protocol.Member, len(entries))
	for i, e := range entries {
		out[i] = protocol.Member{MemberID: e.memberID, MemberName: e.memberName}
	}
	return out
}

// Count returns the number of live connections in groupID.
func (r *Registry) Count(groupID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[groupID])
}

// Groups returns the number of groups with at least one connection.
func (r *Registry) Groups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Connections returns the total number of registered connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// sorted orders entries by join ordinal. Caller holds r.mu.
func (r *Registry) sorted(set map[string]*entry) []*entry {
	out := make([]*entry, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ordinal < out[j].ordinal })
	return out
}
