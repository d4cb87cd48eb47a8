package hub

import (
	"fmt"

	"github.com/roach88/famshelf/internal/protocol"
)

// Conn is a live transport handle. Only the registry holds references to
// registered connections.
type Conn interface {
	// ID uniquely identifies the connection for its lifetime.
	ID() string

	// Codec is the encoding the peer negotiated.
	Codec() protocol.Codec

	// Send queues one encoded frame. It must not block; a full buffer or
	// closed peer is reported as an error.
	Send(frame []byte) error

	// Close tears down the transport. Safe to call more than once.
	Close() error
}

// State is a connection's position in its lifecycle.
type State int

const (
	// StateConnecting is a registered connection whose snapshot has not
	// been sent yet. It receives no broadcasts.
	StateConnecting State = iota

	// StateJoined means the snapshot was delivered.
	StateJoined

	// StateActive means the group has been told the member joined.
	StateActive

	// StateLeft is terminal.
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateJoined:
		return "JOINED"
	case StateActive:
		return "ACTIVE"
	case StateLeft:
		return "LEFT"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// receivesEvents reports whether broadcasts are delivered in this state.
func (s State) receivesEvents() bool {
	return s == StateJoined || s == StateActive
}
