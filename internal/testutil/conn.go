package testutil

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/famshelf/internal/protocol"
)

// ErrSendFailed is returned by a RecordingConn whose sends are set to fail.
var ErrSendFailed = errors.New("send failed")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("connection closed")

// RecordingConn is an in-memory live connection that records every frame
// sent to it. It satisfies the hub's connection interface.
type RecordingConn struct {
	id    string
	codec protocol.Codec

	mu        sync.Mutex
	frames    [][]byte
	failSends bool
	closed    bool
}

// NewRecordingConn creates a connection using codec; nil means JSON.
func NewRecordingConn(id string, codec protocol.Codec) *RecordingConn {
	if codec == nil {
		codec = protocol.JSON
	}
	return &RecordingConn{id: id, codec: codec}
}

func (c *RecordingConn) ID() string { return c.id }

func (c *RecordingConn) Codec() protocol.Codec { return c.codec }

// Send records frame, or fails when FailSends is set or the conn is closed.
func (c *RecordingConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.failSends {
		return ErrSendFailed
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

// Close marks the connection closed. Repeated calls are harmless.
func (c *RecordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// FailSends makes subsequent sends fail (or succeed again).
func (c *RecordingConn) FailSends(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSends = fail
}

// Closed reports whether Close has been called.
func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames returns a copy of the raw frames received so far.
func (c *RecordingConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

// Messages decodes every recorded frame.
func (c *RecordingConn) Messages() ([]protocol.Incoming, error) {
	frames := c.Frames()
	out := make([]protocol.Incoming, 0, len(frames))
	for i, f := range frames {
		in, err := c.codec.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// Types returns the message type of every recorded frame, in order.
// Frames that fail to decode are reported as "?".
func (c *RecordingConn) Types() []protocol.Type {
	frames := c.Frames()
	out := make([]protocol.Type, len(frames))
	for i, f := range frames {
		in, err := c.codec.Decode(f)
		if err != nil {
			out[i] = "?"
			continue
		}
		out[i] = in.Type
	}
	return out
}

// Last decodes the most recent frame of type typ into v and reports
// whether one was found.
func (c *RecordingConn) Last(typ protocol.Type, v any) (bool, error) {
	msgs, err := c.Messages()
	if err != nil {
		return false, err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == typ {
			return true, msgs[i].Decode(v)
		}
	}
	return false, nil
}

// Reset forgets every recorded frame.
func (c *RecordingConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
