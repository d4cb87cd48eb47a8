package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/roach88/famshelf/internal/dispatch"
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/protocol"
)

// ErrClosed is returned by Join after Close.
var ErrClosed = errors.New("hub closed")

// ErrInvalidJoin is returned when a join names no group or no member.
var ErrInvalidJoin = errors.New("join requires a group and a member id")

// SnapshotSource reads a group's current items, ordered by name.
type SnapshotSource interface {
	ListItems(ctx context.Context, groupID string) ([]inventory.Item, error)
}

// Lanes runs work for one group at a time.
type Lanes interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) error
}

// Hub is the process's live-connection state, constructed at server start
// and torn down with Close at server stop.
type Hub struct {
	registry *Registry
	source   SnapshotSource
	lanes    Lanes
	logger   *slog.Logger
	closed   atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a Hub that reads snapshots from source and serializes group
// work through lanes.
func New(source SnapshotSource, lanes Lanes, opts ...Option) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		source:   source,
		lanes:    lanes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// JoinRequest identifies who is joining which group.
type JoinRequest struct {
	GroupID    string
	MemberID   string
	MemberName string

	// RequestID is echoed on the FULL_INVENTORY reply.
	RequestID string
}

// Join registers conn under the request's group, sends it the group's full
// inventory and then tells the rest of the group a member joined.
//
// If the snapshot cannot be read the connection is unregistered and the
// store error returned; the transport stays open so the client may retry.
// If the snapshot cannot be sent the connection is dropped.
func (h *Hub) Join(ctx context.Context, conn Conn, req JoinRequest) error {
	if h.closed.Load() {
		return ErrClosed
	}
	req.GroupID = strings.TrimSpace(req.GroupID)
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.MemberName = strings.TrimSpace(req.MemberName)
	if req.GroupID == "" || req.MemberID == "" {
		return ErrInvalidJoin
	}
	if req.MemberName == "" {
		req.MemberName = req.MemberID
	}

	err := h.lanes.Do(ctx, req.GroupID, func(ctx context.Context) error {
		return h.join(ctx, conn, req)
	})
	if errors.Is(err, dispatch.ErrStopped) {
		return ErrClosed
	}
	return err
}

func (h *Hub) join(ctx context.Context, conn Conn, req JoinRequest) error {
	if h.closed.Load() {
		return ErrClosed
	}
	if err := h.registry.add(conn, req.GroupID, req.MemberID, req.MemberName); err != nil {
		return err
	}
	log := h.logger.With("group", req.GroupID, "conn", conn.ID(), "member", req.MemberID)

	if err := h.sendSnapshot(ctx, conn, req.GroupID, req.RequestID); err != nil {
		if inventory.IsStoreError(err) {
			h.registry.remove(conn.ID())
			log.Warn("snapshot read failed", "error", err)
			return err
		}
		h.drop(conn, err)
		return fmt.Errorf("send snapshot: %w", err)
	}
	if !h.registry.advance(conn.ID(), StateConnecting, StateJoined) {
		return fmt.Errorf("connection %s left during join", conn.ID())
	}

	notice := protocol.MemberNotice{
		MemberID:   req.MemberID,
		MemberName: req.MemberName,
		Count:      h.registry.Count(req.GroupID),
	}
	h.publish(req.GroupID, protocol.TypeMemberJoined, notice, conn.ID())
	if !h.registry.advance(conn.ID(), StateJoined, StateActive) {
		// Left while the group was being told; balance the notice.
		notice.Count = h.registry.Count(req.GroupID)
		h.publish(req.GroupID, protocol.TypeMemberLeft, notice, "")
		return fmt.Errorf("connection %s left during join", conn.ID())
	}

	log.Info("member joined", "count", notice.Count)
	return nil
}

// Leave unregisters conn, closes it and, if the rest of the group had been
// told it joined, broadcasts MEMBER_LEFT. Leaving twice is a no-op.
//
// Leave waits for the group's lane; it must not be called from a lane task.
func (h *Hub) Leave(ctx context.Context, conn Conn) {
	d, ok := h.drop(conn, nil)
	if !ok || d.state != StateActive {
		return
	}
	err := h.lanes.Do(ctx, d.groupID, func(context.Context) error {
		h.publish(d.groupID, protocol.TypeMemberLeft, d.notice(), "")
		return nil
	})
	if err != nil && !errors.Is(err, dispatch.ErrStopped) {
		h.logger.Warn("member left notice not delivered", "group", d.groupID, "error", err)
	}
}

// drop unregisters and closes conn. cause is nil for a voluntary leave.
func (h *Hub) drop(conn Conn, cause error) (departure, bool) {
	d, ok := h.registry.remove(conn.ID())
	if !ok {
		return departure{}, false
	}
	if err := conn.Close(); err != nil {
		h.logger.Debug("close connection", "conn", conn.ID(), "error", err)
	}

	attrs := []any{"group", d.groupID, "conn", conn.ID(), "member", d.memberID, "count", d.remaining}
	if cause != nil {
		h.logger.Info("pruned connection", append(attrs, "error", cause)...)
	} else {
		h.logger.Info("member left", attrs...)
	}
	return d, true
}

// Reply sends a direct message to one connection. A failed send is an
// implicit leave. Like Leave, it must not be called from a lane task.
func (h *Hub) Reply(ctx context.Context, conn Conn, typ protocol.Type, requestID string, payload any) error {
	frame, err := conn.Codec().Encode(typ, requestID, payload)
	if err != nil {
		return err
	}
	if err := conn.Send(frame); err != nil {
		h.logger.Debug("direct reply failed", "conn", conn.ID(), "type", typ, "error", err)
		h.Leave(ctx, conn)
		return err
	}
	return nil
}

// Members lists the members present in groupID, in join order.
func (h *Hub) Members(groupID string) []protocol.Member {
	return h.registry.Members(groupID)
}

// Count returns how many connections are present in groupID.
func (h *Hub) Count(groupID string) int {
	return h.registry.Count(groupID)
}

// GroupLive reports whether any connection is registered for groupID.
func (h *Hub) GroupLive(groupID string) bool {
	return h.registry.Count(groupID) > 0
}

// Close rejects new joins and closes every live connection without
// broadcasting departures. Safe to call more than once.
func (h *Hub) Close() {
	if h.closed.Swap(true) {
		return
	}
	conns := h.registry.removeAll()
	for _, c := range conns {
		_ = c.Close()
	}
	h.logger.Info("hub closed", "connections", len(conns))
}

func (d departure) notice() protocol.MemberNotice {
	return protocol.MemberNotice{
		MemberID:   d.memberID,
		MemberName: d.memberName,
		Count:      d.remaining,
	}
}
