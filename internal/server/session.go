package server

import (
	"context"
	"strings"

	"github.com/roach88/famshelf/internal/hub"
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/mutation"
	"github.com/roach88/famshelf/internal/protocol"
)

// session interprets one connection's client messages. It is driven by
// the connection's read loop only, so it needs no locking.
type session struct {
	srv  *Server
	conn *wsConn

	joined   bool
	groupID  string
	memberID string
}

func newSession(srv *Server, conn *wsConn) *session {
	return &session{srv: srv, conn: conn}
}

func (s *session) handle(ctx context.Context, frame []byte) {
	in, err := s.conn.codec.Decode(frame)
	if err != nil {
		s.fail(ctx, "", badRequest("", err.Error()))
		return
	}

	switch in.Type {
	case protocol.TypeJoin:
		s.join(ctx, in)
	case protocol.TypeMutate:
		if s.requireJoined(ctx, in.RequestID) {
			s.mutate(ctx, in)
		}
	case protocol.TypeListMembers:
		if s.requireJoined(ctx, in.RequestID) {
			s.reply(ctx, protocol.TypeMembers, in.RequestID, s.srv.members(s.groupID))
		}
	default:
		s.fail(ctx, in.RequestID, badRequest("type", "unknown message type "+string(in.Type)))
	}
}

func (s *session) join(ctx context.Context, in protocol.Incoming) {
	if s.joined {
		_, body := classify(hub.ErrAlreadyJoined)
		s.fail(ctx, in.RequestID, body)
		return
	}

	var req protocol.Join
	if err := in.Decode(&req); err != nil {
		s.fail(ctx, in.RequestID, badRequest("payload", err.Error()))
		return
	}
	if strings.TrimSpace(req.MemberID) == "" {
		s.fail(ctx, in.RequestID, badRequest("memberId", "memberId is required"))
		return
	}

	code, err := s.srv.resolveGroup(ctx, req.GroupID)
	if err != nil {
		s.failErr(ctx, in.RequestID, err)
		return
	}

	err = s.srv.hub.Join(ctx, s.conn, hub.JoinRequest{
		GroupID:    code,
		MemberID:   req.MemberID,
		MemberName: req.MemberName,
		RequestID:  in.RequestID,
	})
	if err != nil {
		s.srv.logger.Debug("join failed", "conn", s.conn.id, "group", code, "error", err)
		s.failErr(ctx, in.RequestID, err)
		return
	}

	s.joined = true
	s.groupID = code
	s.memberID = strings.TrimSpace(req.MemberID)
}

// requireJoined replies NOT_JOINED unless the connection is registered.
func (s *session) requireJoined(ctx context.Context, requestID string) bool {
	if s.joined {
		if _, _, ok := s.srv.hub.Registry().Lookup(s.conn.id); ok {
			return true
		}
	}
	s.fail(ctx, requestID, protocol.Error{Code: protocol.ErrCodeNotJoined, Message: "join a group first"})
	return false
}

func (s *session) mutate(ctx context.Context, in protocol.Incoming) {
	var m protocol.Mutate
	if err := in.Decode(&m); err != nil {
		s.fail(ctx, in.RequestID, badRequest("payload", err.Error()))
		return
	}
	origin := mutation.Origin{MemberID: s.memberID, ConnID: s.conn.id}
	h := s.srv.handler

	switch m.Op {
	case protocol.OpAdd:
		if m.Item == nil {
			s.fail(ctx, in.RequestID, badRequest("item", "item is required"))
			return
		}
		var (
			res mutation.AddResult
			err error
		)
		if m.Resolution != "" {
			resolution, perr := inventory.ParseResolution(m.Resolution)
			if perr != nil {
				s.failErr(ctx, in.RequestID, perr)
				return
			}
			res, err = h.ResolveDuplicate(ctx, s.groupID, m.ExistingID, *m.Item, resolution, origin)
		} else {
			res, err = h.AddItem(ctx, s.groupID, *m.Item, origin)
		}
		if err != nil {
			s.failErr(ctx, in.RequestID, err)
			return
		}
		switch {
		case res.Duplicate != nil:
			s.reply(ctx, protocol.TypeDuplicateFound, in.RequestID, protocol.DuplicateFound{
				Existing:  res.Duplicate.Existing,
				Candidate: res.Duplicate.Candidate,
			})
		case res.Skipped:
			s.reply(ctx, protocol.TypeMutationResult, in.RequestID, protocol.MutationResult{Op: protocol.OpAdd, Skipped: true})
		default:
			s.reply(ctx, protocol.TypeMutationResult, in.RequestID, protocol.MutationResult{
				Op: protocol.OpAdd, Item: res.Item, ItemID: res.Item.ID,
			})
		}

	case protocol.OpUpdate:
		if m.ItemID == "" || m.Patch == nil {
			s.fail(ctx, in.RequestID, badRequest("patch", "itemId and patch are required"))
			return
		}
		item, err := h.UpdateItem(ctx, s.groupID, m.ItemID, *m.Patch, origin)
		if err != nil {
			s.failErr(ctx, in.RequestID, err)
			return
		}
		s.reply(ctx, protocol.TypeMutationResult, in.RequestID, protocol.MutationResult{
			Op: protocol.OpUpdate, Item: &item, ItemID: item.ID,
		})

	case protocol.OpDelete:
		if m.ItemID == "" {
			s.fail(ctx, in.RequestID, badRequest("itemId", "itemId is required"))
			return
		}
		if err := h.DeleteItem(ctx, s.groupID, m.ItemID, origin); err != nil {
			s.failErr(ctx, in.RequestID, err)
			return
		}
		s.reply(ctx, protocol.TypeMutationResult, in.RequestID, protocol.MutationResult{
			Op: protocol.OpDelete, ItemID: m.ItemID,
		})

	default:
		s.fail(ctx, in.RequestID, badRequest("op", "op must be ADD, UPDATE or DELETE"))
	}
}

func (s *session) failErr(ctx context.Context, requestID string, err error) {
	status, body := classify(err)
	if status >= 500 {
		s.srv.logger.Error("request failed", "conn", s.conn.id, "group", s.groupID, "error", err)
	}
	s.fail(ctx, requestID, body)
}

func (s *session) fail(ctx context.Context, requestID string, body protocol.Error) {
	s.reply(ctx, protocol.TypeError, requestID, body)
}

// reply sends a direct message. A failed reply is an implicit leave; an
// unregistered connection is closed outright.
func (s *session) reply(ctx context.Context, typ protocol.Type, requestID string, payload any) {
	if err := s.srv.hub.Reply(ctx, s.conn, typ, requestID, payload); err != nil {
		s.conn.Close()
	}
}
