package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/famshelf/internal/dispatch"
	"github.com/roach88/famshelf/internal/hub"
	"github.com/roach88/famshelf/internal/ids"
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/mutation"
	"github.com/roach88/famshelf/internal/protocol"
	"github.com/roach88/famshelf/internal/store"
	"github.com/roach88/famshelf/internal/testutil"
)

// Harness plays the role of every connection's session: it turns steps
// into hub and handler calls and sends the initiator its direct replies.
type Harness struct {
	group   string
	hub     *hub.Hub
	handler *mutation.Handler
	logger  *slog.Logger

	conns   map[string]*testutil.RecordingConn
	order   []string
	members map[string]string // conn name -> member id, once joined
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database, item ids
// item-1, item-2, ... and a frozen clock.
//
// Execution flow:
// 1. Create fresh in-memory database, lanes, hub and handler
// 2. Execute steps, checking each outcome against its expect clause
// 3. Collect every connection's frames and the group's final state
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lanes := dispatch.New(dispatch.WithLogger(logger))
	defer lanes.Stop()

	group := scenario.Group
	if group == "" {
		group = DefaultGroup
	}
	clock := testutil.NewFakeClock(testutil.Epoch)
	hb := hub.New(st, lanes, hub.WithLogger(logger))
	h := &Harness{
		group: group,
		hub:   hb,
		handler: mutation.New(st, hb, lanes,
			mutation.WithIDs(ids.NewSequentialGenerator("item")),
			mutation.WithSequence(ids.NewSequenceAt(0)),
			mutation.WithClock(clock.Now),
			mutation.WithLogger(logger),
		),
		logger:  logger,
		conns:   make(map[string]*testutil.RecordingConn),
		members: make(map[string]string),
	}

	ctx := context.Background()
	result := NewResult(scenario.Name, group)

	for i, step := range scenario.Steps {
		trace, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Do, err)
		}
		trace.Index = i + 1
		result.Steps = append(result.Steps, trace)

		want := step.Expect
		if want == "" {
			want = OutcomeOK
		}
		if trace.Outcome != want {
			result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %s", trace.Index, trace.Line, want, trace.Outcome))
		}
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) (StepTrace, error) {
	switch step.Do {
	case StepConnect:
		return h.connect(step)
	case StepJoin:
		return h.join(ctx, step)
	case StepAdd, StepResolve:
		return h.add(ctx, step)
	case StepUpdate:
		return h.update(ctx, step)
	case StepDelete:
		return h.delete(ctx, step)
	case StepDisconnect:
		conn, err := h.conn(step.Conn)
		if err != nil {
			return StepTrace{}, err
		}
		h.hub.Leave(ctx, conn)
		return StepTrace{Line: "disconnect " + step.Conn, Outcome: OutcomeOK}, nil
	case StepFailSends:
		conn, err := h.conn(step.Conn)
		if err != nil {
			return StepTrace{}, err
		}
		conn.FailSends(step.Fail)
		state := "off"
		if step.Fail {
			state = "on"
		}
		return StepTrace{Line: "fail_sends " + step.Conn + " " + state, Outcome: OutcomeOK}, nil
	default:
		return StepTrace{}, fmt.Errorf("unknown step %q", step.Do)
	}
}

func (h *Harness) connect(step Step) (StepTrace, error) {
	codec, err := protocol.Lookup(step.Encoding)
	if err != nil {
		return StepTrace{}, err
	}
	if _, ok := h.conns[step.Conn]; ok {
		return StepTrace{}, fmt.Errorf("conn %q already connected", step.Conn)
	}
	h.conns[step.Conn] = testutil.NewRecordingConn("conn-"+step.Conn, codec)
	h.order = append(h.order, step.Conn)

	line := "connect " + step.Conn
	if codec.Encoding() != protocol.EncodingJSON {
		line += " " + string(codec.Encoding())
	}
	return StepTrace{Line: line, Outcome: OutcomeOK}, nil
}

func (h *Harness) join(ctx context.Context, step Step) (StepTrace, error) {
	conn, err := h.conn(step.Conn)
	if err != nil {
		return StepTrace{}, err
	}
	trace := StepTrace{Line: fmt.Sprintf("join %s member=%s", step.Conn, step.Member)}

	if _, joined := h.members[step.Conn]; joined {
		trace.Outcome = h.fail(ctx, conn, hub.ErrAlreadyJoined)
		return trace, nil
	}
	err = h.hub.Join(ctx, conn, hub.JoinRequest{
		GroupID:    h.group,
		MemberID:   step.Member,
		MemberName: step.Name,
	})
	if err != nil {
		trace.Outcome = h.fail(ctx, conn, err)
		return trace, nil
	}
	h.members[step.Conn] = step.Member
	trace.Outcome = OutcomeOK
	return trace, nil
}

func (h *Harness) add(ctx context.Context, step Step) (StepTrace, error) {
	conn, origin, err := h.origin(step)
	if err != nil {
		return StepTrace{}, err
	}
	candidate := step.Item.Item()
	trace := StepTrace{Line: fmt.Sprintf("add %s %s", actor(step), describe(candidate))}
	if step.Do == StepResolve {
		trace.Line = fmt.Sprintf("resolve %s %s", actor(step), step.Resolution)
		if step.Existing != "" {
			trace.Line += " existing=" + step.Existing
		}
		trace.Line += " " + describe(candidate)
	}
	if !h.joined(conn) {
		trace.Outcome = h.notJoined(ctx, conn)
		return trace, nil
	}

	var res mutation.AddResult
	if step.Do == StepResolve {
		resolution, perr := inventory.ParseResolution(step.Resolution)
		if perr != nil {
			trace.Outcome = h.fail(ctx, conn, perr)
			return trace, nil
		}
		res, err = h.handler.ResolveDuplicate(ctx, h.group, step.Existing, candidate, resolution, origin)
	} else {
		res, err = h.handler.AddItem(ctx, h.group, candidate, origin)
	}
	if err != nil {
		trace.Outcome = h.fail(ctx, conn, err)
		return trace, nil
	}

	switch {
	case res.Duplicate != nil:
		h.reply(ctx, conn, protocol.TypeDuplicateFound, protocol.DuplicateFound{
			Existing:  res.Duplicate.Existing,
			Candidate: res.Duplicate.Candidate,
		})
		trace.Outcome = OutcomeDuplicate
		trace.Detail = res.Duplicate.Existing.ID
	case res.Skipped:
		h.reply(ctx, conn, protocol.TypeMutationResult, protocol.MutationResult{Op: protocol.OpAdd, Skipped: true})
		trace.Outcome = OutcomeSkipped
	default:
		h.reply(ctx, conn, protocol.TypeMutationResult, protocol.MutationResult{
			Op: protocol.OpAdd, Item: res.Item, ItemID: res.Item.ID,
		})
		trace.Outcome = OutcomeOK
		trace.Detail = fmt.Sprintf("%s qty=%d", res.Item.ID, res.Item.Quantity)
	}
	return trace, nil
}

func (h *Harness) update(ctx context.Context, step Step) (StepTrace, error) {
	conn, origin, err := h.origin(step)
	if err != nil {
		return StepTrace{}, err
	}
	trace := StepTrace{Line: fmt.Sprintf("update %s %s", actor(step), step.ItemID)}
	if !h.joined(conn) {
		trace.Outcome = h.notJoined(ctx, conn)
		return trace, nil
	}

	item, err := h.handler.UpdateItem(ctx, h.group, step.ItemID, step.Patch.Patch(), origin)
	if err != nil {
		trace.Outcome = h.fail(ctx, conn, err)
		return trace, nil
	}
	h.reply(ctx, conn, protocol.TypeMutationResult, protocol.MutationResult{
		Op: protocol.OpUpdate, Item: &item, ItemID: item.ID,
	})
	trace.Outcome = OutcomeOK
	trace.Detail = fmt.Sprintf("%s qty=%d", item.ID, item.Quantity)
	return trace, nil
}

func (h *Harness) delete(ctx context.Context, step Step) (StepTrace, error) {
	conn, origin, err := h.origin(step)
	if err != nil {
		return StepTrace{}, err
	}
	trace := StepTrace{Line: fmt.Sprintf("delete %s %s", actor(step), step.ItemID)}
	if !h.joined(conn) {
		trace.Outcome = h.notJoined(ctx, conn)
		return trace, nil
	}

	if err := h.handler.DeleteItem(ctx, h.group, step.ItemID, origin); err != nil {
		trace.Outcome = h.fail(ctx, conn, err)
		return trace, nil
	}
	h.reply(ctx, conn, protocol.TypeMutationResult, protocol.MutationResult{
		Op: protocol.OpDelete, ItemID: step.ItemID,
	})
	trace.Outcome = OutcomeOK
	trace.Detail = step.ItemID
	return trace, nil
}

// collect gathers recorded frames and the group's final state.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	for _, name := range h.order {
		frames, err := summarizeFrames(h.conns[name])
		if err != nil {
			return fmt.Errorf("conn %s: %w", name, err)
		}
		result.Conns = append(result.Conns, ConnTrace{Name: name, Frames: frames})
	}

	result.Members = append(result.Members, h.hub.Members(h.group)...)

	items, err := h.handler.ListItems(ctx, h.group)
	if err != nil {
		return fmt.Errorf("list final items: %w", err)
	}
	result.Items = items
	return nil
}

func (h *Harness) conn(name string) (*testutil.RecordingConn, error) {
	conn, ok := h.conns[name]
	if !ok {
		return nil, fmt.Errorf("conn %q is not connected", name)
	}
	return conn, nil
}

// origin resolves who a mutation step comes from. conn is nil for a
// connectionless request.
func (h *Harness) origin(step Step) (*testutil.RecordingConn, mutation.Origin, error) {
	if step.Conn == "" {
		return nil, mutation.Origin{MemberID: step.Member}, nil
	}
	conn, err := h.conn(step.Conn)
	if err != nil {
		return nil, mutation.Origin{}, err
	}
	return conn, mutation.Origin{MemberID: h.members[step.Conn], ConnID: conn.ID()}, nil
}

// joined reports whether conn may mutate. Connectionless requests always may.
func (h *Harness) joined(conn *testutil.RecordingConn) bool {
	if conn == nil {
		return true
	}
	_, _, ok := h.hub.Registry().Lookup(conn.ID())
	return ok
}

func (h *Harness) notJoined(ctx context.Context, conn *testutil.RecordingConn) string {
	h.reply(ctx, conn, protocol.TypeError, protocol.Error{Code: protocol.ErrCodeNotJoined, Message: "join a group first"})
	return protocol.ErrCodeNotJoined
}

// fail replies ERROR to conn and returns the error's code.
func (h *Harness) fail(ctx context.Context, conn *testutil.RecordingConn, err error) string {
	code := errorCode(err)
	h.reply(ctx, conn, protocol.TypeError, protocol.Error{Code: code, Message: err.Error()})
	return code
}

func (h *Harness) reply(ctx context.Context, conn *testutil.RecordingConn, typ protocol.Type, payload any) {
	if conn == nil {
		return
	}
	if err := h.hub.Reply(ctx, conn, typ, "", payload); err != nil {
		h.logger.Debug("reply failed", "conn", conn.ID(), "type", typ, "error", err)
	}
}

func errorCode(err error) string {
	if code := inventory.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, hub.ErrAlreadyJoined):
		return protocol.ErrCodeAlreadyJoined
	case errors.Is(err, hub.ErrInvalidJoin):
		return protocol.ErrCodeBadRequest
	case errors.Is(err, hub.ErrClosed), errors.Is(err, dispatch.ErrStopped):
		return protocol.ErrCodeUnavailable
	default:
		return protocol.ErrCodeInternal
	}
}

func actor(step Step) string {
	if step.Conn != "" {
		return step.Conn
	}
	if step.Member != "" {
		return "offline:" + step.Member
	}
	return "offline"
}

func describe(item inventory.Item) string {
	return fmt.Sprintf("%q %s qty=%d", item.Name, item.Potency, item.Quantity)
}
