package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/famshelf/internal/protocol"
	"github.com/roach88/famshelf/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string  // Assertion type for categorization
	Expected string  // Human-readable expected outcome
	Actual   string  // Human-readable actual outcome
	Frames   []Frame // What the connection was sent, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Frames) > 0 {
		fmt.Fprintf(&buf, "\nFrames:\n")
		for i, f := range e.Frames {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, f.Summary)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages. An empty slice means all assertions held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertReceives:
		return assertReceives(result, a)
	case AssertCount:
		return assertCount(result, a)
	case AssertOrder:
		return assertOrder(result, a)
	case AssertMembers:
		return assertMembers(result, a)
	case AssertItems:
		return assertItems(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func framesOf(result *Result, name string) ([]Frame, error) {
	c, ok := result.Conn(name)
	if !ok {
		return nil, fmt.Errorf("no connection named %q", name)
	}
	return c.Frames, nil
}

// matching counts the frames of type msg whose summary contains text.
func matching(frames []Frame, msg, text string) int {
	n := 0
	for _, f := range frames {
		if string(f.Type) == msg && strings.Contains(f.Summary, text) {
			n++
		}
	}
	return n
}

func describeMatch(a Assertion) string {
	if a.Contains == "" {
		return a.Message
	}
	return fmt.Sprintf("%s containing %q", a.Message, a.Contains)
}

func assertReceives(result *Result, a Assertion) error {
	frames, err := framesOf(result, a.Conn)
	if err != nil {
		return err
	}
	if matching(frames, a.Message, a.Contains) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertReceives,
		Expected: fmt.Sprintf("%s receives %s", a.Conn, describeMatch(a)),
		Actual:   "not received",
		Frames:   frames,
	}
}

func assertCount(result *Result, a Assertion) error {
	frames, err := framesOf(result, a.Conn)
	if err != nil {
		return err
	}
	if n := matching(frames, a.Message, a.Contains); n != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%s receives %s %d times", a.Conn, describeMatch(a), a.Count),
			Actual:   fmt.Sprintf("%d times", n),
			Frames:   frames,
		}
	}
	return nil
}

// assertOrder checks that the listed message types appear in order.
// Intervening messages are allowed.
func assertOrder(result *Result, a Assertion) error {
	frames, err := framesOf(result, a.Conn)
	if err != nil {
		return err
	}
	next := 0
	for _, f := range frames {
		if next < len(a.Messages) && string(f.Type) == a.Messages[next] {
			next++
		}
	}
	if next == len(a.Messages) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOrder,
		Expected: fmt.Sprintf("%s receives %s in order", a.Conn, strings.Join(a.Messages, ", ")),
		Actual:   fmt.Sprintf("%s not found after %d matched", a.Messages[next], next),
		Frames:   frames,
	}
}

func assertMembers(result *Result, a Assertion) error {
	got := make([]string, len(result.Members))
	for i, m := range result.Members {
		got[i] = m.MemberID
	}
	if strings.Join(got, ",") == strings.Join(a.Members, ",") {
		return nil
	}
	return &AssertionError{
		Type:     AssertMembers,
		Expected: fmt.Sprintf("members [%s]", strings.Join(a.Members, ", ")),
		Actual:   fmt.Sprintf("members [%s]", strings.Join(got, ", ")),
	}
}

func assertItems(result *Result, a Assertion) error {
	if len(result.Items) != len(a.Items) {
		return &AssertionError{
			Type:     AssertItems,
			Expected: fmt.Sprintf("%d items", len(a.Items)),
			Actual:   fmt.Sprintf("%d items: %s", len(result.Items), itemNames(result)),
		}
	}
	for i, want := range a.Items {
		if !want.matches(result.Items[i]) {
			return &AssertionError{
				Type:     AssertItems,
				Expected: fmt.Sprintf("item %d to match %+v", i+1, want),
				Actual:   fmt.Sprintf("%+v", result.Items[i]),
			}
		}
	}
	return nil
}

func itemNames(result *Result) string {
	names := make([]string, len(result.Items))
	for i, item := range result.Items {
		names[i] = item.Name
	}
	return strings.Join(names, ", ")
}

// summarizeFrames decodes every frame conn was sent into a one-line summary.
func summarizeFrames(conn *testutil.RecordingConn) ([]Frame, error) {
	msgs, err := conn.Messages()
	if err != nil {
		return nil, err
	}
	out := make([]Frame, 0, len(msgs))
	for i, m := range msgs {
		summary, err := summarize(m)
		if err != nil {
			return nil, fmt.Errorf("frame %d (%s): %w", i+1, m.Type, err)
		}
		out = append(out, Frame{Type: m.Type, Summary: summary})
	}
	return out, nil
}

func summarize(m protocol.Incoming) (string, error) {
	head := string(m.Type)
	switch m.Type {
	case protocol.TypeFullInventory:
		var p protocol.FullInventory
		if err := m.Decode(&p); err != nil {
			return "", err
		}
		ids := make([]string, len(p.Items))
		for i, item := range p.Items {
			ids[i] = item.ID
		}
		return fmt.Sprintf("%s items=[%s]", head, strings.Join(ids, " ")), nil

	case protocol.TypeInventoryUpdate:
		var p protocol.InventoryUpdate
		if err := m.Decode(&p); err != nil {
			return "", err
		}
		s := fmt.Sprintf("%s %s %s", head, p.Kind, p.ItemID)
		if p.Item != nil {
			s += fmt.Sprintf(" qty=%d", p.Item.Quantity)
		}
		return s + fmt.Sprintf(" by=%s seq=%d", p.UpdatedBy, p.Seq), nil

	case protocol.TypeMemberJoined, protocol.TypeMemberLeft:
		var p protocol.MemberNotice
		if err := m.Decode(&p); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s count=%d", head, p.MemberID, p.Count), nil

	case protocol.TypeMembers:
		var p protocol.Members
		if err := m.Decode(&p); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s count=%d", head, p.Count), nil

	case protocol.TypeMutationResult:
		var p protocol.MutationResult
		if err := m.Decode(&p); err != nil {
			return "", err
		}
		if p.Skipped {
			return fmt.Sprintf("%s %s skipped", head, p.Op), nil
		}
		s := fmt.Sprintf("%s %s %s", head, p.Op, p.ItemID)
		if p.Item != nil {
			s += fmt.Sprintf(" qty=%d", p.Item.Quantity)
		}
		return s, nil

	case protocol.TypeDuplicateFound:
		var p protocol.DuplicateFound
		if err := m.Decode(&p); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s existing=%s", head, p.Existing.ID), nil

	case protocol.TypeError:
		var p protocol.Error
		if err := m.Decode(&p); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s", head, p.Code), nil

	default:
		return head, nil
	}
}
