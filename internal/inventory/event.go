package inventory

import "time"

// EventKind names the mutation an event reports.
type EventKind string

const (
	EventAdd    EventKind = "ADD"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// MutationEvent is produced once per successfully applied mutation and
// handed straight to the broadcast path. It is never persisted or replayed.
//
// Item is set for ADD and UPDATE; ItemID is always set.
type MutationEvent struct {
	Kind              EventKind
	GroupID           string
	Item              *Item
	ItemID            string
	InitiatorMemberID string

	// Seq is a process-wide monotonic stamp; events of one group are
	// applied, and therefore observed, in increasing Seq order.
	Seq       int64
	Timestamp time.Time
}
