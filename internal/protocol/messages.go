package protocol

import (
	"time"

	"github.com/roach88/famshelf/internal/inventory"
)

// Type identifies a message.
type Type string

// Client to server.
const (
	TypeJoin        Type = "JOIN"
	TypeMutate      Type = "MUTATE"
	TypeListMembers Type = "LIST_MEMBERS"
)

// Server to client.
const (
	TypeFullInventory   Type = "FULL_INVENTORY"
	TypeInventoryUpdate Type = "INVENTORY_UPDATE"
	TypeMemberJoined    Type = "MEMBER_JOINED"
	TypeMemberLeft      Type = "MEMBER_LEFT"
	TypeMembers         Type = "MEMBERS"
	TypeMutationResult  Type = "MUTATION_RESULT"
	TypeDuplicateFound  Type = "DUPLICATE_FOUND"
	TypeError           Type = "ERROR"
)

// Op is the mutation a MUTATE message requests.
type Op string

const (
	OpAdd    Op = "ADD"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Join asks to attach the connection to a group.
type Join struct {
	GroupID    string `json:"groupId"`
	MemberID   string `json:"memberId"`
	MemberName string `json:"memberName"`
}

// Mutate requests one mutation in the connection's group.
//
// ADD uses Item (the candidate) and, to answer a DUPLICATE_FOUND,
// Resolution plus ExistingID. UPDATE uses ItemID and Patch. DELETE uses
// ItemID.
type Mutate struct {
	Op         Op               `json:"op"`
	Item       *inventory.Item  `json:"item,omitempty"`
	ItemID     string           `json:"itemId,omitempty"`
	Patch      *inventory.Patch `json:"patch,omitempty"`
	Resolution string           `json:"resolution,omitempty"`
	ExistingID string           `json:"existingId,omitempty"`
}

// FullInventory is the snapshot sent once after join.
type FullInventory struct {
	GroupID string           `json:"groupId"`
	Items   []inventory.Item `json:"items"`
}

// InventoryUpdate reports one applied mutation to the other members.
type InventoryUpdate struct {
	Kind      inventory.EventKind `json:"kind"`
	Item      *inventory.Item     `json:"item,omitempty"`
	ItemID    string              `json:"itemId"`
	UpdatedBy string              `json:"updatedBy,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Seq       int64               `json:"seq"`
}

// NewInventoryUpdate converts a mutation event into its wire form.
func NewInventoryUpdate(ev inventory.MutationEvent) InventoryUpdate {
	return InventoryUpdate{
		Kind:      ev.Kind,
		Item:      ev.Item,
		ItemID:    ev.ItemID,
		UpdatedBy: ev.InitiatorMemberID,
		Timestamp: ev.Timestamp,
		Seq:       ev.Seq,
	}
}

// MemberNotice announces a member joining or leaving. Count is the group's
// live connection count after the change.
type MemberNotice struct {
	MemberID   string `json:"memberId"`
	MemberName string `json:"memberName"`
	Count      int    `json:"count"`
}

// Member is one entry of the membership directory.
type Member struct {
	MemberID   string `json:"memberId"`
	MemberName string `json:"memberName"`
}

// Members answers LIST_MEMBERS.
type Members struct {
	GroupID string   `json:"groupId"`
	Members []Member `json:"members"`
	Count   int      `json:"count"`
}

// MutationResult acknowledges the initiator's own mutation.
// Skipped is set when a duplicate was resolved with skip.
type MutationResult struct {
	Op      Op              `json:"op"`
	Item    *inventory.Item `json:"item,omitempty"`
	ItemID  string          `json:"itemId,omitempty"`
	Skipped bool            `json:"skipped,omitempty"`
}

// DuplicateFound asks the initiator to resolve a suspected duplicate.
type DuplicateFound struct {
	Existing  inventory.Item `json:"existing"`
	Candidate inventory.Item `json:"candidate"`
}

// Error codes sent in ERROR messages, beyond the inventory error codes.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotJoined     = "NOT_JOINED"
	ErrCodeAlreadyJoined = "ALREADY_JOINED"
	ErrCodeGroupNotFound = "GROUP_NOT_FOUND"
	ErrCodeUnavailable   = "UNAVAILABLE"
	ErrCodeInternal      = "INTERNAL"
)

// Error is a failed request, sent only to the connection that made it.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
