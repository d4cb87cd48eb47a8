package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/protocol"
)

func sampleResult() *Result {
	r := NewResult("sample", "FAMILY01")
	r.Conns = append(r.Conns, ConnTrace{Name: "alice", Frames: []Frame{
		{Type: protocol.TypeFullInventory, Summary: "FULL_INVENTORY items=[]"},
		{Type: protocol.TypeMemberJoined, Summary: "MEMBER_JOINED bob count=2"},
		{Type: protocol.TypeInventoryUpdate, Summary: "INVENTORY_UPDATE ADD item-1 qty=1 by=bob seq=1"},
		{Type: protocol.TypeInventoryUpdate, Summary: "INVENTORY_UPDATE UPDATE item-1 qty=2 by=bob seq=2"},
	}})
	r.Members = []protocol.Member{{MemberID: "alice"}, {MemberID: "bob"}}
	r.Items = []inventory.Item{{ID: "item-1", Name: "Arnica", Potency: "30C", Quantity: 2}}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertReceives, Conn: "alice", Message: "MEMBER_JOINED"},
		{Type: AssertReceives, Conn: "alice", Message: "INVENTORY_UPDATE", Contains: "UPDATE item-1 qty=2"},
		{Type: AssertCount, Conn: "alice", Message: "INVENTORY_UPDATE", Count: 2},
		{Type: AssertCount, Conn: "alice", Message: "MEMBER_LEFT", Count: 0},
		{Type: AssertOrder, Conn: "alice", Messages: []string{"FULL_INVENTORY", "INVENTORY_UPDATE", "INVENTORY_UPDATE"}},
		{Type: AssertMembers, Members: []string{"alice", "bob"}},
		{Type: AssertItems, Items: []ItemSpec{{Name: "Arnica", Quantity: 2}}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "receives",
			assertion: Assertion{Type: AssertReceives, Conn: "alice", Message: "MEMBER_LEFT"},
			want:      "alice receives MEMBER_LEFT",
		},
		{
			name:      "receives with contains",
			assertion: Assertion{Type: AssertReceives, Conn: "alice", Message: "INVENTORY_UPDATE", Contains: "DELETE"},
			want:      `INVENTORY_UPDATE containing "DELETE"`,
		},
		{
			name:      "count",
			assertion: Assertion{Type: AssertCount, Conn: "alice", Message: "INVENTORY_UPDATE", Count: 1},
			want:      "Actual: 2 times",
		},
		{
			name:      "order",
			assertion: Assertion{Type: AssertOrder, Conn: "alice", Messages: []string{"INVENTORY_UPDATE", "MEMBER_JOINED"}},
			want:      "MEMBER_JOINED not found after 1 matched",
		},
		{
			name:      "members",
			assertion: Assertion{Type: AssertMembers, Members: []string{"bob", "alice"}},
			want:      "members [alice, bob]",
		},
		{
			name:      "item count",
			assertion: Assertion{Type: AssertItems},
			want:      "1 items: Arnica",
		},
		{
			name:      "item fields",
			assertion: Assertion{Type: AssertItems, Items: []ItemSpec{{Name: "Arnica", Quantity: 5}}},
			want:      "item 1 to match",
		},
		{
			name:      "unknown conn",
			assertion: Assertion{Type: AssertCount, Conn: "zed", Message: "ERROR"},
			want:      `no connection named "zed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_ListsFrames(t *testing.T) {
	err := &AssertionError{
		Type:     AssertReceives,
		Expected: "alice receives ERROR",
		Actual:   "not received",
		Frames:   []Frame{{Type: protocol.TypeFullInventory, Summary: "FULL_INVENTORY items=[]"}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: receives")
	assert.Contains(t, msg, "[1] FULL_INVENTORY items=[]")
}

func TestItemSpec_Matches(t *testing.T) {
	item := inventory.Item{Name: "Arnica", Potency: "30C", Company: "Boiron", Location: "Kitchen", Quantity: 3}

	assert.True(t, ItemSpec{}.matches(item))
	assert.True(t, ItemSpec{Name: "Arnica", Quantity: 3}.matches(item))
	assert.False(t, ItemSpec{Name: "arnica"}.matches(item))
	assert.False(t, ItemSpec{Location: "Garage"}.matches(item))
	assert.False(t, ItemSpec{Quantity: 1}.matches(item))
}
