package mutation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/famshelf/internal/dispatch"
	"github.com/roach88/famshelf/internal/hub"
	"github.com/roach88/famshelf/internal/ids"
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/protocol"
	"github.com/roach88/famshelf/internal/store"
	"github.com/roach88/famshelf/internal/testutil"
)

const group = "ABC12345"

type fixture struct {
	store   *store.Store
	hub     *hub.Hub
	handler *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(t.TempDir(), "famshelf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	lanes := dispatch.New(dispatch.WithLogger(logger))
	t.Cleanup(lanes.Stop)

	h := hub.New(st, lanes, hub.WithLogger(logger))
	clock := testutil.NewFakeClock(testutil.Epoch)

	return &fixture{
		store: st,
		hub:   h,
		handler: New(st, h, lanes,
			WithIDs(ids.NewSequentialGenerator("item")),
			WithClock(clock.Now),
			WithLogger(logger),
		),
	}
}

func (f *fixture) join(t *testing.T, memberID, memberName string) *testutil.RecordingConn {
	t.Helper()
	conn := testutil.NewRecordingConn("c-"+memberID, nil)
	require.NoError(t, f.hub.Join(context.Background(), conn, hub.JoinRequest{
		GroupID: group, MemberID: memberID, MemberName: memberName,
	}))
	return conn
}

func remedy(name, potency string, quantity int) inventory.Item {
	return inventory.Item{Name: name, Potency: potency, Company: "Boiron", Location: "Kitchen", Quantity: quantity}
}

func updates(t *testing.T, conn *testutil.RecordingConn) []protocol.InventoryUpdate {
	t.Helper()
	msgs, err := conn.Messages()
	require.NoError(t, err)
	var out []protocol.InventoryUpdate
	for _, m := range msgs {
		if m.Type != protocol.TypeInventoryUpdate {
			continue
		}
		var upd protocol.InventoryUpdate
		require.NoError(t, m.Decode(&upd))
		out = append(out, upd)
	}
	return out
}

func TestAddItem_InsertsAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice", "Alice")
	bob := f.join(t, "bob", "Bob")

	res, err := f.handler.AddItem(context.Background(), group, remedy("  Belladonna ", "200C", 1),
		Origin{MemberID: "alice", ConnID: alice.ID()})
	require.NoError(t, err)
	require.NotNil(t, res.Item)
	assert.Nil(t, res.Duplicate)
	assert.Equal(t, "item-1", res.Item.ID)
	assert.Equal(t, "Belladonna", res.Item.Name, "candidate is trimmed")
	assert.Equal(t, group, res.Item.GroupID)
	assert.Equal(t, testutil.Epoch, res.Item.CreatedAt)

	got := updates(t, bob)
	require.Len(t, got, 1)
	assert.Equal(t, inventory.EventAdd, got[0].Kind)
	assert.Equal(t, "Belladonna", got[0].Item.Name)
	assert.Equal(t, "alice", got[0].UpdatedBy)
	assert.Equal(t, int64(1), got[0].Seq)

	assert.Empty(t, updates(t, alice), "initiator is answered directly, not by broadcast")
}

func TestAddItem_ValidationNeverBroadcasts(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	cases := []struct {
		item  inventory.Item
		field string
	}{
		{remedy("", "30C", 1), "name"},
		{remedy("Arnica", "  ", 1), "potency"},
		{inventory.Item{Name: "Arnica", Potency: "30C", Location: "Kitchen"}, "company"},
		{inventory.Item{Name: "Arnica", Potency: "30C", Company: "Boiron"}, "location"},
		{remedy("Arnica", "30C", -1), "quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			_, err := f.handler.AddItem(context.Background(), group, tc.item, Origin{MemberID: "alice"})
			require.Error(t, err)
			assert.True(t, inventory.IsValidation(err))

			var ierr *inventory.Error
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, tc.field, ierr.Field)
		})
	}

	_, err := f.handler.AddItem(context.Background(), " ", remedy("Arnica", "30C", 1), Origin{})
	assert.True(t, inventory.IsValidation(err))

	assert.Empty(t, updates(t, bob))
	items, err := f.store.ListItems(context.Background(), group)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAddItem_DuplicateFound(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	first, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 2), Origin{MemberID: "alice"})
	require.NoError(t, err)
	require.NotNil(t, first.Item)

	res, err := f.handler.AddItem(context.Background(), group, remedy("Arnica Montana", "30C", 1), Origin{MemberID: "alice"})
	require.NoError(t, err)
	assert.Nil(t, res.Item)
	require.NotNil(t, res.Duplicate)
	assert.Equal(t, first.Item.ID, res.Duplicate.Existing.ID)
	assert.Equal(t, "Arnica Montana", res.Duplicate.Candidate.Name)

	items, err := f.store.ListItems(context.Background(), group)
	require.NoError(t, err)
	assert.Len(t, items, 1, "duplicate is not inserted")
	assert.Len(t, updates(t, bob), 1, "only the first add was broadcast")
}

func TestAddItem_DifferentPotencyIsNotDuplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 2), Origin{})
	require.NoError(t, err)

	res, err := f.handler.AddItem(context.Background(), group, remedy("Arnica Montana", "200C", 1), Origin{})
	require.NoError(t, err)
	assert.NotNil(t, res.Item)
	assert.Nil(t, res.Duplicate)
}

func TestAddItem_OtherGroupIsNotDuplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.handler.AddItem(context.Background(), "QQQ11111", remedy("Arnica", "30C", 2), Origin{})
	require.NoError(t, err)

	res, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 1), Origin{})
	require.NoError(t, err)
	assert.NotNil(t, res.Item)
}

func TestResolveDuplicate_Merge(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	first, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 2), Origin{MemberID: "alice"})
	require.NoError(t, err)
	cand := remedy("Arnica Montana", "30C", 1)
	dup, err := f.handler.AddItem(context.Background(), group, cand, Origin{MemberID: "alice"})
	require.NoError(t, err)
	require.NotNil(t, dup.Duplicate)
	bob.Reset()

	res, err := f.handler.ResolveDuplicate(context.Background(), group, dup.Duplicate.Existing.ID, cand,
		inventory.ResolveMerge, Origin{MemberID: "alice"})
	require.NoError(t, err)
	require.NotNil(t, res.Item)
	assert.Equal(t, first.Item.ID, res.Item.ID)
	assert.Equal(t, 3, res.Item.Quantity)
	assert.Equal(t, "Arnica", res.Item.Name, "existing row keeps its name")

	items, err := f.store.ListItems(context.Background(), group)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)

	got := updates(t, bob)
	require.Len(t, got, 1)
	assert.Equal(t, inventory.EventUpdate, got[0].Kind)
	assert.Equal(t, 3, got[0].Item.Quantity)
}

func TestResolveDuplicate_MergeMissingExisting(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	_, err := f.handler.ResolveDuplicate(context.Background(), group, "gone", remedy("Arnica", "30C", 1),
		inventory.ResolveMerge, Origin{})
	require.Error(t, err)
	assert.True(t, inventory.IsNotFound(err))

	_, err = f.handler.ResolveDuplicate(context.Background(), group, "", remedy("Arnica", "30C", 1),
		inventory.ResolveMerge, Origin{})
	assert.True(t, inventory.IsValidation(err))
	assert.Empty(t, updates(t, bob))
}

func TestResolveDuplicate_KeepBoth(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	first, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 2), Origin{})
	require.NoError(t, err)

	res, err := f.handler.ResolveDuplicate(context.Background(), group, first.Item.ID, remedy("Arnica Montana", "30C", 1),
		inventory.ResolveKeepBoth, Origin{})
	require.NoError(t, err)
	require.NotNil(t, res.Item)
	assert.NotEqual(t, first.Item.ID, res.Item.ID)

	items, err := f.store.ListItems(context.Background(), group)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	got := updates(t, bob)
	require.Len(t, got, 2)
	assert.Equal(t, inventory.EventAdd, got[1].Kind)
}

func TestResolveDuplicate_Skip(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	res, err := f.handler.ResolveDuplicate(context.Background(), group, "whatever", remedy("Arnica", "30C", 1),
		inventory.ResolveSkip, Origin{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Nil(t, res.Item)
	assert.Empty(t, updates(t, bob))

	_, err = f.handler.ResolveDuplicate(context.Background(), group, "x", remedy("Arnica", "30C", 1),
		inventory.Resolution("squash"), Origin{})
	assert.True(t, inventory.IsValidation(err))
}

func TestUpdateItem(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	added, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 2), Origin{})
	require.NoError(t, err)
	bob.Reset()

	loc := " Bathroom "
	qty := 5
	updated, err := f.handler.UpdateItem(context.Background(), group, added.Item.ID,
		inventory.Patch{Location: &loc, Quantity: &qty}, Origin{MemberID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "Bathroom", updated.Location)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, "Arnica", updated.Name)

	got := updates(t, bob)
	require.Len(t, got, 1)
	assert.Equal(t, inventory.EventUpdate, got[0].Kind)
	assert.Equal(t, added.Item.ID, got[0].ItemID)
}

func TestUpdateItem_Failures(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	other, err := f.handler.AddItem(context.Background(), "QQQ11111", remedy("Arnica", "30C", 2), Origin{})
	require.NoError(t, err)

	qty := 1
	_, err = f.handler.UpdateItem(context.Background(), group, other.Item.ID, inventory.QuantityPatch(qty), Origin{})
	assert.True(t, inventory.IsNotFound(err), "id from another group is not found")

	_, err = f.handler.UpdateItem(context.Background(), group, other.Item.ID, inventory.Patch{}, Origin{})
	assert.True(t, inventory.IsValidation(err))

	mine, err := f.handler.AddItem(context.Background(), group, remedy("Nux vomica", "6C", 1), Origin{})
	require.NoError(t, err)
	bob.Reset()

	_, err = f.handler.UpdateItem(context.Background(), group, mine.Item.ID, inventory.QuantityPatch(-2), Origin{})
	assert.True(t, inventory.IsValidation(err))
	blank := ""
	_, err = f.handler.UpdateItem(context.Background(), group, mine.Item.ID, inventory.Patch{Name: &blank}, Origin{})
	assert.True(t, inventory.IsValidation(err))

	assert.Empty(t, updates(t, bob))
	stored, err := f.store.GetItem(context.Background(), group, mine.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Quantity)
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	added, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 2), Origin{})
	require.NoError(t, err)
	bob.Reset()

	require.NoError(t, f.handler.DeleteItem(context.Background(), group, added.Item.ID, Origin{MemberID: "alice"}))
	got := updates(t, bob)
	require.Len(t, got, 1)
	assert.Equal(t, inventory.EventDelete, got[0].Kind)
	assert.Equal(t, added.Item.ID, got[0].ItemID)
	assert.Nil(t, got[0].Item)
}

func TestDeleteItem_NonexistentProducesNoBroadcast(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "alice", "Alice")
	bob := f.join(t, "bob", "Bob")

	err := f.handler.DeleteItem(context.Background(), group, "no-such-item", Origin{MemberID: "alice"})
	require.Error(t, err)
	assert.True(t, inventory.IsNotFound(err))

	assert.Empty(t, updates(t, alice))
	assert.Empty(t, updates(t, bob))
}

type failingStore struct {
	Store
	failWrites bool
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) InsertItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	if s.failWrites {
		return inventory.Item{}, errDiskFull
	}
	return s.Store.InsertItem(ctx, item)
}

func (s *failingStore) UpdateItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	if s.failWrites {
		return inventory.Item{}, errDiskFull
	}
	return s.Store.UpdateItem(ctx, item)
}

func (s *failingStore) DeleteItem(ctx context.Context, groupID, id string) error {
	if s.failWrites {
		return errDiskFull
	}
	return s.Store.DeleteItem(ctx, groupID, id)
}

func TestStoreFailureNeverBroadcasts(t *testing.T) {
	f := newFixture(t)
	bob := f.join(t, "bob", "Bob")

	added, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 2), Origin{})
	require.NoError(t, err)
	bob.Reset()

	lanes := dispatch.New()
	t.Cleanup(lanes.Stop)
	fs := &failingStore{Store: f.store, failWrites: true}
	h := New(fs, f.hub, lanes, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err = h.AddItem(context.Background(), group, remedy("Belladonna", "200C", 1), Origin{})
	assert.True(t, inventory.IsStoreError(err))
	assert.ErrorIs(t, err, errDiskFull)

	_, err = h.UpdateItem(context.Background(), group, added.Item.ID, inventory.QuantityPatch(9), Origin{})
	assert.True(t, inventory.IsStoreError(err))

	_, err = h.ResolveDuplicate(context.Background(), group, added.Item.ID, remedy("Arnica", "30C", 1), inventory.ResolveMerge, Origin{})
	assert.True(t, inventory.IsStoreError(err))

	err = h.DeleteItem(context.Background(), group, added.Item.ID, Origin{})
	assert.True(t, inventory.IsStoreError(err))

	assert.Empty(t, updates(t, bob))
}

func TestConcurrentAddsOfSameItemInsertOnce(t *testing.T) {
	f := newFixture(t)
	const callers = 8

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		inserted   int
		duplicates int
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := f.handler.AddItem(context.Background(), group, remedy("Arnica", "30C", 1),
				Origin{MemberID: fmt.Sprintf("m%d", i)})
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Item != nil {
				inserted++
			}
			if res.Duplicate != nil {
				duplicates++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, callers-1, duplicates)
}

func TestListItems(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Nux vomica", "arnica", "Belladonna"} {
		_, err := f.handler.AddItem(context.Background(), group, remedy(name, "30C", 1), Origin{})
		require.NoError(t, err)
	}

	items, err := f.handler.ListItems(context.Background(), group)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"arnica", "Belladonna", "Nux vomica"},
		[]string{items[0].Name, items[1].Name, items[2].Name})

	empty, err := f.handler.ListItems(context.Background(), "ZZZ00000")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestOfflineHandlerUsesDiscard(t *testing.T) {
	f := newFixture(t)
	lanes := dispatch.New()
	t.Cleanup(lanes.Stop)

	h := New(f.store, nil, lanes, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	res, err := h.AddItem(context.Background(), group, remedy("Arnica", "30C", 1), Origin{MemberID: "cli"})
	require.NoError(t, err)
	require.NotNil(t, res.Item)
	assert.NotEmpty(t, res.Item.ID)
}

// Alice is alone in ABC12345; Bob joins, Alice adds Belladonna, Bob leaves.
func TestEndToEnd_AliceAndBob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handler.AddItem(ctx, group, remedy("Arnica", "30C", 2), Origin{MemberID: "alice"})
	require.NoError(t, err)

	alice := f.join(t, "alice", "Alice")
	bob := f.join(t, "bob", "Bob")

	var snap protocol.FullInventory
	found, err := bob.Last(protocol.TypeFullInventory, &snap)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "Arnica", snap.Items[0].Name)

	var joined protocol.MemberNotice
	found, err = alice.Last(protocol.TypeMemberJoined, &joined)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Bob", joined.MemberName)

	_, err = f.handler.AddItem(ctx, group, remedy("Belladonna", "200C", 1), Origin{MemberID: "alice", ConnID: alice.ID()})
	require.NoError(t, err)

	got := updates(t, bob)
	require.Len(t, got, 1)
	assert.Equal(t, inventory.EventAdd, got[0].Kind)
	assert.Equal(t, "Belladonna", got[0].Item.Name)
	assert.Equal(t, []protocol.Type{protocol.TypeFullInventory, protocol.TypeInventoryUpdate}, bob.Types())

	f.hub.Leave(ctx, bob)

	var left protocol.MemberNotice
	found, err = alice.Last(protocol.TypeMemberLeft, &left)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Bob", left.MemberName)
	assert.Equal(t, 1, f.hub.Count(group))
}
