package mutation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/famshelf/internal/ids"
	"github.com/roach88/famshelf/internal/inventory"
)

// Store is the durable store the handler writes through.
type Store interface {
	ListItems(ctx context.Context, groupID string) ([]inventory.Item, error)
	GetItem(ctx context.Context, groupID, id string) (inventory.Item, error)
	InsertItem(ctx context.Context, item inventory.Item) (inventory.Item, error)
	UpdateItem(ctx context.Context, item inventory.Item) (inventory.Item, error)
	DeleteItem(ctx context.Context, groupID, id string) error
}

// Publisher receives confirmed mutations. It is called from inside the
// group's lane.
type Publisher interface {
	PublishMutation(ev inventory.MutationEvent, excludeConnID string) int
}

// Lanes serializes work per group.
type Lanes interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) error
}

// Discard is a Publisher that drops every event. Offline tools use it.
var Discard Publisher = discard{}

type discard struct{}

func (discard) PublishMutation(inventory.MutationEvent, string) int { return 0 }

// Origin identifies who asked for a mutation. ConnID is empty for
// requests that did not arrive on a live connection; their events reach
// every connection of the group.
type Origin struct {
	MemberID string
	ConnID   string
}

// AddResult is the outcome of AddItem or ResolveDuplicate. Exactly one of
// Item, Duplicate or Skipped is set.
type AddResult struct {
	Item      *inventory.Item
	Duplicate *inventory.DuplicateDescriptor
	Skipped   bool
}

// Handler applies mutations.
type Handler struct {
	store     Store
	publisher Publisher
	lanes     Lanes
	ids       ids.Generator
	seq       *ids.Sequence
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithIDs sets the item id generator. Default: UUIDv7.
func WithIDs(gen ids.Generator) Option {
	return func(h *Handler) {
		if gen != nil {
			h.ids = gen
		}
	}
}

// WithSequence sets the event sequence. Default: a fresh sequence at 0.
func WithSequence(seq *ids.Sequence) Option {
	return func(h *Handler) {
		if seq != nil {
			h.seq = seq
		}
	}
}

// WithClock sets the wall clock used for createdAt and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// New creates a Handler. A nil publisher means Discard.
func New(store Store, publisher Publisher, lanes Lanes, opts ...Option) *Handler {
	if publisher == nil {
		publisher = Discard
	}
	h := &Handler{
		store:     store,
		publisher: publisher,
		lanes:     lanes,
		ids:       ids.UUIDv7Generator{},
		seq:       ids.NewSequenceAt(0),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ListItems returns groupID's items ordered by name.
func (h *Handler) ListItems(ctx context.Context, groupID string) ([]inventory.Item, error) {
	if err := checkGroup(groupID); err != nil {
		return nil, err
	}
	items, err := h.store.ListItems(ctx, groupID)
	if err != nil {
		return nil, inventory.NewStoreError("list items", err)
	}
	if items == nil {
		items = []inventory.Item{}
	}
	return items, nil
}

// AddItem validates candidate and inserts it into groupID, unless an item
// that looks like the same product is already present; then the result
// carries a DuplicateDescriptor and nothing is written.
func (h *Handler) AddItem(ctx context.Context, groupID string, candidate inventory.Item, origin Origin) (AddResult, error) {
	cand, err := h.prepare(groupID, candidate)
	if err != nil {
		return AddResult{}, err
	}

	var result AddResult
	err = h.lanes.Do(ctx, groupID, func(ctx context.Context) error {
		existing, err := h.store.ListItems(ctx, groupID)
		if err != nil {
			return inventory.NewStoreError("list items", err)
		}
		if dup, found := inventory.FindDuplicate(existing, cand); found {
			h.logger.Debug("duplicate found", "group", groupID, "existing", dup.Existing.ID, "name", cand.Name)
			result.Duplicate = dup
			return nil
		}
		item, err := h.insert(ctx, cand, origin)
		if err != nil {
			return err
		}
		result.Item = &item
		return nil
	})
	return result, err
}

// ResolveDuplicate settles a duplicate reported by AddItem.
//
// merge adds the candidate's quantity to the existing item and emits one
// UPDATE. keep-both inserts the candidate without a duplicate check and
// emits ADD. skip writes nothing and emits nothing.
func (h *Handler) ResolveDuplicate(ctx context.Context, groupID, existingID string, candidate inventory.Item, resolution inventory.Resolution, origin Origin) (AddResult, error) {
	if resolution == inventory.ResolveSkip {
		if err := checkGroup(groupID); err != nil {
			return AddResult{}, err
		}
		return AddResult{Skipped: true}, nil
	}

	cand, err := h.prepare(groupID, candidate)
	if err != nil {
		return AddResult{}, err
	}

	var result AddResult
	switch resolution {
	case inventory.ResolveMerge:
		if strings.TrimSpace(existingID) == "" {
			return AddResult{}, inventory.NewValidationError("existingId", "existingId is required to merge")
		}
		err = h.lanes.Do(ctx, groupID, func(ctx context.Context) error {
			item, err := h.merge(ctx, groupID, existingID, cand, origin)
			if err != nil {
				return err
			}
			result.Item = &item
			return nil
		})
	case inventory.ResolveKeepBoth:
		err = h.lanes.Do(ctx, groupID, func(ctx context.Context) error {
			item, err := h.insert(ctx, cand, origin)
			if err != nil {
				return err
			}
			result.Item = &item
			return nil
		})
	default:
		return AddResult{}, inventory.NewValidationError("resolution", "resolution must be merge, keep-both or skip")
	}
	return result, err
}

// UpdateItem applies patch to the item (itemID, groupID). An id that
// exists only in another group is not found.
func (h *Handler) UpdateItem(ctx context.Context, groupID, itemID string, patch inventory.Patch, origin Origin) (inventory.Item, error) {
	if err := checkGroup(groupID); err != nil {
		return inventory.Item{}, err
	}
	if patch.IsEmpty() {
		return inventory.Item{}, inventory.NewValidationError("patch", "patch changes nothing")
	}

	var updated inventory.Item
	err := h.lanes.Do(ctx, groupID, func(ctx context.Context) error {
		current, err := h.store.GetItem(ctx, groupID, itemID)
		if err != nil {
			return storeErr("get item", groupID, itemID, err)
		}
		next := patch.Apply(current)
		if err := inventory.Validate(next); err != nil {
			return err
		}
		updated, err = h.store.UpdateItem(ctx, next)
		if err != nil {
			return storeErr("update item", groupID, itemID, err)
		}
		h.publish(inventory.EventUpdate, groupID, &updated, updated.ID, origin)
		return nil
	})
	return updated, err
}

// DeleteItem removes (itemID, groupID). DELETE is emitted only if a row
// was removed.
func (h *Handler) DeleteItem(ctx context.Context, groupID, itemID string, origin Origin) error {
	if err := checkGroup(groupID); err != nil {
		return err
	}
	return h.lanes.Do(ctx, groupID, func(ctx context.Context) error {
		if err := h.store.DeleteItem(ctx, groupID, itemID); err != nil {
			return storeErr("delete item", groupID, itemID, err)
		}
		h.publish(inventory.EventDelete, groupID, nil, itemID, origin)
		return nil
	})
}

// prepare normalizes and validates a candidate for groupID.
func (h *Handler) prepare(groupID string, candidate inventory.Item) (inventory.Item, error) {
	if err := checkGroup(groupID); err != nil {
		return inventory.Item{}, err
	}
	cand := candidate.Normalized()
	cand.GroupID = groupID
	if err := inventory.Validate(cand); err != nil {
		return inventory.Item{}, err
	}
	return cand, nil
}

// insert stores cand as a new row and emits ADD. Runs in the lane.
func (h *Handler) insert(ctx context.Context, cand inventory.Item, origin Origin) (inventory.Item, error) {
	cand.ID = h.ids.Generate()
	cand.CreatedAt = h.now().UTC()

	item, err := h.store.InsertItem(ctx, cand)
	if err != nil {
		return inventory.Item{}, inventory.NewStoreError("insert item", err)
	}
	h.publish(inventory.EventAdd, item.GroupID, &item, item.ID, origin)
	return item, nil
}

// merge folds cand's quantity into the existing item and emits UPDATE.
// Runs in the lane, so the re-read sees every earlier mutation.
func (h *Handler) merge(ctx context.Context, groupID, existingID string, cand inventory.Item, origin Origin) (inventory.Item, error) {
	existing, err := h.store.GetItem(ctx, groupID, existingID)
	if err != nil {
		return inventory.Item{}, storeErr("get item", groupID, existingID, err)
	}
	existing.Quantity += cand.Quantity

	item, err := h.store.UpdateItem(ctx, existing)
	if err != nil {
		return inventory.Item{}, storeErr("update item", groupID, existingID, err)
	}
	h.publish(inventory.EventUpdate, groupID, &item, item.ID, origin)
	return item, nil
}

func (h *Handler) publish(kind inventory.EventKind, groupID string, item *inventory.Item, itemID string, origin Origin) {
	ev := inventory.MutationEvent{
		Kind:              kind,
		GroupID:           groupID,
		Item:              item,
		ItemID:            itemID,
		InitiatorMemberID: origin.MemberID,
		Seq:               h.seq.Next(),
		Timestamp:         h.now().UTC(),
	}
	n := h.publisher.PublishMutation(ev, origin.ConnID)
	h.logger.Debug("mutation applied",
		"group", groupID, "kind", kind, "item", itemID, "seq", ev.Seq, "member", origin.MemberID, "delivered", n)
}

func checkGroup(groupID string) error {
	if strings.TrimSpace(groupID) == "" {
		return inventory.NewValidationError("groupId", "groupId is required")
	}
	return nil
}

// storeErr maps a store failure to not-found or a store error.
func storeErr(op, groupID, itemID string, err error) error {
	if errors.Is(err, inventory.ErrNotFound) {
		return inventory.NewNotFoundError(groupID, itemID)
	}
	return inventory.NewStoreError(op, err)
}
