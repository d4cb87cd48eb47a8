package hub

import (
	"context"

	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/protocol"
)

// sendSnapshot sends groupID's full item list to conn as one
// FULL_INVENTORY message. A read failure is returned as a store error.
func (h *Hub) sendSnapshot(ctx context.Context, conn Conn, groupID, requestID string) error {
	items, err := h.source.ListItems(ctx, groupID)
	if err != nil {
		return inventory.NewStoreError("list items", err)
	}
	if items == nil {
		items = []inventory.Item{}
	}

	frame, err := conn.Codec().Encode(protocol.TypeFullInventory, requestID, protocol.FullInventory{
		GroupID: groupID,
		Items:   items,
	})
	if err != nil {
		return err
	}
	return conn.Send(frame)
}
