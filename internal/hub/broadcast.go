package hub

import (
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/protocol"
)

type outgoing struct {
	typ     protocol.Type
	payload any
	exclude string
}

// PublishMutation fans a mutation event out to the event's group, skipping
// excludeConnID. It returns the number of connections reached.
//
// The caller must be running in the group's lane.
func (h *Hub) PublishMutation(ev inventory.MutationEvent, excludeConnID string) int {
	return h.publish(ev.GroupID, protocol.TypeInventoryUpdate, protocol.NewInventoryUpdate(ev), excludeConnID)
}

// publish sends one message to every connection of groupID that has
// received its snapshot, except exclude. The message is encoded at most
// once per codec. A connection whose send fails is dropped; if it was
// active, its MEMBER_LEFT goes out after the current fan-out completes.
func (h *Hub) publish(groupID string, typ protocol.Type, payload any, exclude string) int {
	queue := []outgoing{{typ: typ, payload: payload, exclude: exclude}}
	delivered := 0

	for first := true; len(queue) > 0; first = false {
		msg := queue[0]
		queue = queue[1:]

		frames := make(map[protocol.Encoding][]byte)
		for _, t := range h.registry.targets(groupID) {
			if t.conn.ID() == msg.exclude || !t.state.receivesEvents() {
				continue
			}

			codec := t.conn.Codec()
			frame, ok := frames[codec.Encoding()]
			if !ok {
				var err error
				frame, err = codec.Encode(msg.typ, "", msg.payload)
				if err != nil {
					h.logger.Error("encode broadcast", "group", groupID, "type", msg.typ, "error", err)
					return delivered
				}
				frames[codec.Encoding()] = frame
			}

			if err := t.conn.Send(frame); err != nil {
				d, removed := h.drop(t.conn, err)
				if removed && d.state == StateActive {
					queue = append(queue, outgoing{typ: protocol.TypeMemberLeft, payload: d.notice()})
				}
				continue
			}
			if first {
				delivered++
			}
		}
	}
	return delivered
}
