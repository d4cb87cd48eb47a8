// Package hub keeps track of who is connected to which group and delivers
// inventory events to them.
//
// A Hub combines four roles:
//
//   - the connection registry (join, leave, send-failure pruning)
//   - the broadcast fan-out of one event to every live member of a group
//   - the snapshot sent once to each connection right after it joins
//   - the membership directory, a read-only view of the registry
//
// Joins and broadcasts for a group run inside that group's dispatch lane,
// the same lane mutations use, so a joining connection always receives its
// FULL_INVENTORY before any INVENTORY_UPDATE and every member observes a
// group's events in the order they were applied.
package hub
