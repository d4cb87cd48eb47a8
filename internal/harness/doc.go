// Package harness replays scripted conversations against a live hub.
//
// A scenario drives recording connections through joins, mutations and
// departures in one group, against a real Hub, Mutation Handler and an
// in-memory SQLite store. Every connection records the frames it was sent;
// assertions then check who received what, in which order, and what the
// group ended up holding.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: merge_duplicate
//	description: "Bob merges a second bottle into Alice's Arnica"
//	group: FAMILY01
//	steps:
//	  - do: connect
//	    conn: alice
//	  - do: join
//	    conn: alice
//	    member: alice
//	    name: Alice
//	  - do: add
//	    conn: alice
//	    item: { name: Arnica, potency: 30C, company: Boiron, location: Kitchen, quantity: 1 }
//	  - do: resolve
//	    conn: bob
//	    resolution: merge
//	    existing: item-1
//	    item: { name: arnica montana, potency: 30c, company: Boiron, location: Bath, quantity: 2 }
//	assertions:
//	  - type: receives
//	    conn: alice
//	    message: INVENTORY_UPDATE
//	    contains: "UPDATE item-1 qty=3"
//	  - type: items
//	    items:
//	      - { name: Arnica, quantity: 3 }
//
// # Steps
//
//   - connect: open a recording connection (encoding json or cbor)
//   - join: JOIN the scenario's group as member/name
//   - add: add an item; a duplicate is reported, not applied
//   - resolve: add with an explicit merge, keep-both or skip resolution
//   - update: patch item_id
//   - delete: remove item_id
//   - disconnect: leave the group
//   - fail_sends: make the connection's sends fail (fail: true) or recover
//
// A mutation step without conn runs as a request from outside any live
// connection, so its update reaches every member. Each step may name the
// outcome it expects: ok (the default), duplicate, skipped, or an error
// code such as NOT_FOUND.
//
// Item ids are assigned item-1, item-2, ... in insertion order and the
// clock is frozen, so traces are identical across runs and can be compared
// against golden files.
//
// # Assertion Types
//
//   - receives: conn was sent at least one message of the type
//   - count: conn was sent exactly count messages of the type
//   - order: conn's messages include the listed types in that order
//   - members: the group's live members, in join order
//   - items: the group's final items, in list order
package harness
