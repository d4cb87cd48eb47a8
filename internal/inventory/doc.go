// Package inventory defines the shared item model that a group of members
// edits together, and the rules every mutation of it obeys.
//
// The package is pure: it knows nothing about storage or transport. It owns:
//   - Item and Patch: the stored row and a partial update of it
//   - MutationEvent: the record of one applied add, update or delete
//   - Duplicate detection: bidirectional case-folded name containment plus
//     potency equality, yielding a DuplicateDescriptor for the caller to
//     resolve with merge, keep-both or skip
//   - Validation: required fields and quantity bounds, expressed as a CUE
//     schema (schema.cue) and checked with the CUE Go API
//   - Error: structured errors with stable codes for transports to map
//
// # Invariants
//
//   - Quantity is never negative
//   - GroupID never changes after creation (Patch has no GroupID field)
//   - Item IDs are unique within one store, not meaningful across groups
package inventory
