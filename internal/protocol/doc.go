// Package protocol defines the messages exchanged over a live connection and
// the codecs that frame them.
//
// Every frame is an envelope {type, requestId, payload}. Clients send JOIN,
// MUTATE and LIST_MEMBERS; the server sends FULL_INVENTORY (once, right after
// join), INVENTORY_UPDATE, MEMBER_JOINED, MEMBER_LEFT, and direct replies
// (MUTATION_RESULT, DUPLICATE_FOUND, MEMBERS, ERROR) echoing the request id.
//
// Two encodings are supported, chosen per connection: JSON in text frames
// (the default) and CBOR in binary frames. Payload structs carry json tags
// only; the CBOR codec reads those same tags.
package protocol
