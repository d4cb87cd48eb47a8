// Package ids generates identifiers: item ids, connection ids and the
// monotonic sequence stamped on mutation events.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces unique string identifiers.
// Implemented by UUIDv7Generator and ULIDGenerator (production) and
// FixedGenerator / SequentialGenerator (tests).
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids. Used for items.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ULIDGenerator generates ULIDs. Used for connection ids, which show up in
// logs where the shorter, lexically sortable form reads better.
//
// Thread-safety: ulid.Make uses a process-wide monotonic entropy source
// guarded by its own lock.
type ULIDGenerator struct{}

// Generate returns a new 26-character ULID.
func (ULIDGenerator) Generate() string {
	return ulid.Make().String()
}

// FixedGenerator returns predetermined ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequentialGenerator returns prefix-1, prefix-2, ... without limit.
// Deterministic and safe for concurrent use; handy for scenario tests.
type SequentialGenerator struct {
	prefix string
	seq    Sequence
}

// NewSequentialGenerator creates a generator for ids "<prefix>-<n>".
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.seq.Next())
}
