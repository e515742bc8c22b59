// Package statebatch implements the outbound state-change batcher: bounded
// accumulation of (agent, time, new-state) triples, flushed to the wire in
// a single opcode-0x02 message once the bound is hit or the caller asks for
// an early flush (e.g. at Terminate).
package statebatch

import (
	"io"

	"github.com/behrlich/go-uamp/internal/wire"
)

// Capacity is the fixed bound on buffered, unflushed state changes.
const Capacity = 128

// Change is one outbound state-change entry.
type Change struct {
	Agent    uint32
	Time     uint32
	NewState uint32
}

// Batcher accumulates Changes and flushes them in Capacity-sized batches.
type Batcher struct {
	pending []Change
}

// New returns an empty Batcher.
func New() *Batcher {
	return &Batcher{pending: make([]Change, 0, Capacity)}
}

// Add appends a change to the batch. If the batch is now full, the caller
// must call Flush — Add itself never touches the wire so it can be used
// (and tested) without a connection.
func (b *Batcher) Add(c Change) (full bool) {
	b.pending = append(b.pending, c)
	return len(b.pending) == Capacity
}

// Len reports the number of buffered, unflushed changes.
func (b *Batcher) Len() int {
	return len(b.pending)
}

// Flush writes opcode 0x02, the change count, and each change as three u32
// fields, then resets the batch to empty. Flushing an empty batcher still
// writes the opcode and a zero count, matching flushStateChanges's
// unconditional write in the original (callers that want to skip an empty
// flush, e.g. Terminate, check Len() first).
func (b *Batcher) Flush(w io.Writer, fb *wire.FrameBuffer) error {
	total := uint64(1) + uint64(4) + uint64(12)*uint64(len(b.pending))
	fb.BeginWrite(total)

	if err := fb.WriteU8(w, wire.OpStateChanges); err != nil {
		return err
	}
	if err := fb.WriteU32(w, uint32(len(b.pending))); err != nil {
		return err
	}
	for _, c := range b.pending {
		if err := fb.WriteU32(w, c.Agent); err != nil {
			return err
		}
		if err := fb.WriteU32(w, c.Time); err != nil {
			return err
		}
		if err := fb.WriteU32(w, c.NewState); err != nil {
			return err
		}
	}

	b.pending = b.pending[:0]
	return nil
}
