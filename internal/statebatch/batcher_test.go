package statebatch

import (
	"bytes"
	"testing"

	"github.com/behrlich/go-uamp/internal/wire"
)

func TestAddSignalsFullAtCapacity(t *testing.T) {
	b := New()
	for i := 0; i < Capacity-1; i++ {
		if full := b.Add(Change{Agent: uint32(i)}); full {
			t.Fatalf("unexpected full signal at entry %d", i)
		}
	}
	if full := b.Add(Change{Agent: Capacity - 1}); !full {
		t.Fatal("expected full signal at capacity")
	}
}

func TestFlushWritesOpcodeCountAndTriples(t *testing.T) {
	b := New()
	b.Add(Change{Agent: 1, Time: 500, NewState: 1})
	b.Add(Change{Agent: 2, Time: 600, NewState: 0})

	var out bytes.Buffer
	fb := wire.New()
	if err := b.Flush(&out, fb); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := []byte{
		0x02,                   // opcode
		0x00, 0x00, 0x00, 0x02, // count
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0xf4, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x02, 0x58, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("Flush output = % x, want % x", out.Bytes(), want)
	}
	if b.Len() != 0 {
		t.Fatalf("expected batcher to be empty after flush, got %d", b.Len())
	}
}

func TestFlushOfEmptyBatcherWritesZeroCount(t *testing.T) {
	b := New()
	var out bytes.Buffer
	fb := wire.New()
	if err := b.Flush(&out, fb); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	want := []byte{0x02, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("Flush output = % x, want % x", out.Bytes(), want)
	}
}
