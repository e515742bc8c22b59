// Package statename validates and encodes the MVISP state-name block: the
// ordered list of state labels a client advertises once it accepts a
// server's specification.
package statename

import (
	"bytes"
	"errors"
	"io"

	"github.com/behrlich/go-uamp/internal/wire"
)

// MaxNameLen is the longest a single state name may be, matching the
// original's MAX_NAME_LEN.
const MaxNameLen = 1024

// Sentinel errors reported by Verify. The session layer maps these onto its
// own Code taxonomy.
var (
	ErrZeroLength = errors.New("statename: a state name was empty")
	ErrTooLong    = errors.New("statename: a state name exceeded the maximum length")
	ErrDuplicate  = errors.New("statename: two state names were byte-identical")
)

// Verify checks that every name in names has a length in [1, MaxNameLen]
// and that no two names are byte-identical. Names are compared in the
// order given, an agent must supply at least one name before calling this
// (callers are expected to reject numStates == 0 themselves, since that
// case maps to a different Code than any of these).
func Verify(names []string) error {
	for i, name := range names {
		if len(name) == 0 {
			return ErrZeroLength
		}
		if len(name) > MaxNameLen {
			return ErrTooLong
		}
		for j := 0; j < i; j++ {
			if names[j] == name {
				return ErrDuplicate
			}
		}
	}
	return nil
}

// Write emits the wire format for an already-verified name list: u32 count,
// u32 length per name in order, then the raw bytes of each name in order.
func Write(w io.Writer, fb *wire.FrameBuffer, names []string) error {
	total := uint64(4) + uint64(4)*uint64(len(names))
	for _, n := range names {
		total += uint64(len(n))
	}

	fb.BeginWrite(total)
	if err := fb.WriteU32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, n := range names {
		if err := fb.WriteU32(w, uint32(len(n))); err != nil {
			return err
		}
	}
	for _, n := range names {
		if err := fb.WriteBytes(w, []byte(n)); err != nil {
			return err
		}
	}
	return nil
}

// Encode is a test/inspection helper returning the wire bytes Write would
// send, without requiring a live connection.
func Encode(names []string) ([]byte, error) {
	var buf bytes.Buffer
	fb := wire.New()
	if err := Write(&buf, fb, names); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
