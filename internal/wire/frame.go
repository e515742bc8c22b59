// Package wire implements the length-prefixed framed I/O buffer that
// mediates every read and write of the UAMP/MVISP protocols: a caller
// declares the exact number of bytes a logical message will consume before
// issuing any typed read or write, and the buffer refills or flushes an
// underlying socket as needed while enforcing that the declared total is
// neither over- nor under-consumed.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// bufferSize is the fixed backing-array capacity, matching the original
// UAMP_IO_BUFFER_SIZE.
const bufferSize = 2048

// FrameBuffer wraps an underlying byte stream with a declared-length framing
// discipline. It is not safe for concurrent use, and a single FrameBuffer is
// shared by both the read and write sides of a session since UAMP/MVISP
// never read and write at the same time.
type FrameBuffer struct {
	buf      [bufferSize]byte
	inBuffer int
	total    uint64
	passed   uint64
}

// New returns a FrameBuffer ready for its first BeginRead or BeginWrite.
func New() *FrameBuffer {
	return &FrameBuffer{}
}

// BeginRead declares that the next total bytes, read through any
// combination of ReadU8/ReadU32/ReadBytes, constitute one logical message.
func (f *FrameBuffer) BeginRead(total uint64) {
	f.total = total
	f.passed = 0
	f.inBuffer = 0
}

// BeginWrite declares that the next total bytes, written through any
// combination of WriteU8/WriteU32/WriteBytes, constitute one logical
// message.
func (f *FrameBuffer) BeginWrite(total uint64) {
	f.total = total
	f.passed = 0
	f.inBuffer = 0
}

// checkBudget panics if consuming width more bytes would exceed the total
// declared by the most recent BeginRead/BeginWrite — the Go equivalent of
// the original's ASSERT-and-abort on a framing contract violation.
func (f *FrameBuffer) checkBudget(width uint64) {
	newPassed := f.passed + width
	if newPassed < f.passed || newPassed > f.total {
		panic(fmt.Sprintf("wire: frame budget exceeded: passed=%d width=%d total=%d", f.passed, width, f.total))
	}
}

// ReadU8 reads a single byte, refilling from r as necessary.
func (f *FrameBuffer) ReadU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if err := f.readRaw(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU32 reads a 32-bit big-endian unsigned integer, refilling from r as
// necessary.
func (f *FrameBuffer) ReadU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := f.readRaw(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadBytes reads n raw bytes, refilling from r as necessary.
func (f *FrameBuffer) ReadBytes(r io.Reader, n int) ([]byte, error) {
	out := make([]byte, n)
	if err := f.readRaw(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// readRaw implements socketReadRaw: drain the backing buffer, refilling from
// r in chunks no larger than bufferSize and no larger than what remains of
// the declared total, placing short reads at the high end of the buffer so
// consumers always read from a known offset.
func (f *FrameBuffer) readRaw(r io.Reader, data []byte) error {
	length := len(data)
	f.checkBudget(uint64(length))

	for length > 0 {
		if f.inBuffer == 0 {
			remaining := f.total - f.passed
			thisTime := bufferSize
			if remaining < bufferSize {
				thisTime = int(remaining)
			}
			start := bufferSize - thisTime
			if _, err := io.ReadFull(r, f.buf[start:start+thisTime]); err != nil {
				return err
			}
			f.inBuffer = thisTime
		}

		thisTime := f.inBuffer
		if length < thisTime {
			thisTime = length
		}
		off := len(data) - length
		copy(data[off:off+thisTime], f.buf[bufferSize-f.inBuffer:])
		length -= thisTime
		f.inBuffer -= thisTime
		f.passed += uint64(thisTime)
	}
	return nil
}

// WriteU8 buffers a single byte, flushing to w as necessary.
func (f *FrameBuffer) WriteU8(w io.Writer, v uint8) error {
	return f.writeRaw(w, []byte{v})
}

// WriteU32 buffers a 32-bit big-endian unsigned integer, flushing to w as
// necessary.
func (f *FrameBuffer) WriteU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return f.writeRaw(w, b[:])
}

// WriteBytes buffers raw bytes, flushing to w as necessary.
func (f *FrameBuffer) WriteBytes(w io.Writer, data []byte) error {
	return f.writeRaw(w, data)
}

// writeRaw implements socketWriteRaw: accumulate data into the backing
// buffer, flushing to w whenever the buffer fills or the declared total has
// been fully supplied.
func (f *FrameBuffer) writeRaw(w io.Writer, data []byte) error {
	f.checkBudget(uint64(len(data)))

	for len(data) > 0 {
		space := bufferSize - f.inBuffer
		thisTime := space
		if len(data) < thisTime {
			thisTime = len(data)
		}
		copy(f.buf[f.inBuffer:], data[:thisTime])
		data = data[thisTime:]
		f.inBuffer += thisTime
		f.passed += uint64(thisTime)

		if f.inBuffer == bufferSize || f.passed == f.total {
			if _, err := w.Write(f.buf[:f.inBuffer]); err != nil {
				return err
			}
			f.inBuffer = 0
		}
	}
	return nil
}
