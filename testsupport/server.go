// Package testsupport is an exported test-utility package: it gives callers
// outside this repository a scripted UAMP/MVISP server to dial against,
// without requiring a real simulation backend.
package testsupport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// Script is server-side protocol logic run against one accepted connection.
// It is handed a raw net.Conn — not a *transport.Conn — so it can exercise
// the client's handling of malformed or adversarial byte sequences as well
// as well-formed ones.
type Script func(conn net.Conn) error

// Server is a scripted TCP listener standing in for a UAMP/MVISP server.
// It accepts a single connection and hands it to Script in a background
// goroutine; later connection attempts are not accepted. Any error the
// script returns is recorded and surfaced through Err after Wait.
type Server struct {
	ln     net.Listener
	script Script

	mu   sync.Mutex
	errs []error
	done chan struct{}
}

// Start begins listening on 127.0.0.1 with an OS-assigned port and runs
// script against the first accepted connection. Call Close when finished.
func Start(script Script) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("testsupport: listen: %w", err)
	}
	s := &Server{ln: ln, script: script, done: make(chan struct{})}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	if err := s.script(conn); err != nil {
		s.mu.Lock()
		s.errs = append(s.errs, err)
		s.mu.Unlock()
	}
}

// Addr returns the loopback host and port the server is listening on.
func (s *Server) Addr() (string, uint16) {
	tcpAddr := s.ln.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), uint16(tcpAddr.Port)
}

// Wait blocks until the accepted connection's script has returned.
func (s *Server) Wait() {
	<-s.done
}

// Err returns the first error a script reported, if any, after Wait.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[0]
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

// --- Wire encode/decode helpers for hand-written scripts ---

// ReadHandshake reads the 9-byte client handshake: a 4-byte role tag, a
// 1-byte version bitmask, and a 4-byte feature bitmask.
func ReadHandshake(conn net.Conn) (tag string, version uint8, features uint32, err error) {
	buf := make([]byte, 9)
	if _, err = io.ReadFull(conn, buf); err != nil {
		return "", 0, 0, err
	}
	return string(buf[0:4]), buf[4], binary.BigEndian.Uint32(buf[5:9]), nil
}

// WriteHandshake writes a 9-byte server handshake reply.
func WriteHandshake(conn net.Conn, tag string, version uint8, features uint32) error {
	buf := make([]byte, 0, 9)
	buf = append(buf, []byte(tag)...)
	buf = append(buf, version)
	var fb [4]byte
	binary.BigEndian.PutUint32(fb[:], features)
	buf = append(buf, fb[:]...)
	_, err := conn.Write(buf)
	return err
}

// ReadVersionChoice reads the 1-byte version the client chose.
func ReadVersionChoice(conn net.Conn) (uint8, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteAck writes the 1-byte handshake acknowledgement (0 to reject).
func WriteAck(conn net.Conn, ack uint8) error {
	_, err := conn.Write([]byte{ack})
	return err
}

// ReadUint32 reads one big-endian u32.
func ReadUint32(conn net.Conn) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// WriteUint32 writes one big-endian u32.
func WriteUint32(conn net.Conn, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := conn.Write(buf[:])
	return err
}

// ReadByte reads a single byte.
func ReadByte(conn net.Conn) (uint8, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteByte writes a single byte.
func WriteByte(conn net.Conn, v uint8) error {
	_, err := conn.Write([]byte{v})
	return err
}

// ReadLocationRequest reads a LOCATION_REQUEST message (opcode 0x01
// already consumed by the caller is not assumed: this reads the opcode
// too) and returns the requested agent ids in order.
func ReadLocationRequest(conn net.Conn) (agentIDs []uint32, err error) {
	opcode, err := ReadByte(conn)
	if err != nil {
		return nil, err
	}
	if opcode != 0x01 {
		return nil, fmt.Errorf("testsupport: expected opcode 0x01, got %#x", opcode)
	}
	count, err := ReadUint32(conn)
	if err != nil {
		return nil, err
	}
	agentIDs = make([]uint32, count)
	for i := range agentIDs {
		agentIDs[i], err = ReadUint32(conn)
		if err != nil {
			return nil, err
		}
	}
	return agentIDs, nil
}

// UpdateReply is one server reply slot for a requested agent update.
type UpdateReply struct {
	Time, X, Y, Z uint32
	Present       bool
}

// WriteUpdateReply writes one reply slot, including Z only if supports3D
// and the present byte only if supportsAddRemove — mirroring how the
// negotiated feature set shapes every subsequent reply's width.
func WriteUpdateReply(conn net.Conn, u UpdateReply, supports3D, supportsAddRemove bool) error {
	if err := WriteUint32(conn, u.Time); err != nil {
		return err
	}
	if err := WriteUint32(conn, u.X); err != nil {
		return err
	}
	if err := WriteUint32(conn, u.Y); err != nil {
		return err
	}
	if supports3D {
		if err := WriteUint32(conn, u.Z); err != nil {
			return err
		}
	}
	if supportsAddRemove {
		present := uint8(0)
		if u.Present {
			present = 1
		}
		if err := WriteByte(conn, present); err != nil {
			return err
		}
	}
	return nil
}

// ReadStateChangeFlush reads one flushed state-change batch (opcode 0x02
// already expected) and returns the decoded triples.
type StateChange struct {
	Agent, Time, NewState uint32
}

func ReadStateChangeFlush(conn net.Conn) ([]StateChange, error) {
	opcode, err := ReadByte(conn)
	if err != nil {
		return nil, err
	}
	if opcode != 0x02 {
		return nil, fmt.Errorf("testsupport: expected opcode 0x02, got %#x", opcode)
	}
	count, err := ReadUint32(conn)
	if err != nil {
		return nil, err
	}
	out := make([]StateChange, count)
	for i := range out {
		agent, err := ReadUint32(conn)
		if err != nil {
			return nil, err
		}
		t, err := ReadUint32(conn)
		if err != nil {
			return nil, err
		}
		newState, err := ReadUint32(conn)
		if err != nil {
			return nil, err
		}
		out[i] = StateChange{Agent: agent, Time: t, NewState: newState}
	}
	return out, nil
}

// ReadStateNames reads the MVISP state-name block a client sends after
// accepting a specification.
func ReadStateNames(conn net.Conn) ([]string, error) {
	count, err := ReadUint32(conn)
	if err != nil {
		return nil, err
	}
	lengths := make([]uint32, count)
	for i := range lengths {
		lengths[i], err = ReadUint32(conn)
		if err != nil {
			return nil, err
		}
	}
	names := make([]string, count)
	for i, l := range lengths {
		buf := make([]byte, l)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return nil, err
		}
		names[i] = string(buf)
	}
	return names, nil
}

// ReadTerminate reads the 5-byte termination frame (opcode 0x00 + u32 0).
func ReadTerminate(conn net.Conn) error {
	opcode, err := ReadByte(conn)
	if err != nil {
		return err
	}
	if opcode != 0x00 {
		return fmt.Errorf("testsupport: expected opcode 0x00, got %#x", opcode)
	}
	_, err = ReadUint32(conn)
	return err
}
