// Package transport dials the UAMP/MVISP TCP stream and wraps it so that
// reads and writes report the distinct failure kinds the protocol's error
// taxonomy distinguishes (read vs. write vs. premature close) instead of a
// generic io.EOF.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Sentinel errors a caller can match with errors.Is. They are deliberately
// distinct from any error kind in the root package; the session layer maps
// them onto its own Code taxonomy so this package stays free of an import
// cycle back to the root package that depends on it.
var (
	ErrInvalidPort   = errors.New("transport: port 0 is not usable")
	ErrResolveHost   = errors.New("transport: hostname resolution failed")
	ErrCreateSocket  = errors.New("transport: socket creation failed")
	ErrConnectSocket = errors.New("transport: socket connect failed")
	ErrRead          = errors.New("transport: socket read failed")
	ErrWrite         = errors.New("transport: socket write failed")
	ErrDry           = errors.New("transport: socket closed before expected data arrived")
)

// Conn wraps a net.Conn so that Read/Write return the sentinel errors above
// instead of raw net/io errors, and applies TCP_NODELAY once connected —
// the protocol is a long sequence of small framed round trips, and Nagle's
// algorithm would otherwise add latency to every one of them.
type Conn struct {
	net.Conn
}

// Dial resolves host:port, connects a TCP stream, and enables TCP_NODELAY.
func Dial(host string, port uint16) (*Conn, error) {
	if port == 0 {
		return nil, ErrInvalidPort
	}

	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolveHost, err)
	}

	conn, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectSocket, err)
	}

	if err := setNoDelay(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrCreateSocket, err)
	}

	return &Conn{Conn: conn}, nil
}

// setNoDelay disables Nagle's algorithm on the raw fd backing conn.
func setNoDelay(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Read implements io.Reader, translating a clean EOF into ErrDry (the
// connection closed before the framed read it was servicing completed) and
// any other failure into ErrRead.
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err == nil {
		return n, nil
	}
	// io.EOF means the peer closed the stream ("no more data"); every other
	// error is a read fault.
	if errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: %v", ErrDry, err)
	}
	return n, fmt.Errorf("%w: %v", ErrRead, err)
}

// Write implements io.Writer, translating any failure into ErrWrite.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return n, nil
}
