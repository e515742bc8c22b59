package handshake

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/behrlich/go-uamp/internal/wire"
)

func serverHandshake(t *testing.T, conn net.Conn, tag string, version uint8, features uint32, ack uint8) {
	t.Helper()
	buf := make([]byte, 9)
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("server read client handshake: %v", err)
	}

	out := make([]byte, 0, 9)
	out = append(out, []byte(tag)...)
	out = append(out, version)
	var fb [4]byte
	binary.BigEndian.PutUint32(fb[:], features)
	out = append(out, fb[:]...)
	if _, err := conn.Write(out); err != nil {
		t.Fatalf("server write handshake: %v", err)
	}

	choice := make([]byte, 1)
	if _, err := conn.Read(choice); err != nil {
		t.Fatalf("server read version choice: %v", err)
	}
	if _, err := conn.Write([]byte{ack}); err != nil {
		t.Fatalf("server write ack: %v", err)
	}
}

func TestPerformSucceedsWithMatchingTagAndFeatures(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		serverHandshake(t, server, "UAMP", 0x80, 0xC0000000, 0x80)
	}()

	fb := wire.New()
	features, err := Perform(client, fb, true, 0xC0000000)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if features != 0xC0000000 {
		t.Fatalf("expected server features 0xC0000000, got %#x", features)
	}
	<-done
}

func TestPerformRejectsMismatchedRoleTag(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 9)
		server.Read(buf)
		out := append([]byte("MVIS"), 0x80, 0, 0, 0, 0)
		server.SetWriteDeadline(time.Now().Add(time.Second))
		server.Write(out)
		reject := make([]byte, 1)
		server.Read(reject)
	}()

	fb := wire.New()
	_, err := Perform(client, fb, true, 0)
	if !errors.Is(err, ErrUampClientMvispServer) {
		t.Fatalf("expected ErrUampClientMvispServer, got %v", err)
	}
}

func TestPerformRejectsFeatureMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 9)
		server.Read(buf)
		out := append([]byte("UAMP"), 0x80, 0x80, 0, 0, 0)
		server.Write(out)
		reject := make([]byte, 1)
		server.Read(reject)
	}()

	fb := wire.New()
	_, err := Perform(client, fb, true, 0x00000000)
	if !errors.Is(err, Err2DClient3DServer) {
		t.Fatalf("expected Err2DClient3DServer, got %v", err)
	}
}

func TestPerformRejectsInvalidClientFeatures(t *testing.T) {
	fb := wire.New()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	_, err := Perform(client, fb, true, 0x00000001)
	if !errors.Is(err, ErrInvalidFeatures) {
		t.Fatalf("expected ErrInvalidFeatures, got %v", err)
	}
}

func TestPerformRejectsServerVersionDisagreement(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		serverHandshake(t, server, "UAMP", 0x80, 0, 0x40)
	}()

	fb := wire.New()
	_, err := Perform(client, fb, true, 0)
	if !errors.Is(err, ErrServerClientVersionDisagree) {
		t.Fatalf("expected ErrServerClientVersionDisagree, got %v", err)
	}
}
