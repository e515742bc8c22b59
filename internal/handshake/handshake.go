// Package handshake implements the 9-byte UAMP/MVISP role/version/feature
// exchange both protocols share, including the reject-byte-on-failure
// behavior: a mismatch found in the server's 9-byte reply (role tag, shared
// version, or feature bits) causes a single 0x00 byte to be sent to the
// server before the caller closes the connection. Failures reported by the
// server's acknowledgement byte send nothing further.
package handshake

import (
	"errors"
	"io"

	"github.com/behrlich/go-uamp/internal/wire"
)

// Sentinel errors reported by Perform. The session layer maps these onto
// its own Code taxonomy.
var (
	ErrInvalidFeatures             = errors.New("handshake: client advertised an undefined feature bit")
	ErrUampClientMvispServer       = errors.New("handshake: UAMP client connected to an MVISP server")
	ErrMvispClientUampServer       = errors.New("handshake: MVISP client connected to a UAMP server")
	ErrServerUnknownHandshake      = errors.New("handshake: server sent an unrecognised role tag")
	ErrNoSharedVersion             = errors.New("handshake: client and server share no protocol version")
	Err2DClient3DServer            = errors.New("handshake: server requires 3D support the client did not advertise")
	ErrAddRemoveUnsupported        = errors.New("handshake: server requires add/remove support the client did not advertise")
	ErrServerRejectedHandshake     = errors.New("handshake: server rejected the handshake")
	ErrServerClientVersionDisagree = errors.New("handshake: server acknowledged a version the client did not offer")
)

// Perform runs the shared handshake over rw, using fb as the framing
// buffer. isUAMP selects which role tag the client sends ("UAMP" vs.
// "MVIS"); supportedFeatures is the client's feature bitmask. On success it
// returns the server's advertised feature bitmask.
func Perform(rw io.ReadWriter, fb *wire.FrameBuffer, isUAMP bool, supportedFeatures uint32) (uint32, error) {
	if supportedFeatures&^wire.FeatureKnownMask != 0 {
		return 0, ErrInvalidFeatures
	}

	fb.BeginWrite(9)
	tag := wire.RoleTagMVISP
	if isUAMP {
		tag = wire.RoleTagUAMP
	}
	if err := fb.WriteBytes(rw, []byte(tag)); err != nil {
		return 0, err
	}
	if err := fb.WriteU8(rw, wire.VersionBit); err != nil {
		return 0, err
	}
	if err := fb.WriteU32(rw, supportedFeatures); err != nil {
		return 0, err
	}

	fb.BeginRead(9)
	id, err := fb.ReadBytes(rw, 4)
	if err != nil {
		return 0, err
	}
	serverVersions, err := fb.ReadU8(rw)
	if err != nil {
		return 0, err
	}
	serverFeatures, err := fb.ReadU32(rw)
	if err != nil {
		return 0, err
	}

	if negErr := verifyIdentity(isUAMP, string(id)); negErr != nil {
		sendReject(rw, fb)
		return 0, negErr
	}
	if serverVersions&wire.VersionBit == 0 {
		sendReject(rw, fb)
		return 0, ErrNoSharedVersion
	}
	if serverFeatures&wire.FeatureSupports3D != 0 && supportedFeatures&wire.FeatureSupports3D == 0 {
		sendReject(rw, fb)
		return 0, Err2DClient3DServer
	}
	if serverFeatures&wire.FeatureSupportsAddRemove != 0 && supportedFeatures&wire.FeatureSupportsAddRemove == 0 {
		sendReject(rw, fb)
		return 0, ErrAddRemoveUnsupported
	}

	fb.BeginWrite(1)
	if err := fb.WriteU8(rw, wire.VersionBit); err != nil {
		return 0, err
	}

	fb.BeginRead(1)
	ack, err := fb.ReadU8(rw)
	if err != nil {
		return 0, err
	}
	if ack == 0 {
		return 0, ErrServerRejectedHandshake
	}
	if ack != wire.VersionBit {
		return 0, ErrServerClientVersionDisagree
	}

	return serverFeatures, nil
}

func verifyIdentity(isUAMP bool, id string) error {
	if isUAMP {
		if id == wire.RoleTagMVISP {
			return ErrUampClientMvispServer
		}
		if id != wire.RoleTagUAMP {
			return ErrServerUnknownHandshake
		}
	} else {
		if id == wire.RoleTagUAMP {
			return ErrMvispClientUampServer
		}
		if id != wire.RoleTagMVISP {
			return ErrServerUnknownHandshake
		}
	}
	return nil
}

// sendReject sends the single-byte rejection the protocol requires after a
// negotiation failure. Write errors here are deliberately ignored: the
// session is being torn down regardless of whether the peer ever sees the
// reject byte.
func sendReject(rw io.ReadWriter, fb *wire.FrameBuffer) {
	fb.BeginWrite(1)
	_ = fb.WriteU8(rw, 0x00)
}
