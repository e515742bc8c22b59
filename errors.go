// Package uamp implements the client side of the UAMP and MVISP mobility
// protocols: a handshake/connect state machine, a per-agent bounded update
// queue with server-driven prefetch, a cross-agent time cursor, an outbound
// state-change batcher, and the framed I/O buffer that mediates all of it.
package uamp

import (
	"errors"
	"fmt"
)

// Code is a closed enumeration of the failure modes a Session can report.
// Every exported function returns either success or a single Code, wrapped
// in an *Error; none of them swallow an error internally.
type Code string

const (
	// Argument validation
	ErrInvalidPort        Code = "invalid port"
	ErrInvalidNumAgents   Code = "invalid number of agents"
	ErrInvalidTimeLimit   Code = "invalid time limit"
	ErrInvalidNumStates   Code = "invalid number of states"
	ErrZeroStateLength    Code = "zero-length state name"
	ErrStateLengthLong    Code = "state name too long"
	ErrDuplicateState     Code = "duplicate state name"
	ErrInvalidChangeTime  Code = "invalid state-change time"
	ErrInvalidChangeState Code = "invalid state-change state"
	ErrInvalidFeatures    Code = "invalid feature bits"
	ErrNoIntersection     Code = "no valid intersection window"
	ErrNoMoreData         Code = "no more data"

	// Transport
	ErrHostnameInformation Code = "hostname resolution failed"
	ErrCreateSocket        Code = "socket creation failed"
	ErrConnectSocket       Code = "socket connect failed"
	ErrSocketRead          Code = "socket read failed"
	ErrSocketWrite         Code = "socket write failed"
	ErrSocketDry           Code = "socket closed before expected data arrived"
	ErrOutOfMemory         Code = "out of memory"

	// Handshake negotiation
	ErrUampClientMvispServer       Code = "UAMP client connected to MVISP server"
	ErrMvispClientUampServer       Code = "MVISP client connected to UAMP server"
	ErrServerUnknownHandshake      Code = "server sent an unrecognised handshake tag"
	ErrNoSharedVersion             Code = "client and server share no protocol version"
	Err2DClient3DServer            Code = "server requires 3D but client does not support it"
	ErrAddRemoveUnsupported        Code = "server requires add/remove but client does not support it"
	ErrServerRejectedHandshake     Code = "server rejected the handshake"
	ErrServerClientVersionDisagree Code = "server acknowledged a version the client did not offer"

	// Specification negotiation
	ErrSimulationDenied      Code = "simulation request denied"
	ErrSimulationResponseBad Code = "server sent an unrecognised simulation response"
	ErrMvispNoAgents         Code = "MVISP server offered zero agents"

	// Protocol-level verification
	ErrFirstUpdateTime         Code = "first update for an agent did not have time 0"
	ErrNonEqualFinalUpdates    Code = "update after the final update was not byte-identical to it"
	ErrTimestampTooLarge       Code = "update time exceeded the time limit"
	ErrTimestampNotIncremented Code = "update time did not strictly increase"
	ErrInvalidPresentFlag      Code = "present flag was neither 0 nor 1"
)

// descriptions mirrors the human-readable table in the protocol's error
// taxonomy (spec §7); Describe is the Go equivalent of uampError/returnToString
// from the C original.
var descriptions = map[Code]string{
	ErrInvalidPort:        "port number 0 is not usable",
	ErrInvalidNumAgents:   "number of agents must be positive and fit in a uint32",
	ErrInvalidTimeLimit:   "time limit must be within [0, MAX_TIME]",
	ErrInvalidNumStates:   "number of states must be positive and fit in a uint32",
	ErrZeroStateLength:    "a state name was empty",
	ErrStateLengthLong:    "a state name exceeded 1024 bytes",
	ErrDuplicateState:     "two state names were byte-identical",
	ErrInvalidChangeTime:  "state-change time was negative, exceeded MAX_TIME, or exceeded the session time limit",
	ErrInvalidChangeState: "state-change new-state index was out of range",
	ErrInvalidFeatures:    "client advertised a feature bit the protocol does not define",
	ErrNoIntersection:     "largestLastTime exceeds smallestCurrentTime",
	ErrNoMoreData:         "the agent, or every agent, has reached the time limit",

	ErrHostnameInformation: "could not resolve the given hostname",
	ErrCreateSocket:        "could not create a stream socket",
	ErrConnectSocket:       "could not connect to the resolved address",
	ErrSocketRead:          "the underlying socket returned a read error",
	ErrSocketWrite:         "the underlying socket returned a write error",
	ErrSocketDry:           "the socket reached EOF before the framed read completed",
	ErrOutOfMemory:         "memory allocation failed",

	ErrUampClientMvispServer:       "a UAMP client connected to a server speaking MVISP",
	ErrMvispClientUampServer:       "an MVISP client connected to a server speaking UAMP",
	ErrServerUnknownHandshake:      "the server's handshake tag was neither UAMP nor MVIS",
	ErrNoSharedVersion:             "the server's version bitmask shares no bit with the client's",
	Err2DClient3DServer:            "the server advertises 3D support the client did not request",
	ErrAddRemoveUnsupported:        "the server advertises add/remove the client did not request",
	ErrServerRejectedHandshake:     "the server sent a reject byte after the version exchange",
	ErrServerClientVersionDisagree: "the server acknowledged a version different from the one the client chose",

	ErrSimulationDenied:      "the server, or the client's accept predicate, denied the specification",
	ErrSimulationResponseBad: "the server's simulation response byte was neither accept nor deny",
	ErrMvispNoAgents:         "the MVISP server offered a specification with zero agents",

	ErrFirstUpdateTime:         "an agent's first update did not have time == 0",
	ErrNonEqualFinalUpdates:    "an update following the final update was not byte-identical to it",
	ErrTimestampTooLarge:       "an update's time exceeded the session's time limit",
	ErrTimestampNotIncremented: "an update's time did not strictly exceed the previous update's time",
	ErrInvalidPresentFlag:      "an update's present byte was neither 0x00 nor 0x01",
}

// Describe returns the human-readable description for a Code, or "" if the
// code is not part of the closed taxonomy.
func Describe(code Code) string {
	return descriptions[code]
}

// Error is the structured error type returned by every public Session
// operation that can fail. Op names the operation that failed (e.g.
// "Connect", "fillUpdateQueues"); Code classifies the failure; Err, when
// non-nil, is the underlying cause (typically a transport error).
type Error struct {
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	desc := Describe(e.Code)
	if desc == "" {
		desc = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("uamp: %s: %s: %v", e.Op, desc, e.Err)
	}
	return fmt.Sprintf("uamp: %s: %s", e.Op, desc)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, uamp.ErrNoMoreData) to match an *Error carrying
// that code directly against the bare Code sentinel.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if code, ok := target.(Code); ok {
		return e.Code == code
	}
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

func (c Code) Error() string {
	return string(c)
}

// newError constructs a structured *Error for the given operation and code.
func newError(op string, code Code) *Error {
	return &Error{Op: op, Code: code}
}

// wrapError constructs a structured *Error that also carries an underlying
// cause, e.g. the transport error behind a SocketRead failure.
func wrapError(op string, code Code, cause error) *Error {
	return &Error{Op: op, Code: code, Err: cause}
}

// CodeOf extracts the Code carried by err, if err is (or wraps) an *Error.
// The second return value is false for errors outside the taxonomy.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
