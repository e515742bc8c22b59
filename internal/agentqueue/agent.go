// Package agentqueue implements the per-agent circular update queue: a
// fixed-capacity ring of decoded updates with separate consumer and
// producer cursors, plus the server-ordering verification the protocol
// requires of every incoming reply. It knows nothing about sockets — the
// session layer owns the request/reply round trip and calls ReceiveUpdate
// once per decoded reply.
package agentqueue

import (
	"errors"
	"fmt"

	"github.com/behrlich/go-uamp/internal/wire"
)

// Capacity is the fixed ring size shared by every agent's update queue.
const Capacity = 6

// Sentinel errors for the server-ordering invariants. The session layer maps
// these onto its own Code taxonomy. ReceiveUpdate returns all of them except
// ErrInvalidPresentFlag, which it never returns (see ReceiveUpdate).
var (
	ErrFirstUpdateTime         = errors.New("agentqueue: first update for an agent must have time 0")
	ErrNonEqualFinalUpdates    = errors.New("agentqueue: update following the final update was not byte-identical to it")
	ErrTimestampNotIncremented = errors.New("agentqueue: update time did not strictly increase")
	ErrTimestampTooLarge       = errors.New("agentqueue: update time exceeded the time limit")
	ErrInvalidPresentFlag      = errors.New("agentqueue: present flag was neither 0 nor 1")
)

// Agent is the circular update queue for a single agent: six ring slots,
// a consumer cursor (currentIndex), a producer cursor (recvIndex), a count
// of slots still reachable by the consumer (aliveInQueue), and whether the
// final update (time == time limit) has already been seen.
type Agent struct {
	updates       [Capacity]wire.Update
	currentIndex  int
	recvIndex     int
	aliveInQueue  int
	receivedFinal bool
}

// New returns an Agent with an empty queue.
func New() *Agent {
	return &Agent{}
}

// NumToRequest returns how many updates should be requested to fill this
// agent's queue: zero once the final update has been received, otherwise
// the number of empty ring slots.
func (a *Agent) NumToRequest() uint32 {
	if a.receivedFinal {
		return 0
	}
	return uint32(Capacity - a.aliveInQueue)
}

// ReceiveUpdate stores and verifies one decoded reply from the server,
// applying the protocol's ordering invariants in the order the original
// implementation checks them:
//  1. the first-ever reply for an agent must have time 0;
//  2. once the final update has been seen, every later reply must be
//     byte-identical to it;
//  3. otherwise time must strictly increase and never exceed timeLimit,
//     and time == timeLimit marks the final update.
//
// The present flag is not checked here: Update.Present is already a bool,
// and the session validates the raw present byte after this call returns.
func (a *Agent) ReceiveUpdate(u wire.Update, timeLimit uint32) error {
	if a.aliveInQueue == 0 {
		if u.Time != 0 {
			return ErrFirstUpdateTime
		}
	} else {
		prev := a.recvIndex - 1
		if prev < 0 {
			prev = Capacity - 1
		}
		previous := a.updates[prev]
		if a.receivedFinal {
			if !u.Equal(previous) {
				return ErrNonEqualFinalUpdates
			}
		} else {
			if u.Time <= previous.Time {
				return ErrTimestampNotIncremented
			}
			if u.Time > timeLimit {
				return ErrTimestampTooLarge
			}
			if u.Time == timeLimit {
				a.receivedFinal = true
			}
		}
	}

	a.updates[a.recvIndex] = u
	a.aliveInQueue++
	a.recvIndex = (a.recvIndex + 1) % Capacity
	return nil
}

// Advance is the consumer side: it retires the previous update (unless the
// simulation has not started yet) and moves the consumer cursor forward.
// It reports whether the queue is now down to its last alive update, the
// signal the session uses to trigger another fill round trip.
func (a *Agent) Advance() (needsRefill bool) {
	if a.updates[a.currentIndex].Time != 0 {
		a.aliveInQueue--
	}
	a.currentIndex = (a.currentIndex + 1) % Capacity
	return a.aliveInQueue == 1
}

// Current returns the update at the consumer cursor.
func (a *Agent) Current() wire.Update {
	return a.updates[a.currentIndex]
}

// Previous returns the update immediately preceding Current in ring order,
// or Current itself if the simulation has not yet advanced past time 0.
func (a *Agent) Previous() wire.Update {
	if a.updates[a.currentIndex].Time == 0 {
		return a.updates[a.currentIndex]
	}
	prev := a.currentIndex - 1
	if prev < 0 {
		prev = Capacity - 1
	}
	return a.updates[prev]
}

// ReceivedFinal reports whether this agent's final update has been seen.
func (a *Agent) ReceivedFinal() bool {
	return a.receivedFinal
}

// AliveInQueue reports the number of ring slots still reachable by the
// consumer — exposed for invariant checks in tests.
func (a *Agent) AliveInQueue() int {
	return a.aliveInQueue
}

func (a *Agent) String() string {
	return fmt.Sprintf("agent{current=%d recv=%d alive=%d final=%v}",
		a.currentIndex, a.recvIndex, a.aliveInQueue, a.receivedFinal)
}
