package uamp

import (
	"errors"
	"net"
	"testing"

	"github.com/behrlich/go-uamp/internal/agentqueue"
	"github.com/behrlich/go-uamp/testsupport"
)

func uampServerScript(t *testing.T, onFill func(conn net.Conn)) testsupport.Script {
	return func(conn net.Conn) error {
		tag, version, features, err := testsupport.ReadHandshake(conn)
		if err != nil {
			return err
		}
		if tag != "UAMP" {
			t.Errorf("unexpected role tag %q", tag)
		}
		if err := testsupport.WriteHandshake(conn, "UAMP", version, features); err != nil {
			return err
		}
		if _, err := testsupport.ReadVersionChoice(conn); err != nil {
			return err
		}
		if err := testsupport.WriteAck(conn, 0x80); err != nil {
			return err
		}

		if _, err := testsupport.ReadUint32(conn); err != nil { // numAgents
			return err
		}
		if _, err := testsupport.ReadUint32(conn); err != nil { // timeLimit
			return err
		}
		if _, err := testsupport.ReadUint32(conn); err != nil { // seed
			return err
		}
		if err := testsupport.WriteByte(conn, 0x00); err != nil { // accept
			return err
		}

		onFill(conn)
		return nil
	}
}

func TestConnectNegotiatesAndFillsQueues(t *testing.T) {
	const timeLimitMs = 5000
	const wantRequests = 2 * agentqueue.Capacity // two agents, both queues start empty

	srv, err := testsupport.Start(uampServerScript(t, func(conn net.Conn) {
		agents, err := testsupport.ReadLocationRequest(conn)
		if err != nil {
			t.Errorf("ReadLocationRequest: %v", err)
			return
		}
		if len(agents) != wantRequests {
			t.Errorf("requested %d slots, want %d", len(agents), wantRequests)
		}
		// Replies are grouped per agent (agentqueue.Capacity at a time), and
		// each agent's own sequence of times must strictly increase from 0.
		for i, id := range agents {
			withinAgent := i % agentqueue.Capacity
			_ = id
			testsupport.WriteUpdateReply(conn, testsupport.UpdateReply{Time: uint32(withinAgent * 100)}, false, false)
		}
	}))
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	host, port := srv.Addr()
	sess, err := Connect(ConnectParams{
		Host:             host,
		Port:             port,
		NumAgents:        2,
		TimeLimitSeconds: float64(timeLimitMs) / 1000.0,
		Seed:             42,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Terminate()

	if sess.NumAgents() != 2 {
		t.Fatalf("NumAgents() = %d, want 2", sess.NumAgents())
	}
}

func TestConnectRejectsInvalidNumAgents(t *testing.T) {
	_, err := Connect(ConnectParams{Host: "127.0.0.1", Port: 1, NumAgents: 0})
	if !errors.Is(err, ErrInvalidNumAgents) {
		t.Fatalf("expected ErrInvalidNumAgents, got %v", err)
	}
}

func TestConnectRejectsTimeLimitAboveMax(t *testing.T) {
	_, err := Connect(ConnectParams{Host: "127.0.0.1", Port: 1, NumAgents: 1, TimeLimitSeconds: MaxTime + 1})
	if !errors.Is(err, ErrInvalidTimeLimit) {
		t.Fatalf("expected ErrInvalidTimeLimit, got %v", err)
	}
}

func TestConnectSurfacesSimulationDenied(t *testing.T) {
	srv, err := testsupport.Start(func(conn net.Conn) error {
		_, v, f, err := testsupport.ReadHandshake(conn)
		if err != nil {
			return err
		}
		if err := testsupport.WriteHandshake(conn, "UAMP", v, f); err != nil {
			return err
		}
		if _, err := testsupport.ReadVersionChoice(conn); err != nil {
			return err
		}
		if err := testsupport.WriteAck(conn, 0x80); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if _, err := testsupport.ReadUint32(conn); err != nil {
				return err
			}
		}
		return testsupport.WriteByte(conn, 0x01) // deny
	})
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	host, port := srv.Addr()
	_, err = Connect(ConnectParams{Host: host, Port: port, NumAgents: 1, TimeLimitSeconds: 1.0})
	if !errors.Is(err, ErrSimulationDenied) {
		t.Fatalf("expected ErrSimulationDenied, got %v", err)
	}
}

// mvispServerScript drives the MVISP side of a connection: handshake,
// offer (numAgents, timeLimit), expect acceptance (no deny write), read
// back the state-name block, then hand off to onFill.
func mvispServerScript(numAgents, timeLimitMs uint32, stateNames []string, onFill func(conn net.Conn)) testsupport.Script {
	return func(conn net.Conn) error {
		_, v, f, err := testsupport.ReadHandshake(conn)
		if err != nil {
			return err
		}
		if err := testsupport.WriteHandshake(conn, "MVIS", v, f); err != nil {
			return err
		}
		if _, err := testsupport.ReadVersionChoice(conn); err != nil {
			return err
		}
		if err := testsupport.WriteAck(conn, 0x80); err != nil {
			return err
		}

		if err := testsupport.WriteUint32(conn, numAgents); err != nil {
			return err
		}
		if err := testsupport.WriteUint32(conn, timeLimitMs); err != nil {
			return err
		}

		got, err := testsupport.ReadStateNames(conn)
		if err != nil {
			return err
		}
		if len(got) != len(stateNames) {
			return errors.New("state name count mismatch")
		}

		onFill(conn)
		return nil
	}
}

func TestMvispConnectOffersSpecAndAcceptsStateNames(t *testing.T) {
	const timeLimitMs = 2000
	stateNames := []string{"healthy", "infected"}

	srv, err := testsupport.Start(mvispServerScript(3, timeLimitMs, stateNames, func(conn net.Conn) {
		agents, err := testsupport.ReadLocationRequest(conn)
		if err != nil {
			return
		}
		for i, id := range agents {
			withinAgent := i % agentqueue.Capacity
			_ = id
			testsupport.WriteUpdateReply(conn, testsupport.UpdateReply{Time: uint32(withinAgent * 100)}, false, false)
		}
	}))
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	host, port := srv.Addr()
	sess, err := MvispConnect(MvispParams{
		Host:       host,
		Port:       port,
		StateNames: stateNames,
		Accept:     func(int, float64) bool { return true },
	})
	if err != nil {
		t.Fatalf("MvispConnect: %v", err)
	}
	defer sess.Terminate()

	if sess.NumAgents() != 3 {
		t.Fatalf("NumAgents() = %d, want 3", sess.NumAgents())
	}
}

func TestMvispConnectRejectsDuplicateStateNames(t *testing.T) {
	_, err := MvispConnect(MvispParams{
		Host:       "127.0.0.1",
		Port:       1,
		StateNames: []string{"a", "a"},
	})
	if !errors.Is(err, ErrDuplicateState) {
		t.Fatalf("expected ErrDuplicateState, got %v", err)
	}
}

func TestMvispConnectDeniesViaAcceptPredicate(t *testing.T) {
	srv, err := testsupport.Start(func(conn net.Conn) error {
		_, v, f, err := testsupport.ReadHandshake(conn)
		if err != nil {
			return err
		}
		if err := testsupport.WriteHandshake(conn, "MVIS", v, f); err != nil {
			return err
		}
		if _, err := testsupport.ReadVersionChoice(conn); err != nil {
			return err
		}
		if err := testsupport.WriteAck(conn, 0x80); err != nil {
			return err
		}
		if err := testsupport.WriteUint32(conn, 5); err != nil {
			return err
		}
		if err := testsupport.WriteUint32(conn, 1000); err != nil {
			return err
		}
		_, err = testsupport.ReadUint32(conn) // deny-zero
		return err
	})
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	host, port := srv.Addr()
	_, err = MvispConnect(MvispParams{
		Host:       host,
		Port:       port,
		StateNames: []string{"only"},
		Accept:     func(int, float64) bool { return false },
	})
	if !errors.Is(err, ErrSimulationDenied) {
		t.Fatalf("expected ErrSimulationDenied, got %v", err)
	}
}

// A full single-agent lifecycle: connect, walk to the time limit via
// Advance, and confirm IsMore/IsAnyMore track the time limit correctly,
// then Terminate.
func TestSingleAgentLifecycleReachesTimeLimit(t *testing.T) {
	const timeLimitMs = 3000
	final := testsupport.UpdateReply{Time: timeLimitMs, X: 2000, Y: 0}
	// A single fillUpdateQueues call requests every empty ring slot
	// (agentqueue.Capacity) at once; once the final update (time ==
	// timeLimitMs) is sent, every remaining slot must repeat it exactly.
	updates := []testsupport.UpdateReply{
		{Time: 0, X: 0, Y: 0},
		{Time: 1000, X: 1000, Y: 0},
		{Time: 2000, X: 1500, Y: 0},
		final, final, final,
	}

	srv, err := testsupport.Start(uampServerScript(t, func(conn net.Conn) {
		agents, err := testsupport.ReadLocationRequest(conn)
		if err != nil {
			t.Errorf("ReadLocationRequest: %v", err)
			return
		}
		if len(agents) != len(updates) {
			t.Errorf("requested %d updates, want %d", len(agents), len(updates))
		}
		for _, u := range updates {
			testsupport.WriteUpdateReply(conn, u, false, false)
		}
		testsupport.ReadTerminate(conn)
	}))
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	host, port := srv.Addr()
	sess, err := Connect(ConnectParams{
		Host:             host,
		Port:             port,
		NumAgents:        1,
		TimeLimitSeconds: float64(timeLimitMs) / 1000.0,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	steps := 0
	for sess.IsMore(0) {
		if err := sess.Advance(0); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		steps++
		if steps > agentqueue.Capacity+1 {
			t.Fatal("Advance looped past the expected number of updates")
		}
	}
	if sess.IsAnyMore() {
		t.Fatal("IsAnyMore() true after every agent reached the time limit")
	}
	if err := sess.Advance(0); !errors.Is(err, ErrNoMoreData) {
		t.Fatalf("expected ErrNoMoreData past the time limit, got %v", err)
	}

	if err := sess.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := sess.Terminate(); err != nil {
		t.Fatalf("second Terminate should be a no-op, got %v", err)
	}
	srv.Wait()
	if err := srv.Err(); err != nil {
		t.Fatalf("server script error: %v", err)
	}
}

// Two agents advancing at different paces: AdvanceOldest must only move the
// agent(s) at the session's current floor, and the largestLastTime /
// smallestCurrentTime cursors must track exactly what was consumed.
func TestAdvanceOldestSynchronizesMultipleAgents(t *testing.T) {
	const timeLimitMs = 1000
	final0 := testsupport.UpdateReply{Time: timeLimitMs, X: 2000}
	agent0Updates := []testsupport.UpdateReply{
		{Time: 0, X: 0},
		{Time: 500, X: 100},
		final0, final0, final0, final0,
	}
	final1 := testsupport.UpdateReply{Time: timeLimitMs, X: 9000}
	agent1Updates := []testsupport.UpdateReply{
		{Time: 0, X: 9000},
		final1, final1, final1, final1, final1,
	}

	srv, err := testsupport.Start(uampServerScript(t, func(conn net.Conn) {
		agents, err := testsupport.ReadLocationRequest(conn)
		if err != nil {
			t.Errorf("ReadLocationRequest: %v", err)
			return
		}
		if len(agents) != len(agent0Updates)+len(agent1Updates) {
			t.Errorf("requested %d slots, want %d", len(agents), len(agent0Updates)+len(agent1Updates))
		}
		for _, u := range agent0Updates {
			testsupport.WriteUpdateReply(conn, u, false, false)
		}
		for _, u := range agent1Updates {
			testsupport.WriteUpdateReply(conn, u, false, false)
		}
	}))
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	host, port := srv.Addr()
	sess, err := Connect(ConnectParams{
		Host:             host,
		Port:             port,
		NumAgents:        2,
		TimeLimitSeconds: float64(timeLimitMs) / 1000.0,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Terminate()

	if err := sess.AdvanceOldest(); err != nil {
		t.Fatalf("AdvanceOldest (1st): %v", err)
	}
	if sess.largestLastTime != 0 {
		t.Fatalf("largestLastTime = %d, want 0", sess.largestLastTime)
	}
	if sess.smallestCurrentTime != 500 {
		t.Fatalf("smallestCurrentTime = %d, want 500 (agent 0 at 500ms, agent 1 at %dms)", sess.smallestCurrentTime, timeLimitMs)
	}

	if err := sess.AdvanceOldest(); err != nil {
		t.Fatalf("AdvanceOldest (2nd): %v", err)
	}
	if sess.largestLastTime != 500 {
		t.Fatalf("largestLastTime = %d, want 500", sess.largestLastTime)
	}
	if sess.IsAnyMore() {
		t.Fatalf("IsAnyMore() true, both agents should be at the time limit")
	}

	if err := sess.AdvanceOldest(); !errors.Is(err, ErrNoMoreData) {
		t.Fatalf("expected ErrNoMoreData past the time limit, got %v", err)
	}
}

// ChangeState must batch, and Terminate must flush the pending batch as a
// single STATE_CHANGES message with the exact agent/time/state triples,
// time converted to milliseconds.
func TestChangeStateRoundTripsThroughTerminate(t *testing.T) {
	const timeLimitMs = 5000
	final := testsupport.UpdateReply{Time: timeLimitMs, X: 1000}
	updates := []testsupport.UpdateReply{
		{Time: 0, X: 0},
		{Time: 1000, X: 500},
		final, final, final, final,
	}
	stateNames := []string{"healthy", "infected"}

	var gotChanges []testsupport.StateChange
	srv, err := testsupport.Start(mvispServerScript(1, timeLimitMs, stateNames, func(conn net.Conn) {
		agents, err := testsupport.ReadLocationRequest(conn)
		if err != nil {
			t.Errorf("ReadLocationRequest: %v", err)
			return
		}
		if len(agents) != len(updates) {
			t.Errorf("requested %d updates, want %d", len(agents), len(updates))
		}
		for _, u := range updates {
			testsupport.WriteUpdateReply(conn, u, false, false)
		}
		gotChanges, err = testsupport.ReadStateChangeFlush(conn)
		if err != nil {
			t.Errorf("ReadStateChangeFlush: %v", err)
			return
		}
		if err := testsupport.ReadTerminate(conn); err != nil {
			t.Errorf("ReadTerminate: %v", err)
		}
	}))
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	host, port := srv.Addr()
	sess, err := MvispConnect(MvispParams{
		Host:       host,
		Port:       port,
		StateNames: stateNames,
		Accept:     func(int, float64) bool { return true },
	})
	if err != nil {
		t.Fatalf("MvispConnect: %v", err)
	}

	if err := sess.ChangeState(0, 1.5, 1); err != nil {
		t.Fatalf("ChangeState: %v", err)
	}
	if err := sess.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	srv.Wait()
	if err := srv.Err(); err != nil {
		t.Fatalf("server script error: %v", err)
	}

	want := []testsupport.StateChange{{Agent: 0, Time: 1500, NewState: 1}}
	if len(gotChanges) != len(want) || gotChanges[0] != want[0] {
		t.Fatalf("server received %+v, want %+v", gotChanges, want)
	}
}

// The original's UAMP_MAX_TIME boundary: a time limit of exactly MaxTime
// seconds must be accepted and encoded as 0xFFFFFFFF milliseconds, not
// rejected or truncated short.
func TestConnectAcceptsTimeLimitAtMaxTimeBoundary(t *testing.T) {
	if got := secondsToMs(MaxTime); got != 0xFFFFFFFF {
		t.Fatalf("secondsToMs(MaxTime) = %#x, want 0xFFFFFFFF", got)
	}

	final := testsupport.UpdateReply{Time: 0xFFFFFFFF, X: 0}
	updates := []testsupport.UpdateReply{
		{Time: 0, X: 0},
		final, final, final, final, final,
	}

	srv, err := testsupport.Start(uampServerScript(t, func(conn net.Conn) {
		agents, err := testsupport.ReadLocationRequest(conn)
		if err != nil {
			t.Errorf("ReadLocationRequest: %v", err)
			return
		}
		if len(agents) != len(updates) {
			t.Errorf("requested %d updates, want %d", len(agents), len(updates))
		}
		for _, u := range updates {
			testsupport.WriteUpdateReply(conn, u, false, false)
		}
		testsupport.ReadTerminate(conn)
	}))
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	host, port := srv.Addr()
	sess, err := Connect(ConnectParams{
		Host:             host,
		Port:             port,
		NumAgents:        1,
		TimeLimitSeconds: MaxTime,
	})
	if err != nil {
		t.Fatalf("Connect at MaxTime boundary: %v", err)
	}
	defer sess.Terminate()

	if sess.timeLimit != 0xFFFFFFFF {
		t.Fatalf("session timeLimit = %#x, want 0xFFFFFFFF", sess.timeLimit)
	}
}

func TestIntersectCommandRequiresNonEmptyWindow(t *testing.T) {
	sess := &Session{
		numAgents:           1,
		agents:              []*agentqueue.Agent{agentqueue.New()},
		largestLastTime:     2000,
		smallestCurrentTime: 1000,
	}
	_, err := sess.IntersectCommand(0)
	if !errors.Is(err, ErrNoIntersection) {
		t.Fatalf("expected ErrNoIntersection, got %v", err)
	}
}
