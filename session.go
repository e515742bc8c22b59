package uamp

import (
	"errors"
	"io"
	"math"
	"time"

	"github.com/behrlich/go-uamp/internal/agentqueue"
	"github.com/behrlich/go-uamp/internal/handshake"
	"github.com/behrlich/go-uamp/internal/logging"
	"github.com/behrlich/go-uamp/internal/statebatch"
	"github.com/behrlich/go-uamp/internal/statename"
	"github.com/behrlich/go-uamp/internal/transport"
	"github.com/behrlich/go-uamp/internal/wire"
)

// MaxTime is the largest time, in seconds, representable after the ×1000
// millisecond conversion within a uint32 — UAMP_MAX_TIME in the original.
const MaxTime = 4294967.295

// AcceptFunc is the predicate an MVISP caller supplies to decide whether to
// accept a server-offered specification: given the agent count and time
// limit in seconds, it returns true to accept.
type AcceptFunc func(numAgents int, timeLimitSeconds float64) bool

// ConnectParams configures a UAMP Connect call.
type ConnectParams struct {
	Host             string
	Port             uint16
	NumAgents        int
	TimeLimitSeconds float64
	Seed             int64
	Features         uint32
	Logger           *logging.Logger
	Observer         Observer
}

// DefaultConnectParams returns a ConnectParams with no optional features
// and the default logger.
func DefaultConnectParams(host string, port uint16, numAgents int, timeLimitSeconds float64, seed int64) ConnectParams {
	return ConnectParams{
		Host:             host,
		Port:             port,
		NumAgents:        numAgents,
		TimeLimitSeconds: timeLimitSeconds,
		Seed:             seed,
		Features:         0,
	}
}

// MvispParams configures an MVISP MvispConnect call.
type MvispParams struct {
	Host       string
	Port       uint16
	StateNames []string
	Accept     AcceptFunc
	Features   uint32
	Logger     *logging.Logger
	Observer   Observer
}

// DefaultMvispParams returns an MvispParams with no optional features, an
// always-accept predicate, and the default logger.
func DefaultMvispParams(host string, port uint16, stateNames []string) MvispParams {
	return MvispParams{
		Host:       host,
		Port:       port,
		StateNames: stateNames,
		Accept:     func(int, float64) bool { return true },
		Features:   0,
	}
}

// Command is a surfaced from/to movement for one agent, in floating-point
// seconds and metres.
type Command struct {
	AgentID             int32
	FromX, FromY, FromZ float64
	FromTime            float64
	ToX, ToY, ToZ       float64
	ToTime              float64
	Present             bool
}

// Session drives one connected UAMP or MVISP conversation. It is not safe
// for concurrent use: every operation may block inside a socket read or
// write, and a Session has no internal locking or re-entrancy guard, matching
// the single-threaded, cooperative-blocking model the protocol assumes.
type Session struct {
	conn *transport.Conn
	fb   *wire.FrameBuffer

	isUAMP         bool
	serverFeatures uint32
	numAgents      int
	timeLimit      uint32
	numStates      int

	agents []*agentqueue.Agent

	largestLastTime     uint32
	smallestCurrentTime uint32

	batcher *statebatch.Batcher

	logger   *logging.Logger
	metrics  *Metrics
	observer Observer

	closed bool
}

// Connect dials a UAMP server, performs the handshake, requests a
// simulation with the given parameters, and fills every agent's initial
// queue.
func Connect(p ConnectParams) (*Session, error) {
	if p.NumAgents <= 0 || uint64(p.NumAgents) > math.MaxUint32 {
		return nil, newError("Connect", ErrInvalidNumAgents)
	}
	if p.TimeLimitSeconds < 0.0 || p.TimeLimitSeconds > MaxTime {
		return nil, newError("Connect", ErrInvalidTimeLimit)
	}

	s, err := newSession(p.Host, p.Port, true, p.NumAgents, p.Features, p.Logger)
	if err != nil {
		return nil, wrapConnectErr("Connect", err)
	}
	if p.Observer != nil {
		s.observer = p.Observer
	}

	s.timeLimit = secondsToMs(p.TimeLimitSeconds)

	s.fb.BeginWrite(12)
	if err := s.fb.WriteU32(s.conn, uint32(p.NumAgents)); err != nil {
		s.conn.Close()
		return nil, wrapError("Connect", ErrSocketWrite, err)
	}
	if err := s.fb.WriteU32(s.conn, s.timeLimit); err != nil {
		s.conn.Close()
		return nil, wrapError("Connect", ErrSocketWrite, err)
	}
	if err := s.fb.WriteU32(s.conn, uint32(p.Seed)); err != nil {
		s.conn.Close()
		return nil, wrapError("Connect", ErrSocketWrite, err)
	}

	s.fb.BeginRead(1)
	resp, err := s.fb.ReadU8(s.conn)
	if err != nil {
		s.conn.Close()
		return nil, wrapSocketErr("Connect", err)
	}
	switch resp {
	case 0x00:
	case 0x01:
		s.conn.Close()
		return nil, newError("Connect", ErrSimulationDenied)
	default:
		s.conn.Close()
		return nil, newError("Connect", ErrSimulationResponseBad)
	}

	if err := s.fillUpdateQueues(); err != nil {
		s.conn.Close()
		return nil, err
	}

	s.logger.Info("connected", "protocol", "UAMP", "agents", p.NumAgents, "timeLimitMs", s.timeLimit)
	return s, nil
}

// MvispConnect dials an MVISP server, performs the handshake, reads the
// server-offered specification, consults p.Accept, and — on acceptance —
// sends the state-name block and fills every agent's initial queue.
func MvispConnect(p MvispParams) (*Session, error) {
	if len(p.StateNames) == 0 || uint64(len(p.StateNames)) > math.MaxUint32 {
		return nil, newError("MvispConnect", ErrInvalidNumStates)
	}
	if err := statename.Verify(p.StateNames); err != nil {
		return nil, wrapStatenameErr("MvispConnect", err)
	}

	s, err := newSession(p.Host, p.Port, false, 0, p.Features, p.Logger)
	if err != nil {
		return nil, wrapConnectErr("MvispConnect", err)
	}
	if p.Observer != nil {
		s.observer = p.Observer
	}
	s.numStates = len(p.StateNames)

	s.fb.BeginRead(8)
	numAgents, err := s.fb.ReadU32(s.conn)
	if err != nil {
		s.conn.Close()
		return nil, wrapSocketErr("MvispConnect", err)
	}
	timeLimit, err := s.fb.ReadU32(s.conn)
	if err != nil {
		s.conn.Close()
		return nil, wrapSocketErr("MvispConnect", err)
	}
	if numAgents == 0 {
		s.conn.Close()
		return nil, newError("MvispConnect", ErrMvispNoAgents)
	}

	timeLimitSeconds := float64(timeLimit) / 1000.0
	accept := p.Accept
	if accept == nil {
		accept = func(int, float64) bool { return true }
	}
	if numAgents > math.MaxInt32 || !accept(int(numAgents), timeLimitSeconds) {
		s.fb.BeginWrite(4)
		_ = s.fb.WriteU32(s.conn, 0)
		s.conn.Close()
		return nil, newError("MvispConnect", ErrSimulationDenied)
	}

	s.numAgents = int(numAgents)
	s.timeLimit = timeLimit
	s.agents = make([]*agentqueue.Agent, s.numAgents)
	for i := range s.agents {
		s.agents[i] = agentqueue.New()
	}

	if err := statename.Write(s.conn, s.fb, p.StateNames); err != nil {
		s.conn.Close()
		return nil, wrapError("MvispConnect", ErrSocketWrite, err)
	}

	if err := s.fillUpdateQueues(); err != nil {
		s.conn.Close()
		return nil, err
	}

	s.logger.Info("connected", "protocol", "MVISP", "agents", s.numAgents, "timeLimitMs", s.timeLimit)
	return s, nil
}

func newSession(host string, port uint16, isUAMP bool, numAgents int, features uint32, logger *logging.Logger) (*Session, error) {
	conn, err := transport.Dial(host, port)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:    conn,
		fb:      wire.New(),
		isUAMP:  isUAMP,
		batcher: statebatch.New(),
		logger:  logger,
		metrics: NewMetrics(),
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	s.observer = NewMetricsObserver(s.metrics)
	if numAgents > 0 {
		s.numAgents = numAgents
		s.agents = make([]*agentqueue.Agent, numAgents)
		for i := range s.agents {
			s.agents[i] = agentqueue.New()
		}
	}

	s.logger.Debug("performing handshake", "role", roleTag(isUAMP), "features", features)
	serverFeatures, err := handshake.Perform(conn, s.fb, isUAMP, features)
	if err != nil {
		s.logger.Warn("handshake failed", "role", roleTag(isUAMP), "err", err)
		conn.Close()
		return nil, err
	}
	s.serverFeatures = serverFeatures
	s.logger.Debug("handshake complete", "role", roleTag(isUAMP), "serverFeatures", serverFeatures)
	return s, nil
}

func roleTag(isUAMP bool) string {
	if isUAMP {
		return "UAMP"
	}
	return "MVISP"
}

// fillUpdateQueues batches a single LOCATION_REQUEST covering every agent
// that still needs updates, splitting into multiple round trips if the
// running unsigned-32-bit sum of requests would overflow.
func (s *Session) fillUpdateQueues() error {
	start := time.Now()
	var totalRequests, totalUpdates, totalRead, totalWritten uint64
	success := true

	startAgent := 0
	var running uint32
	for onAgent := 0; onAgent < s.numAgents; onAgent++ {
		need := s.agents[onAgent].NumToRequest()
		sum := running + need
		if sum < running || sum < need {
			r, read, written, err := s.requestUpdates(startAgent, running)
			totalRequests += uint64(running)
			totalUpdates += uint64(r)
			totalRead += read
			totalWritten += written
			if err != nil {
				success = false
				s.observer.ObserveFill(totalRequests, totalUpdates, totalRead, totalWritten, uint64(time.Since(start)), success)
				return err
			}
			startAgent = onAgent
			running = need
		} else {
			running = sum
		}
	}

	if running != 0 {
		r, read, written, err := s.requestUpdates(startAgent, running)
		totalRequests += uint64(running)
		totalUpdates += uint64(r)
		totalRead += read
		totalWritten += written
		if err != nil {
			success = false
			s.observer.ObserveFill(totalRequests, totalUpdates, totalRead, totalWritten, uint64(time.Since(start)), success)
			return err
		}
	}

	s.observer.ObserveFill(totalRequests, totalUpdates, totalRead, totalWritten, uint64(time.Since(start)), success)
	s.logger.Debug("fill round trip complete", "requests", totalRequests, "updates", totalUpdates, "elapsed", time.Since(start))
	return nil
}

// requestUpdates sends one LOCATION_REQUEST covering totalRequests slots
// starting at startAgent (grouped by agent, in ascending id order) and
// reads+verifies the corresponding replies.
func (s *Session) requestUpdates(startAgent int, totalRequests uint32) (updatesReceived uint32, bytesRead, bytesWritten uint64, err error) {
	s.logger.Debug("requesting updates", "startAgent", startAgent, "count", totalRequests)
	writeTotal := uint64(5) + uint64(4)*uint64(totalRequests)
	readPerReply := uint64(12)
	if s.serverFeatures&wire.FeatureSupports3D != 0 {
		readPerReply += 4
	}
	if s.serverFeatures&wire.FeatureSupportsAddRemove != 0 {
		readPerReply++
	}
	readTotal := readPerReply * uint64(totalRequests)

	s.fb.BeginWrite(writeTotal)
	if werr := s.fb.WriteU8(s.conn, wire.OpLocationRequest); werr != nil {
		return 0, 0, 0, wrapError("fillUpdateQueues", ErrSocketWrite, werr)
	}
	if werr := s.fb.WriteU32(s.conn, totalRequests); werr != nil {
		return 0, 0, 0, wrapError("fillUpdateQueues", ErrSocketWrite, werr)
	}

	onAgent := startAgent
	var onRequest uint32
	for onRequest < totalRequests {
		need := s.agents[onAgent].NumToRequest()
		for i := uint32(0); i < need; i++ {
			if werr := s.fb.WriteU32(s.conn, uint32(onAgent)); werr != nil {
				return 0, 0, 0, wrapError("fillUpdateQueues", ErrSocketWrite, werr)
			}
		}
		onRequest += need
		onAgent++
	}
	bytesWritten = writeTotal

	s.fb.BeginRead(readTotal)
	onAgent = startAgent
	onRequest = 0
	for onRequest < totalRequests {
		need := s.agents[onAgent].NumToRequest()
		for i := uint32(0); i < need; i++ {
			if rerr := s.receiveReply(s.agents[onAgent]); rerr != nil {
				return updatesReceived, readTotal, bytesWritten, rerr
			}
			updatesReceived++
		}
		onRequest += need
		onAgent++
	}
	bytesRead = readTotal

	return updatesReceived, bytesRead, bytesWritten, nil
}

// receiveReply decodes one reply for agent and hands it to the agent's
// queue for storage and verification.
func (s *Session) receiveReply(agent *agentqueue.Agent) error {
	t, err := s.fb.ReadU32(s.conn)
	if err != nil {
		return wrapSocketErr("fillUpdateQueues", err)
	}
	x, err := s.fb.ReadU32(s.conn)
	if err != nil {
		return wrapSocketErr("fillUpdateQueues", err)
	}
	y, err := s.fb.ReadU32(s.conn)
	if err != nil {
		return wrapSocketErr("fillUpdateQueues", err)
	}
	var z uint32
	if s.serverFeatures&wire.FeatureSupports3D != 0 {
		z, err = s.fb.ReadU32(s.conn)
		if err != nil {
			return wrapSocketErr("fillUpdateQueues", err)
		}
	}
	// The present byte's validity is checked after ReceiveUpdate, not
	// before: the ordering/final-update checks must run first, so a reply
	// that is simultaneously a bad first update and an invalid present
	// byte surfaces the ordering error, matching receiveReply in queues.c.
	present := true
	var rawPresent byte = 1
	if s.serverFeatures&wire.FeatureSupportsAddRemove != 0 {
		p, err := s.fb.ReadU8(s.conn)
		if err != nil {
			return wrapSocketErr("fillUpdateQueues", err)
		}
		rawPresent = p
		present = p == 1
	}

	u := wire.Update{Time: t, X: x, Y: y, Z: z, Present: present}
	if err := agent.ReceiveUpdate(u, s.timeLimit); err != nil {
		return wrapAgentqueueErr("fillUpdateQueues", err)
	}

	if s.serverFeatures&wire.FeatureSupportsAddRemove != 0 && rawPresent != 0 && rawPresent != 1 {
		return newError("fillUpdateQueues", ErrInvalidPresentFlag)
	}
	return nil
}

// CurrentCommand populates a Command directly from agentID's previous and
// current updates, with no interpolation.
func (s *Session) CurrentCommand(agentID int) Command {
	s.checkAgentID(agentID)
	last := s.agents[agentID].Previous()
	current := s.agents[agentID].Current()
	return Command{
		AgentID:  int32(agentID),
		FromX:    float64(last.X) / 1000.0,
		FromY:    float64(last.Y) / 1000.0,
		FromZ:    float64(last.Z) / 1000.0,
		FromTime: float64(last.Time) / 1000.0,
		ToX:      float64(current.X) / 1000.0,
		ToY:      float64(current.Y) / 1000.0,
		ToZ:      float64(current.Z) / 1000.0,
		ToTime:   float64(current.Time) / 1000.0,
		Present:  last.Present,
	}
}

// IntersectCommand returns an interpolated Command clipped to the session's
// [largestLastTime, smallestCurrentTime] window.
func (s *Session) IntersectCommand(agentID int) (Command, error) {
	s.checkAgentID(agentID)
	if s.largestLastTime > s.smallestCurrentTime {
		return Command{}, newError("IntersectCommand", ErrNoIntersection)
	}

	last := s.agents[agentID].Previous()
	current := s.agents[agentID].Current()

	cmd := Command{AgentID: int32(agentID)}
	if current.Time == 0 {
		cmd.FromTime, cmd.ToTime = 0, 0
		cmd.FromX, cmd.ToX = float64(current.X)/1000.0, float64(current.X)/1000.0
		cmd.FromY, cmd.ToY = float64(current.Y)/1000.0, float64(current.Y)/1000.0
		cmd.FromZ, cmd.ToZ = float64(current.Z)/1000.0, float64(current.Z)/1000.0
		cmd.Present = current.Present
		return cmd, nil
	}

	deltaX := float64(current.X) - float64(last.X)
	deltaY := float64(current.Y) - float64(last.Y)
	deltaZ := float64(current.Z) - float64(last.Z)
	deltaT := float64(current.Time) - float64(last.Time)

	cmd.FromTime = float64(s.largestLastTime) / 1000.0
	fracFrom := (float64(s.largestLastTime) - float64(last.Time)) / deltaT
	cmd.FromX = (float64(last.X) + fracFrom*deltaX) / 1000.0
	cmd.FromY = (float64(last.Y) + fracFrom*deltaY) / 1000.0
	cmd.FromZ = (float64(last.Z) + fracFrom*deltaZ) / 1000.0

	cmd.ToTime = float64(s.smallestCurrentTime) / 1000.0
	fracTo := (float64(s.smallestCurrentTime) - float64(last.Time)) / deltaT
	cmd.ToX = (float64(last.X) + fracTo*deltaX) / 1000.0
	cmd.ToY = (float64(last.Y) + fracTo*deltaY) / 1000.0
	cmd.ToZ = (float64(last.Z) + fracTo*deltaZ) / 1000.0

	cmd.Present = last.Present
	return cmd, nil
}

// IsMore reports whether agentID's current time is still below the time
// limit.
func (s *Session) IsMore(agentID int) bool {
	s.checkAgentID(agentID)
	return s.agents[agentID].Current().Time < s.timeLimit
}

// Advance moves agentID's consumer cursor forward one update, refilling its
// queue if necessary, and updates the session's time cursors.
func (s *Session) Advance(agentID int) error {
	s.checkAgentID(agentID)
	agent := s.agents[agentID]
	snapshot := agent.Current()
	if snapshot.Time == s.timeLimit {
		return newError("Advance", ErrNoMoreData)
	}

	needsRefill := agent.Advance()
	if needsRefill {
		if err := s.fillUpdateQueues(); err != nil {
			return err
		}
	}

	if snapshot.Time > s.largestLastTime {
		s.largestLastTime = snapshot.Time
	}
	if snapshot.Time == s.smallestCurrentTime {
		limit := uint32(math.MaxUint32)
		for _, a := range s.agents {
			if t := a.Current().Time; t < limit {
				limit = t
			}
		}
		s.smallestCurrentTime = limit
	}
	return nil
}

// IsAnyMore reports whether any agent's current time is still below the
// time limit.
func (s *Session) IsAnyMore() bool {
	return s.smallestCurrentTime < s.timeLimit
}

// AdvanceOldest advances every agent whose current time equals the
// session's smallestCurrentTime, producing the synchronized-view idiom
// when paired with IntersectCommand.
func (s *Session) AdvanceOldest() error {
	oldest := s.smallestCurrentTime
	if oldest == s.timeLimit {
		return newError("AdvanceOldest", ErrNoMoreData)
	}
	for i, a := range s.agents {
		if a.Current().Time == oldest {
			if err := s.Advance(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// ChangeState records an MVISP state-change annotation for agentID at
// atTimeSeconds. UAMP sessions silently drop this call.
func (s *Session) ChangeState(agentID int, atTimeSeconds float64, newState int) error {
	if s.numStates == 0 {
		return nil
	}
	if atTimeSeconds < 0.0 || atTimeSeconds > MaxTime {
		return newError("ChangeState", ErrInvalidChangeTime)
	}
	sendTime := secondsToMs(atTimeSeconds)

	s.checkAgentID(agentID)
	if sendTime > s.timeLimit {
		return newError("ChangeState", ErrInvalidChangeTime)
	}
	if newState < 0 || newState >= s.numStates {
		return newError("ChangeState", ErrInvalidChangeState)
	}

	full := s.batcher.Add(statebatch.Change{Agent: uint32(agentID), Time: sendTime, NewState: uint32(newState)})
	if full {
		return s.flushStateChanges()
	}
	return nil
}

func (s *Session) flushStateChanges() error {
	count := uint64(s.batcher.Len())
	if err := s.batcher.Flush(s.conn, s.fb); err != nil {
		return wrapError("flushStateChanges", ErrSocketWrite, err)
	}
	s.observer.ObserveStateChangeFlush(count, 5+12*count)
	return nil
}

// Terminate flushes any buffered state changes, sends the termination
// frame, and closes the connection. It is idempotent and safe to call
// after a failed connect.
func (s *Session) Terminate() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	defer s.metrics.Stop()

	if s.conn == nil {
		return nil
	}
	defer s.conn.Close()
	defer s.logger.Info("terminated", "agents", s.numAgents)

	if s.batcher.Len() != 0 {
		if err := s.flushStateChanges(); err != nil {
			return err
		}
	}

	s.fb.BeginWrite(5)
	if err := s.fb.WriteU8(s.conn, wire.OpTerminate); err != nil {
		return wrapError("Terminate", ErrSocketWrite, err)
	}
	if err := s.fb.WriteU32(s.conn, 0); err != nil {
		return wrapError("Terminate", ErrSocketWrite, err)
	}
	return nil
}

// Metrics returns the session's protocol-level metrics.
func (s *Session) Metrics() *Metrics {
	return s.metrics
}

// NumAgents returns the number of agents negotiated for this session.
func (s *Session) NumAgents() int {
	return s.numAgents
}

// TimeLimitSeconds returns the negotiated simulation duration in seconds.
func (s *Session) TimeLimitSeconds() float64 {
	return float64(s.timeLimit) / 1000.0
}

func (s *Session) checkAgentID(agentID int) {
	if agentID < 0 || agentID >= s.numAgents {
		panic("uamp: invalid agent id")
	}
}

func secondsToMs(seconds float64) uint32 {
	return uint32(math.Round(seconds * 1000.0))
}

func wrapSocketErr(op string, err error) error {
	if errors.Is(err, transport.ErrDry) {
		return wrapError(op, ErrSocketDry, err)
	}
	if errors.Is(err, transport.ErrWrite) {
		return wrapError(op, ErrSocketWrite, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return wrapError(op, ErrSocketDry, err)
	}
	return wrapError(op, ErrSocketRead, err)
}

func wrapConnectErr(op string, err error) error {
	switch {
	case errors.Is(err, transport.ErrInvalidPort):
		return wrapError(op, ErrInvalidPort, err)
	case errors.Is(err, transport.ErrResolveHost):
		return wrapError(op, ErrHostnameInformation, err)
	case errors.Is(err, transport.ErrCreateSocket):
		return wrapError(op, ErrCreateSocket, err)
	case errors.Is(err, transport.ErrConnectSocket):
		return wrapError(op, ErrConnectSocket, err)
	case errors.Is(err, handshake.ErrInvalidFeatures):
		return wrapError(op, ErrInvalidFeatures, err)
	case errors.Is(err, handshake.ErrUampClientMvispServer):
		return wrapError(op, ErrUampClientMvispServer, err)
	case errors.Is(err, handshake.ErrMvispClientUampServer):
		return wrapError(op, ErrMvispClientUampServer, err)
	case errors.Is(err, handshake.ErrServerUnknownHandshake):
		return wrapError(op, ErrServerUnknownHandshake, err)
	case errors.Is(err, handshake.ErrNoSharedVersion):
		return wrapError(op, ErrNoSharedVersion, err)
	case errors.Is(err, handshake.Err2DClient3DServer):
		return wrapError(op, Err2DClient3DServer, err)
	case errors.Is(err, handshake.ErrAddRemoveUnsupported):
		return wrapError(op, ErrAddRemoveUnsupported, err)
	case errors.Is(err, handshake.ErrServerRejectedHandshake):
		return wrapError(op, ErrServerRejectedHandshake, err)
	case errors.Is(err, handshake.ErrServerClientVersionDisagree):
		return wrapError(op, ErrServerClientVersionDisagree, err)
	default:
		return wrapSocketErr(op, err)
	}
}

func wrapStatenameErr(op string, err error) error {
	switch {
	case errors.Is(err, statename.ErrZeroLength):
		return wrapError(op, ErrZeroStateLength, err)
	case errors.Is(err, statename.ErrTooLong):
		return wrapError(op, ErrStateLengthLong, err)
	case errors.Is(err, statename.ErrDuplicate):
		return wrapError(op, ErrDuplicateState, err)
	default:
		return wrapError(op, ErrInvalidNumStates, err)
	}
}

func wrapAgentqueueErr(op string, err error) error {
	switch {
	case errors.Is(err, agentqueue.ErrFirstUpdateTime):
		return wrapError(op, ErrFirstUpdateTime, err)
	case errors.Is(err, agentqueue.ErrNonEqualFinalUpdates):
		return wrapError(op, ErrNonEqualFinalUpdates, err)
	case errors.Is(err, agentqueue.ErrTimestampNotIncremented):
		return wrapError(op, ErrTimestampNotIncremented, err)
	case errors.Is(err, agentqueue.ErrTimestampTooLarge):
		return wrapError(op, ErrTimestampTooLarge, err)
	case errors.Is(err, agentqueue.ErrInvalidPresentFlag):
		return wrapError(op, ErrInvalidPresentFlag, err)
	default:
		return wrapError(op, ErrSocketRead, err)
	}
}
