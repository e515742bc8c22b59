// Command uamp-epidemic connects to an MVISP server and runs a simple
// proximity-based disease simulation over the agents it reports: a
// contagious agent infects any uninfected, non-immune agent within a fixed
// range at the end of each synchronized time step.
//
// This is a deliberately simplified stand-in for a continuous-time
// closest-approach solver: it tests proximity only at the end of each
// AdvanceOldest step rather than solving for the exact sub-interval during
// which two agents are within range, so it can miss contacts that occur and
// end between two samples. A full solver would fit a quadratic to the
// squared inter-agent distance over each step and solve it exactly.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/behrlich/go-uamp"
	"github.com/behrlich/go-uamp/internal/logging"
)

const (
	stateUninfected = 0
	stateIncubating = 1
	stateContagious = 2
	stateImmune     = 3
)

var stateNames = []string{"Uninfected", "Incubating", "Contagious", "Immune"}

const invalidTime = math.MaxFloat64

type agentState struct {
	infectedTime   float64
	contagiousTime float64
	immune         bool
}

func main() {
	var (
		incubationTime = flag.Float64("t", 60.0, "incubation time, in seconds, before a host becomes contagious")
		infectionRange = flag.Float64("r", 1.0, "infection range, in metres")
		initialAgents  = flag.Int("i", 1, "number of agents contagious at time 0")
		immuneAgents   = flag.Int("n", 0, "number of agents immune to infection")
		verbose        = flag.Bool("v", false, "verbose logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-i initialInfections] [-r infectionRangeMetres] [-t incubationTimeSeconds] [-n immuneAgents] hostname port\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 || *initialAgents <= 0 || *infectionRange < 0 || *incubationTime < 0 || *immuneAgents < 0 {
		flag.Usage()
		os.Exit(1)
	}
	hostname := flag.Arg(0)
	port, err := strconv.ParseUint(flag.Arg(1), 10, 16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)

	fmt.Printf("Initial infections: %d\n", *initialAgents)
	fmt.Printf("Immune agents:      %d\n", *immuneAgents)
	fmt.Printf("Infection range:    %.3f metres\n", *infectionRange)
	fmt.Printf("Incubation period:  %.3f seconds\n", *incubationTime)

	if err := runClient(hostname, uint16(port), *initialAgents, *immuneAgents, *infectionRange, *incubationTime, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runClient(hostname string, port uint16, initialAgents, immuneAgents int, infectionRange, incubationTime float64, logger *logging.Logger) error {
	var numAgents int
	params := uamp.MvispParams{
		Host:       hostname,
		Port:       port,
		StateNames: stateNames,
		Features:   0,
		Logger:     logger,
		Accept: func(n int, _ float64) bool {
			numAgents = n
			return initialAgents+immuneAgents <= n
		},
	}

	sess, err := uamp.MvispConnect(params)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Terminate()

	susceptible := numAgents - immuneAgents
	if susceptible <= 0 {
		return fmt.Errorf("no susceptible agents: %d total, %d immune", numAgents, immuneAgents)
	}

	agents := make([]agentState, susceptible)
	for i := range agents {
		if i < initialAgents {
			agents[i].infectedTime, agents[i].contagiousTime = 0, 0
		} else {
			agents[i].infectedTime, agents[i].contagiousTime = invalidTime, invalidTime
		}
	}

	infected := initialAgents
	for infected+immuneAgents < numAgents {
		commands := make([]uamp.Command, susceptible)
		for i := range commands {
			cmd, err := sess.IntersectCommand(i)
			if err != nil {
				return fmt.Errorf("intersect command for agent %d: %w", i, err)
			}
			commands[i] = cmd
		}
		infected = processMovements(agents, commands, infectionRange, incubationTime)

		if !sess.IsAnyMore() {
			break
		}
		if err := sess.AdvanceOldest(); err != nil {
			return fmt.Errorf("advance oldest: %w", err)
		}
	}

	return finalizeStates(sess, agents, susceptible, numAgents, sess.TimeLimitSeconds())
}

// processMovements checks every contagious-vs-susceptible pair for
// proximity at the step's end time and propagates infection transitively
// within the same step, mirroring the reference client's infector/victim
// worklist.
func processMovements(agents []agentState, commands []uamp.Command, infectionRange, incubationTime float64) int {
	if len(commands) == 0 {
		return 0
	}
	endTime := commands[0].ToTime

	var infectors []int
	for i, a := range agents {
		if a.contagiousTime <= endTime && commands[i].Present {
			infectors = append(infectors, i)
		}
	}

	infected := 0
	for _, a := range agents {
		if a.infectedTime != invalidTime {
			infected++
		}
	}

	for len(infectors) > 0 {
		theInfector := infectors[len(infectors)-1]
		infectors = infectors[:len(infectors)-1]

		for i := range agents {
			if i == theInfector || !commands[i].Present {
				continue
			}
			if agents[i].infectedTime <= endTime {
				continue
			}
			if !withinRange(commands[theInfector], commands[i], infectionRange) {
				continue
			}
			if endTime >= agents[i].infectedTime {
				continue
			}

			if agents[i].infectedTime == invalidTime {
				infected++
			}
			agents[i].infectedTime = endTime
			agents[i].contagiousTime = endTime + incubationTime
			if agents[i].contagiousTime <= endTime {
				infectors = append(infectors, i)
			}
		}
	}

	return infected
}

func withinRange(a, b uamp.Command, maxDist float64) bool {
	dx := a.ToX - b.ToX
	dy := a.ToY - b.ToY
	dz := a.ToZ - b.ToZ
	return math.Sqrt(dx*dx+dy*dy+dz*dz) <= maxDist
}

func finalizeStates(sess *uamp.Session, agents []agentState, susceptible, numAgents int, timeLimit float64) error {
	for i, a := range agents {
		if a.infectedTime <= timeLimit && a.contagiousTime != a.infectedTime {
			if err := sess.ChangeState(i, a.infectedTime, stateIncubating); err != nil {
				return fmt.Errorf("change state for agent %d: %w", i, err)
			}
		}
		if a.contagiousTime <= timeLimit {
			if err := sess.ChangeState(i, a.contagiousTime, stateContagious); err != nil {
				return fmt.Errorf("change state for agent %d: %w", i, err)
			}
		}
	}
	for i := susceptible; i < numAgents; i++ {
		if err := sess.ChangeState(i, 0.0, stateImmune); err != nil {
			return fmt.Errorf("change state for immune agent %d: %w", i, err)
		}
	}
	return nil
}
