// Command uamp-echo connects to a UAMP server, requests a simulation, and
// prints every agent's command sequence to stdout as it walks each agent
// to the end of the time limit.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/behrlich/go-uamp"
	"github.com/behrlich/go-uamp/internal/logging"
)

const (
	defaultNumAgents = 10
	defaultTimeLimit = 100.0
	defaultSeed      = 0
)

func main() {
	var (
		numAgents = flag.Int("n", defaultNumAgents, "number of agents to request")
		timeLimit = flag.Float64("t", defaultTimeLimit, "simulation duration, in seconds")
		seed      = flag.Int64("s", defaultSeed, "random seed to request")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-n numAgents] [-t durationSeconds] [-s randomSeed] hostname port\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
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

	fmt.Printf("Agents:      %d\n", *numAgents)
	fmt.Printf("Duration:    %.3f seconds\n", *timeLimit)
	fmt.Printf("Random seed: %d\n", *seed)

	if err := runClient(hostname, uint16(port), *numAgents, *timeLimit, *seed, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runClient(hostname string, port uint16, numAgents int, timeLimit float64, seed int64, logger *logging.Logger) error {
	params := uamp.DefaultConnectParams(hostname, port, numAgents, timeLimit, seed)
	params.Logger = logger

	sess, err := uamp.Connect(params)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Terminate()

	for onAgent := 0; onAgent < numAgents; onAgent++ {
		fmt.Printf("\nAgent %d\n", onAgent)
		for {
			cmd := sess.CurrentCommand(onAgent)
			fmt.Printf("Time %.3f: location %.3f, %.3f, %.3f\n", cmd.ToTime, cmd.ToX, cmd.ToY, cmd.ToZ)
			if !sess.IsMore(onAgent) {
				break
			}
			if err := sess.Advance(onAgent); err != nil {
				return fmt.Errorf("advance agent %d: %w", onAgent, err)
			}
		}
	}
	return nil
}
