package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/intuitherm/bridge/intuitherm"
)

// readlineWriter wraps log output to work with readline
type readlineWriter struct {
	rl *readline.Instance
}

func (w *readlineWriter) Write(p []byte) (n int, err error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err = os.Stderr.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

// Global readline writer for log output
var rlWriter = &readlineWriter{}

// ConsoleState holds what the console needs to answer status queries.
type ConsoleState struct {
	lastSnapshot *intuitherm.Snapshot
	lastErr      error
	states       *EntityStates
	rl           *readline.Instance
}

// print outputs a line, handling the readline prompt properly
func (s *ConsoleState) print(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if s.rl != nil {
		s.rl.Clean()
		fmt.Println(line)
		s.rl.Refresh()
	} else {
		fmt.Println(line)
	}
}

// PrintStatus summarizes the latest refresh cycle.
func (s *ConsoleState) PrintStatus() {
	if s.lastSnapshot == nil && s.lastErr == nil {
		s.print("No refresh cycle completed yet")
		return
	}
	if s.lastErr != nil {
		s.print("Last cycle FAILED: %v", s.lastErr)
	}
	if s.lastSnapshot == nil {
		return
	}

	s.print("Last update: %s", s.lastSnapshot.LastUpdate)
	s.printSection("health", s.lastSnapshot.Health)
	s.printSection("control", s.lastSnapshot.Control)
	s.printSection("metrics", s.lastSnapshot.Metrics)
}

func (s *ConsoleState) printSection(name string, payload map[string]any) {
	if payload == nil {
		s.print("  %s: unavailable", name)
		return
	}

	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	s.print("  %s:", name)
	for _, key := range keys {
		s.print("    %s = %v", key, payload[key])
	}
}

// PrintSensors lists the current Home Assistant entity values the bridge
// has seen so far.
func (s *ConsoleState) PrintSensors() {
	values := s.states.All()
	if len(values) == 0 {
		s.print("No sensor states received yet")
		return
	}

	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.print("Known entities (%d):", len(ids))
	for _, id := range ids {
		s.print("  %s = %s", id, values[id])
	}
}

// parseOverride parses "override <action> [power_kw] [duration_minutes]".
func parseOverride(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("usage: override <action> [power_kw] [duration_minutes]")
	}

	cmd := Command{Kind: CommandOverride, Action: args[0]}

	if len(args) > 1 {
		power, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return Command{}, fmt.Errorf("power_kw must be a number, got %q", args[1])
		}
		cmd.PowerKW = &power
	}
	if len(args) > 2 {
		duration, err := strconv.Atoi(args[2])
		if err != nil || duration <= 0 {
			return Command{}, fmt.Errorf("duration_minutes must be a positive integer, got %q", args[2])
		}
		cmd.DurationMinutes = &duration
	}
	if len(args) > 3 {
		return Command{}, fmt.Errorf("too many arguments")
	}

	return cmd, nil
}

// handleConsoleCommand processes one console line.
func handleConsoleCommand(line string, state *ConsoleState, commandChan chan<- Command) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case "status":
		state.PrintStatus()

	case "sensors":
		state.PrintSensors()

	case "override":
		cmd, err := parseOverride(parts[1:])
		if err != nil {
			log.Printf("Error: %v", err)
			return
		}
		commandChan <- cmd

	case "enable":
		commandChan <- Command{Kind: CommandEnable}

	case "disable":
		commandChan <- Command{Kind: CommandDisable}

	case "help":
		fmt.Println("Commands:")
		fmt.Println("  status                                     - Show the latest snapshot")
		fmt.Println("  sensors                                    - List known entity values")
		fmt.Println("  override <action> [power_kw] [duration_m]  - Send a manual override")
		fmt.Println("  enable                                     - Enable automatic control")
		fmt.Println("  disable                                    - Disable automatic control")
		fmt.Println("  help                                       - Show this help")

	default:
		log.Printf("Unknown command: %s (try 'help')", parts[0])
	}
}

// readlineLoop runs the readline loop, sending lines to the channel
func readlineLoop(
	ctx context.Context,
	cancel context.CancelFunc,
	rl *readline.Instance,
	lineChan chan<- string,
) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			cancel() // Ctrl+C pressed, shutdown the app
			return
		}
		if err != nil {
			return // EOF or other error
		}
		line = strings.TrimSpace(line)
		if line != "" {
			lineChan <- line
		}
	}
}

// getHistoryFilePath returns the path for console history file
func getHistoryFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // No history if we can't find home
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	bridgeCache := filepath.Join(cacheDir, "intuitherm-bridge")
	_ = os.MkdirAll(bridgeCache, 0750)
	return filepath.Join(bridgeCache, "console_history")
}

// consoleWorker provides the interactive console: cycle status, known
// sensor values, and the three control commands.
func consoleWorker(
	ctx context.Context,
	cancel context.CancelFunc,
	updateChan <-chan CycleUpdate,
	commandChan chan<- Command,
	states *EntityStates,
) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: getHistoryFilePath(),
	})
	if err != nil {
		log.Printf("Console worker: readline init failed: %v", err)
		return
	}
	defer func() {
		_ = rl.Close()
		rlWriter.rl = nil // Clear readline reference on exit
	}()

	// Redirect log output through readline-aware writer
	rlWriter.rl = rl
	log.SetOutput(rlWriter)

	log.Println("Console worker started (type 'help' for commands)")

	lineChan := make(chan string, 10)
	state := &ConsoleState{states: states, rl: rl}

	go readlineLoop(ctx, cancel, rl, lineChan)

	for {
		select {
		case line := <-lineChan:
			handleConsoleCommand(line, state, commandChan)

		case update := <-updateChan:
			if update.Err != nil {
				state.lastErr = update.Err
			} else {
				state.lastErr = nil
				state.lastSnapshot = update.Snapshot
			}

		case <-ctx.Done():
			log.Println("Console worker stopped")
			return
		}
	}
}
