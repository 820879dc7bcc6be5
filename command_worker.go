package main

import (
	"context"
	"log"
	"time"

	"github.com/intuitherm/bridge/intuitherm"
)

// Command kinds accepted by the command worker.
const (
	CommandOverride = "override"
	CommandEnable   = "enable"
	CommandDisable  = "disable"
)

// Command is one control request, arriving from the Auto Control switch,
// the override topic, or the console.
type Command struct {
	Kind            string
	Action          string
	PowerKW         *float64
	DurationMinutes *int
}

// commandTimeout bounds one control command round-trip.
const commandTimeout = 15 * time.Second

// commandWorker executes control commands against the service and
// publishes each result. Commands never produce errors, only
// result payloads, so a failed command cannot disturb the refresh loop.
func commandWorker(
	ctx context.Context,
	coordinator *intuitherm.Coordinator,
	commandChan <-chan Command,
	sender *MQTTSender,
) {
	log.Println("Command worker started")

	for {
		select {
		case cmd := <-commandChan:
			result := runCommand(ctx, coordinator, cmd)

			if result.Failed() {
				log.Printf("Command %s failed: %s\n", cmd.Kind, result.Detail)
			}
			if err := sender.SendJSON(TopicCommandResult, result.Payload()); err != nil {
				log.Printf("Failed to marshal command result: %v\n", err)
			}

		case <-ctx.Done():
			log.Println("Command worker stopped")
			return
		}
	}
}

func runCommand(ctx context.Context, coordinator *intuitherm.Coordinator, cmd Command) intuitherm.CommandResult {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd.Kind {
	case CommandOverride:
		return coordinator.Override(cmdCtx, cmd.Action, cmd.PowerKW, cmd.DurationMinutes)
	case CommandEnable:
		return coordinator.EnableAutoControl(cmdCtx)
	case CommandDisable:
		return coordinator.DisableAutoControl(cmdCtx)
	default:
		return intuitherm.CommandResult{Detail: "unknown command: " + cmd.Kind}
	}
}
