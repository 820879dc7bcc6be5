package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"

	"github.com/intuitherm/bridge/intuitherm"
)

// SafeGo launches a goroutine with panic recovery and retry logic.
// On panic, retries with exponential backoff (max 10 retries).
// Retry count resets if worker ran for 2+ minutes before failing.
// After exhausting retries, cancels context to trigger shutdown.
func SafeGo(
	ctx context.Context,
	cancel context.CancelFunc,
	name string,
	fn func(ctx context.Context),
) {
	const maxRetries = 10
	const maxDelay = 10 * time.Minute
	const resetAfter = 2 * time.Minute

	go func() {
		retries := 0
		delay := time.Second

		for {
			startTime := time.Now()
			var panicValue any

			func() {
				defer func() {
					panicValue = recover()
				}()
				fn(ctx)
			}()

			// If function returned normally (no panic), exit the goroutine
			// This covers both context cancellation and unexpected completion
			if panicValue == nil {
				return
			}

			// If ran for resetAfter duration before panicking, reset retry state
			if time.Since(startTime) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			log.Printf("Panic in %s (attempt %d/%d): %v\n", name, retries, maxRetries, panicValue)

			// Check if we've exhausted retries
			if retries >= maxRetries {
				log.Printf("%s failed after %d retries, shutting down\n", name, maxRetries)
				cancel()
				return
			}

			// Wait before retry with exponential backoff
			log.Printf("%s will retry in %v\n", name, delay)
			select {
			case <-time.After(delay):
				// Double delay for next time, cap at max
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func main() {
	log.Println("Starting intuitherm-bridge...")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Create context for lifecycle management
	ctx, cancel := context.WithCancel(context.Background())

	// Channels for communication between workers
	msgChan := make(chan SensorMessage, 100)
	commandChan := make(chan Command, 10)
	updateChan := make(chan CycleUpdate, 10)
	mqttOutgoingChan := make(chan MQTTMessage, 100) // Larger buffer for queuing
	mqttClientChan := make(chan mqtt.Client, 1)     // Buffered to prevent blocking onConnect

	// Launch MQTT sender worker (receives client updates via channel)
	SafeGo(ctx, cancel, "mqtt-sender-worker", func(ctx context.Context) {
		mqttSenderWorker(ctx, mqttOutgoingChan, mqttClientChan)
	})
	log.Println("MQTT sender worker started")

	sender := NewMQTTSender(mqttOutgoingChan)

	// Create the bridge's Home Assistant entities
	log.Println("Creating Home Assistant entities...")

	entityCreates := []func() error{
		func() error { return sender.CreateBridgeSensor("Service Status", "", "service_status") },
		func() error { return sender.CreateBridgeSensor("Bridge Status", "", "bridge_status") },
		func() error { return sender.CreateBridgeSensor("Last Update", "timestamp", "last_update") },
		sender.CreateAutoControlSwitch,
	}
	for _, create := range entityCreates {
		if err := create(); err != nil {
			cancel()
			log.Fatalf("Failed to create Home Assistant entity: %v", err)
		}
	}

	log.Println("Home Assistant entities created")

	// Entity state registry fed by MQTT, read by the sensor forwarder
	states := NewEntityStates()
	SafeGo(ctx, cancel, "state-worker", func(ctx context.Context) {
		stateWorker(ctx, msgChan, states)
	})

	// IntuiTherm service client, forwarder, and refresh coordinator
	client := intuitherm.NewClient(cfg.ServiceURL, cfg.APIKey)
	forwarder := intuitherm.NewForwarder(client, states)
	coordinator := intuitherm.NewCoordinator(client, forwarder, cfg.Sensors)

	log.Printf("IntuiTherm coordinator initialized (service: %s, interval: %s)\n", cfg.ServiceURL, cfg.UpdateInterval)

	// Downstream snapshot consumers
	haChan := make(chan CycleUpdate, 10)
	consoleChan := make(chan CycleUpdate, 10)

	SafeGo(ctx, cancel, "ha-publish-worker", func(ctx context.Context) {
		haPublishWorker(ctx, haChan, sender)
	})

	SafeGo(ctx, cancel, "console-worker", func(ctx context.Context) {
		consoleWorker(ctx, cancel, consoleChan, commandChan, states)
	})

	SafeGo(ctx, cancel, "broadcast-worker", func(ctx context.Context) {
		broadcastWorker(ctx, updateChan, []chan<- CycleUpdate{haChan, consoleChan})
	})

	// Command worker executes override/enable/disable requests
	SafeGo(ctx, cancel, "command-worker", func(ctx context.Context) {
		commandWorker(ctx, coordinator, commandChan, sender)
	})

	// Refresh loop
	SafeGo(ctx, cancel, "coordinator-worker", func(ctx context.Context) {
		coordinatorWorker(ctx, coordinator, cfg.UpdateInterval, updateChan)
	})

	// Launch MQTT worker
	SafeGo(ctx, cancel, "mqtt-worker", func(ctx context.Context) {
		mqttWorker(ctx, cfg.MQTTBroker, cfg.SensorEntityIDs(), cfg.MQTTUsername, cfg.MQTTPassword, msgChan, commandChan, mqttClientChan)
	})
	log.Println("MQTT worker started")

	// Wait for interrupt signal or context cancellation (from panic)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("\nShutting down...")
	case <-ctx.Done():
		log.Println("\nShutting down due to error...")
	}
	cancel()
}
