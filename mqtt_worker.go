package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Bridge-owned MQTT topics.
const (
	// Command topic of the Auto Control switch created via discovery.
	TopicAutoControlSet = "homeassistant/switch/intuitherm_auto_control/set"
	// Override requests as JSON: {"action": ..., "power_kw"?: ..., "duration_minutes"?: ...}
	TopicOverrideSet = "intuitherm/bridge/override/set"
)

// mqttWorker manages the MQTT connection: it subscribes to the statestream
// topics of every configured entity plus the bridge's command topics, and
// forwards what arrives to the state and command workers.
func mqttWorker(
	ctx context.Context,
	broker string,
	entityIDs []string,
	username, password string,
	msgChan chan<- SensorMessage,
	commandChan chan<- Command,
	clientChan chan<- mqtt.Client,
) {
	topics := make([]string, 0, len(entityIDs)+2)
	for _, id := range entityIDs {
		topics = append(topics, entityTopic(id))
	}
	topics = append(topics, TopicAutoControlSet, TopicOverrideSet)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:1883", broker))
	opts.SetClientID("intuitherm-bridge")
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v\n", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("Connected to MQTT broker at %s\n", broker)

		// Hand the fresh client to the sender worker so queued messages
		// (discovery configs included) flush after every reconnect.
		select {
		case clientChan <- client:
		case <-ctx.Done():
			return
		}

		for _, topic := range topics {
			token := client.Subscribe(topic, 0, func(client mqtt.Client, msg mqtt.Message) {
				handleMessage(ctx, msg, msgChan, commandChan)
			})

			if token.Wait() && token.Error() != nil {
				log.Printf("Failed to subscribe to topic %s: %v\n", topic, token.Error())
			} else {
				log.Printf("Subscribed to topic: %s\n", topic)
			}
		}
	})

	client := mqtt.NewClient(opts)

	log.Printf("Connecting to MQTT broker at %s...\n", broker)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("Failed to connect to MQTT broker: %v\n", token.Error())
		return
	}

	<-ctx.Done()

	if client.IsConnected() {
		client.Disconnect(250)
		log.Println("Disconnected from MQTT broker")
	}
}

// handleMessage routes one incoming MQTT message to the right worker.
func handleMessage(
	ctx context.Context,
	msg mqtt.Message,
	msgChan chan<- SensorMessage,
	commandChan chan<- Command,
) {
	topic := msg.Topic()
	payload := string(msg.Payload())

	switch topic {
	case TopicAutoControlSet:
		cmd := Command{Kind: CommandDisable}
		if payload == "ON" {
			cmd.Kind = CommandEnable
		}
		select {
		case commandChan <- cmd:
		case <-ctx.Done():
		}

	case TopicOverrideSet:
		var body struct {
			Action          string   `json:"action"`
			PowerKW         *float64 `json:"power_kw"`
			DurationMinutes *int     `json:"duration_minutes"`
		}
		if err := json.Unmarshal(msg.Payload(), &body); err != nil || body.Action == "" {
			log.Printf("Ignoring malformed override request: %s\n", payload)
			return
		}
		cmd := Command{
			Kind:            CommandOverride,
			Action:          body.Action,
			PowerKW:         body.PowerKW,
			DurationMinutes: body.DurationMinutes,
		}
		select {
		case commandChan <- cmd:
		case <-ctx.Done():
		}

	default:
		entityID := topicEntity(topic)
		if entityID == "" {
			return
		}
		select {
		case msgChan <- SensorMessage{EntityID: entityID, Value: payload}:
		case <-ctx.Done():
		}
	}
}
