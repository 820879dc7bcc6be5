package main

import (
	"context"
	"encoding/json"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topics for the bridge's own Home Assistant entities.
const (
	TopicBridgeState      = "homeassistant/sensor/intuitherm_bridge/state"
	TopicBridgeAttributes = "homeassistant/sensor/intuitherm_bridge/attributes"
	TopicAutoControlState = "homeassistant/switch/intuitherm_auto_control/state"
	TopicCommandResult    = "intuitherm/bridge/command/result"
)

// MQTTMessage represents an outgoing MQTT message
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MQTTSender wraps a channel for sending MQTT messages with helper methods
type MQTTSender struct {
	ch chan<- MQTTMessage
}

// NewMQTTSender creates a new MQTTSender wrapping the given channel
func NewMQTTSender(ch chan<- MQTTMessage) *MQTTSender {
	return &MQTTSender{ch: ch}
}

// Send sends a raw MQTTMessage
func (s *MQTTSender) Send(msg MQTTMessage) {
	s.ch <- msg
}

// SendJSON marshals payload and sends it on topic at QoS 0.
func (s *MQTTSender) SendJSON(topic string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.Send(MQTTMessage{Topic: topic, Payload: encoded, QoS: 0, Retain: false})
	return nil
}

type haDeviceConfig struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

var bridgeDevice = haDeviceConfig{
	Identifiers:  []string{"intuitherm_bridge"},
	Name:         "IntuiTherm Service",
	Manufacturer: "IntuiTherm",
}

// CreateBridgeSensor creates one sensor entity of the bridge device via
// MQTT discovery. All bridge sensors share one state topic and select
// their value with a value_template key.
func (s *MQTTSender) CreateBridgeSensor(entityName, deviceClass, jsonKey string) error {
	type haEntityConfig struct {
		Name                string         `json:"name,omitempty"`
		DeviceClass         string         `json:"device_class,omitempty"`
		StateTopic          string         `json:"state_topic"`
		JsonAttributesTopic string         `json:"json_attributes_topic,omitempty"`
		ValueTemplate       string         `json:"value_template"`
		UniqueId            string         `json:"unique_id"`
		Device              haDeviceConfig `json:"device"`
	}

	config := haEntityConfig{
		Name:                entityName,
		DeviceClass:         deviceClass,
		StateTopic:          TopicBridgeState,
		JsonAttributesTopic: TopicBridgeAttributes,
		ValueTemplate:       "{{ value_json." + jsonKey + "}}",
		UniqueId:            "intuitherm_bridge_" + jsonKey,
		Device:              bridgeDevice,
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}

	s.Send(MQTTMessage{
		Topic:   "homeassistant/sensor/intuitherm_bridge_" + jsonKey + "/config",
		Payload: payload,
		QoS:     2,
		Retain:  true,
	})

	return nil
}

// CreateAutoControlSwitch creates the Auto Control switch via MQTT
// discovery. The switch is not optimistic: its state follows the control
// status reported by the service, not the command we sent.
func (s *MQTTSender) CreateAutoControlSwitch() error {
	type haSwitchConfig struct {
		Name         string         `json:"name"`
		StateTopic   string         `json:"state_topic"`
		CommandTopic string         `json:"command_topic"`
		UniqueId     string         `json:"unique_id"`
		Icon         string         `json:"icon,omitempty"`
		Device       haDeviceConfig `json:"device"`
	}

	config := haSwitchConfig{
		Name:         "Auto Control",
		StateTopic:   TopicAutoControlState,
		CommandTopic: TopicAutoControlSet,
		UniqueId:     "intuitherm_auto_control",
		Icon:         "mdi:battery-sync",
		Device:       bridgeDevice,
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}

	s.Send(MQTTMessage{
		Topic:   "homeassistant/switch/intuitherm_auto_control/config",
		Payload: payload,
		QoS:     2,
		Retain:  true,
	})

	return nil
}

// mqttSenderWorker handles outgoing MQTT messages, queueing while the
// connection is down and flushing once a (re)connected client arrives.
func mqttSenderWorker(
	ctx context.Context,
	outgoingChan <-chan MQTTMessage,
	clientChan <-chan mqtt.Client,
) {
	var client mqtt.Client
	var messageQueue []MQTTMessage

	publish := func(msg MQTTMessage) {
		token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to publish to %s: %v\n", msg.Topic, token.Error())
		}
	}

	for {
		select {
		case newClient := <-clientChan:
			log.Println("MQTT sender worker received new client")
			client = newClient

			if client != nil && client.IsConnected() {
				for _, msg := range messageQueue {
					publish(msg)
				}
				if len(messageQueue) > 0 {
					log.Printf("MQTT sender worker processed %d queued messages\n", len(messageQueue))
				}
				messageQueue = nil
			}

		case msg := <-outgoingChan:
			if client != nil && client.IsConnected() {
				publish(msg)
			} else {
				messageQueue = append(messageQueue, msg)
				log.Printf("MQTT sender worker queued message (total queued: %d)\n", len(messageQueue))
			}

		case <-ctx.Done():
			log.Println("MQTT sender worker stopped")
			return
		}
	}
}
