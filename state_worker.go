package main

import (
	"context"
	"log"
	"strings"
	"sync"
)

// SensorMessage is one state update from Home Assistant: the entity it
// belongs to and its raw value string.
type SensorMessage struct {
	EntityID string
	Value    string
}

// EntityStates is the bridge's view of the host platform's current entity
// values. Written by the state worker, read by the sensor forwarder and
// the console. Raw values are kept as-is, including "unknown" and
// "unavailable" - deciding what is usable is the forwarder's job.
type EntityStates struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewEntityStates creates an empty registry.
func NewEntityStates() *EntityStates {
	return &EntityStates{values: make(map[string]string)}
}

// State implements intuitherm.StateSource.
func (s *EntityStates) State(entityID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[entityID]
	return value, ok
}

// Set stores the current value for an entity.
func (s *EntityStates) Set(entityID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[entityID] = value
}

// All returns a copy of every known entity value.
func (s *EntityStates) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[string]string, len(s.values))
	for id, value := range s.values {
		copied[id] = value
	}
	return copied
}

// entityTopic maps a Home Assistant entity ID to its statestream state
// topic, e.g. "sensor.solar_power" -> "homeassistant/sensor/solar_power/state".
func entityTopic(entityID string) string {
	domain, object, found := strings.Cut(entityID, ".")
	if !found {
		// Not a domain-qualified ID; assume a sensor.
		return "homeassistant/sensor/" + entityID + "/state"
	}
	return "homeassistant/" + domain + "/" + object + "/state"
}

// topicEntity is the inverse of entityTopic for incoming messages.
// Returns "" for topics that are not statestream state topics.
func topicEntity(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "homeassistant" || parts[3] != "state" {
		return ""
	}
	return parts[1] + "." + parts[2]
}

// stateWorker consumes sensor messages from the MQTT worker and keeps the
// entity state registry current.
func stateWorker(ctx context.Context, msgChan <-chan SensorMessage, states *EntityStates) {
	log.Println("State worker started")

	for {
		select {
		case msg := <-msgChan:
			states.Set(msg.EntityID, msg.Value)

		case <-ctx.Done():
			log.Println("State worker stopped")
			return
		}
	}
}
