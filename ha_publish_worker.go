package main

import (
	"context"
	"log"

	"github.com/intuitherm/bridge/intuitherm"
)

// haPublishWorker mirrors each cycle's snapshot into the bridge's Home
// Assistant entities. On a failed cycle the last good snapshot's values
// stay published and only the bridge status flips to the failure message.
func haPublishWorker(ctx context.Context, updateChan <-chan CycleUpdate, sender *MQTTSender) {
	log.Println("HA publish worker started")

	var lastGood *intuitherm.Snapshot

	for {
		select {
		case update := <-updateChan:
			if update.Err != nil {
				publishBridgeState(sender, lastGood, "update failed: "+update.Err.Error())
				continue
			}
			lastGood = update.Snapshot
			publishBridgeState(sender, lastGood, "ok")

		case <-ctx.Done():
			log.Println("HA publish worker stopped")
			return
		}
	}
}

// publishBridgeState publishes the flat state payload the discovery
// sensors template into, the full snapshot as attributes, and the Auto
// Control switch state.
func publishBridgeState(sender *MQTTSender, snap *intuitherm.Snapshot, bridgeStatus string) {
	state := map[string]any{
		"bridge_status":  bridgeStatus,
		"service_status": "unknown",
		"last_update":    "",
	}

	if snap != nil {
		state["last_update"] = snap.LastUpdate
		if snap.Health != nil {
			if status, ok := snap.Health["status"].(string); ok {
				state["service_status"] = status
			}
		}
	}

	if err := sender.SendJSON(TopicBridgeState, state); err != nil {
		log.Printf("Failed to marshal bridge state: %v\n", err)
		return
	}

	if snap != nil {
		attributes := map[string]any{
			"last_update": snap.LastUpdate,
			"health":      snap.Health,
			"control":     snap.Control,
			"metrics":     snap.Metrics,
		}
		if err := sender.SendJSON(TopicBridgeAttributes, attributes); err != nil {
			log.Printf("Failed to marshal bridge attributes: %v\n", err)
		}

		if enabled, ok := autoControlEnabled(snap); ok {
			switchState := "OFF"
			if enabled {
				switchState = "ON"
			}
			sender.Send(MQTTMessage{Topic: TopicAutoControlState, Payload: []byte(switchState), QoS: 0})
		}
	}
}

// autoControlEnabled extracts the automatic-control flag from the control
// status payload. Missing control payload means the flag is unknown and
// the switch state is left untouched.
func autoControlEnabled(snap *intuitherm.Snapshot) (enabled, ok bool) {
	if snap.Control == nil {
		return false, false
	}
	enabled, ok = snap.Control["auto_control_enabled"].(bool)
	return enabled, ok
}
