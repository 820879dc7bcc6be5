package intuitherm

import (
	"context"
	"log"
)

// CommandResult is the outcome of one control command: either the decoded
// service response or a failure detail. Command methods never return
// errors; failure is part of the result shape.
type CommandResult struct {
	Response map[string]any
	Detail   string
}

// Failed reports whether the command did not reach the service or was
// rejected by it.
func (r CommandResult) Failed() bool {
	return r.Response == nil
}

// Payload returns the wire shape consumers see: the service response on
// success, {"status": "failed", "detail": ...} otherwise.
func (r CommandResult) Payload() map[string]any {
	if r.Failed() {
		return map[string]any{"status": "failed", "detail": r.Detail}
	}
	return r.Response
}

func failedResult(err error) CommandResult {
	return CommandResult{Detail: err.Error()}
}

func message(payload map[string]any) any {
	return payload["message"]
}

// Override sends a manual control override. powerKW and durationMinutes
// are optional; nil leaves them out of the request body.
func (c *Coordinator) Override(ctx context.Context, action string, powerKW *float64, durationMinutes *int) CommandResult {
	log.Printf("Sending manual override: action=%s, power=%v, duration=%v\n", action, powerKW, durationMinutes)

	payload := map[string]any{"action": action}
	if powerKW != nil {
		payload["power_kw"] = *powerKW
	}
	if durationMinutes != nil {
		payload["duration_minutes"] = *durationMinutes
	}

	result, err := c.client.PostJSON(ctx, EndpointControlOverride, payload)
	if err != nil {
		log.Printf("Manual override failed: %v\n", err)
		return failedResult(err)
	}
	log.Printf("Manual override successful: %v\n", message(result))
	return CommandResult{Response: result}
}

// EnableAutoControl turns the service's automatic battery control on.
func (c *Coordinator) EnableAutoControl(ctx context.Context) CommandResult {
	log.Println("Enabling automatic control")

	result, err := c.client.PostJSON(ctx, EndpointControlEnable, nil)
	if err != nil {
		log.Printf("Failed to enable automatic control: %v\n", err)
		return failedResult(err)
	}
	log.Printf("Automatic control enabled: %v\n", message(result))
	return CommandResult{Response: result}
}

// DisableAutoControl turns the service's automatic battery control off.
func (c *Coordinator) DisableAutoControl(ctx context.Context) CommandResult {
	log.Println("Disabling automatic control")

	result, err := c.client.PostJSON(ctx, EndpointControlDisable, nil)
	if err != nil {
		log.Printf("Failed to disable automatic control: %v\n", err)
		return failedResult(err)
	}
	log.Printf("Automatic control disabled: %v\n", message(result))
	return CommandResult{Response: result}
}
