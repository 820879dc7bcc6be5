package intuitherm

import (
	"context"
	"log"
	"strconv"
	"time"
)

// Category is the service-side classification for a pushed reading.
type Category string

const (
	CategorySolar Category = "solar"
	CategorySOC   Category = "soc"
	CategoryLoad  Category = "load"
)

// SensorConfig holds the Home Assistant entity IDs whose readings are
// forwarded to the service, grouped by what they measure.
type SensorConfig struct {
	SolarSensors            []string
	BatteryDischargeSensors []string
	BatteryChargeSensors    []string
	GridImportSensors       []string
	GridExportSensors       []string

	// Optional single state-of-charge entity, forwarded as its own group.
	BatterySOCEntity string
}

// SensorGroup maps a list of entity IDs to one category.
type SensorGroup struct {
	EntityIDs []string
	Category  Category
}

// Groups returns the ordered category assignment. The assignment is fixed
// per configuration: battery charge and discharge both correlate with SOC,
// grid import and export both indicate load.
func (c SensorConfig) Groups() []SensorGroup {
	groups := []SensorGroup{
		{c.SolarSensors, CategorySolar},
		{c.BatteryDischargeSensors, CategorySOC},
		{c.BatteryChargeSensors, CategorySOC},
		{c.GridImportSensors, CategoryLoad},
		{c.GridExportSensors, CategoryLoad},
	}
	if c.BatterySOCEntity != "" {
		groups = append(groups, SensorGroup{[]string{c.BatterySOCEntity}, CategorySOC})
	}
	return groups
}

// StateSource provides read-only access to the host platform's current
// entity values. The second return is false when the entity is unknown.
type StateSource interface {
	State(entityID string) (string, bool)
}

// Forwarder pushes current entity readings to the service, one call per
// entity so a failing sensor never blocks the others.
type Forwarder struct {
	client *Client
	states StateSource
	now    func() time.Time
}

// NewForwarder creates a forwarder reading values from states.
func NewForwarder(client *Client, states StateSource) *Forwarder {
	return &Forwarder{client: client, states: states, now: time.Now}
}

// PushReadings sends one reading per configured entity whose current value
// parses as a number. Sentinel states and per-entity failures are logged
// and skipped. Only context cancellation aborts the loop.
func (f *Forwarder) PushReadings(ctx context.Context, cfg SensorConfig) error {
	for _, group := range cfg.Groups() {
		for _, entityID := range group.EntityIDs {
			if err := ctx.Err(); err != nil {
				return err
			}

			raw, ok := f.states.State(entityID)
			if !ok || raw == "unknown" || raw == "unavailable" {
				log.Printf("Skipping %s: no usable state\n", entityID)
				continue
			}

			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				log.Printf("Could not parse value for %s: %q\n", entityID, raw)
				continue
			}

			payload := map[string]any{
				"sensor_type": string(group.Category),
				"entity_id":   entityID,
				"readings": []map[string]any{
					{
						"timestamp": f.now().UTC().Format(time.RFC3339),
						"value":     value,
					},
				},
			}

			if _, err := f.client.PostJSON(ctx, EndpointSensorData, payload); err != nil {
				log.Printf("Failed to send reading for %s: %v\n", entityID, err)
				continue
			}
			log.Printf("Sent %s reading for %s: %v\n", group.Category, entityID, value)
		}
	}
	return nil
}
