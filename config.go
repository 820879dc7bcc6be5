package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/intuitherm/bridge/intuitherm"
)

// Config holds everything the bridge needs, read from the environment
// (optionally seeded from a .env file in main).
type Config struct {
	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string

	ServiceURL     string
	APIKey         string
	UpdateInterval time.Duration

	Sensors intuitherm.SensorConfig
}

// LoadConfig reads and validates the bridge configuration from the
// environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTUsername: os.Getenv("MQTT_USERNAME"),
		MQTTPassword: os.Getenv("MQTT_PASSWORD"),
		ServiceURL:   os.Getenv("SERVICE_URL"),
		APIKey:       os.Getenv("API_KEY"),
		Sensors: intuitherm.SensorConfig{
			SolarSensors:            splitList(os.Getenv("SOLAR_SENSORS")),
			BatteryDischargeSensors: splitList(os.Getenv("BATTERY_DISCHARGE_SENSORS")),
			BatteryChargeSensors:    splitList(os.Getenv("BATTERY_CHARGE_SENSORS")),
			GridImportSensors:       splitList(os.Getenv("GRID_IMPORT_SENSORS")),
			GridExportSensors:       splitList(os.Getenv("GRID_EXPORT_SENSORS")),
			BatterySOCEntity:        strings.TrimSpace(os.Getenv("BATTERY_SOC_ENTITY")),
		},
	}

	if cfg.MQTTBroker == "" {
		cfg.MQTTBroker = "homeassistant.lan"
	}
	if cfg.MQTTUsername == "" || cfg.MQTTPassword == "" {
		return nil, fmt.Errorf("MQTT_USERNAME and MQTT_PASSWORD must be set")
	}
	if cfg.ServiceURL == "" {
		return nil, fmt.Errorf("SERVICE_URL must be set")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY must be set")
	}

	interval := 60
	if raw := os.Getenv("UPDATE_INTERVAL_SECONDS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("UPDATE_INTERVAL_SECONDS must be a positive integer, got %q", raw)
		}
		interval = parsed
	}
	cfg.UpdateInterval = time.Duration(interval) * time.Second

	return cfg, nil
}

// splitList parses a comma-separated list of entity IDs, dropping empty
// items so trailing commas are harmless.
func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// SensorEntityIDs returns every configured entity ID, deduplicated, for
// building the MQTT subscription list.
func (c *Config) SensorEntityIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, group := range c.Sensors.Groups() {
		for _, id := range group.EntityIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
