package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/beurer"
)

// discoveryTopic returns the Home Assistant MQTT discovery config topic for
// one lamp.
func discoveryTopic(discoveryPrefix, id string) string {
	return fmt.Sprintf("%s/light/beurerctl/%s/config", discoveryPrefix, id)
}

// discoveryPayload builds the retained discovery config that makes Home
// Assistant create a JSON-schema light entity for the lamp.
func discoveryPayload(name, mac, id string, topics Topics) ([]byte, error) {
	payload := map[string]interface{}{
		"name":                  name,
		"unique_id":             "beurer_" + id,
		"schema":                "json",
		"command_topic":         topics.Command(),
		"state_topic":           topics.State(),
		"availability_topic":    topics.Availability(),
		"brightness":            true,
		"effect":                true,
		"effect_list":           beurer.Effects(),
		"supported_color_modes": []string{"rgb", "white"},
		"device": map[string]interface{}{
			"identifiers":  []string{"beurer_" + id},
			"connections":  [][]string{{"mac", mac}},
			"name":         name,
			"manufacturer": "Beurer",
			"model":        "TL100",
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bridge: encode discovery payload: %w", err)
	}
	return data, nil
}
