package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/beurer"
)

// lightState is the JSON-schema light state published to the state topic.
type lightState struct {
	State      string    `json:"state"`
	ColorMode  string    `json:"color_mode,omitempty"`
	Brightness *int      `json:"brightness,omitempty"`
	Color      *rgbValue `json:"color,omitempty"`
	Effect     string    `json:"effect,omitempty"`
}

// lightCommand is the JSON-schema light command read from the set topic.
// Pointer fields distinguish "absent" from zero values.
type lightCommand struct {
	State      string    `json:"state"`
	Brightness *int      `json:"brightness"`
	White      *int      `json:"white"`
	Color      *rgbValue `json:"color"`
	Effect     *string   `json:"effect"`
}

type rgbValue struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// encodeState renders driver state as a JSON-schema light state payload.
// Unknown brightness is omitted rather than sent as a bogus zero, and white
// mode always reports effect Off since effects only exist on the color
// circuit.
func encodeState(st beurer.State) ([]byte, error) {
	out := lightState{State: "OFF"}
	if st.PowerOn {
		out.State = "ON"
	}
	switch st.Mode {
	case beurer.ModeColor:
		out.ColorMode = "rgb"
		if st.ColorBrightness != beurer.BrightnessUnknown {
			level := st.ColorBrightness
			out.Brightness = &level
		}
		out.Color = &rgbValue{R: st.Color.R, G: st.Color.G, B: st.Color.B}
		out.Effect = st.Effect
	default:
		out.ColorMode = "white"
		if st.WhiteBrightness != beurer.BrightnessUnknown {
			level := st.WhiteBrightness
			out.Brightness = &level
		}
		out.Effect = "Off"
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("bridge: encode state: %w", err)
	}
	return data, nil
}

func decodeCommand(payload []byte) (lightCommand, error) {
	var cmd lightCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return lightCommand{}, fmt.Errorf("bridge: decode command: %w", err)
	}
	return cmd, nil
}
