package protocol

import "errors"

// Reply versions, byte 8 of a status notification.
const (
	replyShutdown byte = 0x00
	replyWhite    byte = 0x01
	replyColor    byte = 0x02
	replyAllOff   byte = 0xFF
)

// Offsets of the notification fields the driver reads.
const (
	offVersion    = 8
	offOn         = 9
	offBrightness = 10
	offRed        = 13
	offGreen      = 14
	offBlue       = 15
	offEffect     = 16
)

// Kind classifies a decoded status notification.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindWhite
	KindColor
	KindAllOff
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindWhite:
		return "white"
	case KindColor:
		return "color"
	case KindAllOff:
		return "all-off"
	case KindShutdown:
		return "shutdown"
	}
	return "unknown"
}

// ErrTruncated reports a notification too short to carry the fields its
// reply version promises.
var ErrTruncated = errors.New("protocol: truncated status notification")

// Status is one decoded status notification.
//
// Brightness, R, G, B and Effect are populated only when On is true; the
// lamp zeroes them in off replies, so off replies carry no light settings.
type Status struct {
	Kind       Kind
	Version    byte // raw reply version, kept for logging unknown replies
	On         bool
	Brightness uint8 // 0-255 scale, converted from the wire percentage
	R, G, B    uint8
	Effect     string
}

// ParseStatus decodes a raw notification payload.
//
//	byte 8:      reply version (1 white, 2 color, 0x00 shutdown, 0xFF all-off)
//	byte 9:      on flag (white and color replies)
//	byte 10:     brightness percentage (white and color replies, when on)
//	bytes 13-15: r, g, b (color replies, when on)
//	byte 16:     effect index (color replies, when on)
//
// Payloads shorter than the fields their version promises fail with
// ErrTruncated. An unrecognized version decodes to KindUnknown so the
// caller can log the raw byte and move on.
func ParseStatus(data []byte) (Status, error) {
	if len(data) <= offVersion {
		return Status{}, ErrTruncated
	}
	st := Status{Version: data[offVersion]}
	switch st.Version {
	case replyWhite:
		st.Kind = KindWhite
		if len(data) <= offOn {
			return Status{}, ErrTruncated
		}
		st.On = data[offOn] == 0x01
		if st.On {
			if len(data) <= offBrightness {
				return Status{}, ErrTruncated
			}
			st.Brightness = PercentToLevel(data[offBrightness])
		}
	case replyColor:
		st.Kind = KindColor
		if len(data) <= offOn {
			return Status{}, ErrTruncated
		}
		st.On = data[offOn] == 0x01
		if st.On {
			if len(data) <= offEffect {
				return Status{}, ErrTruncated
			}
			st.Brightness = PercentToLevel(data[offBrightness])
			st.R = data[offRed]
			st.G = data[offGreen]
			st.B = data[offBlue]
			st.Effect = EffectName(data[offEffect])
		}
	case replyAllOff:
		st.Kind = KindAllOff
	case replyShutdown:
		st.Kind = KindShutdown
	default:
		st.Kind = KindUnknown
	}
	return st, nil
}

// PercentToLevel converts the lamp's 0-100 brightness percentage to the
// 0-255 scale the driver exposes, rounding half up. Percentages above 100
// clamp to 255.
func PercentToLevel(percent uint8) uint8 {
	if percent >= 100 {
		return 255
	}
	return uint8((uint16(percent)*255 + 50) / 100)
}

// LevelToPercent converts a 0-255 brightness level to the lamp's 0-100
// percentage, rounding half up.
func LevelToPercent(level uint8) uint8 {
	return uint8((uint16(level)*100 + 127) / 255)
}
