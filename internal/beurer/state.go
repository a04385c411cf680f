package beurer

import "fmt"

// BrightnessUnknown marks a brightness the lamp has not reported yet. Off
// replies carry no brightness, so the value goes unknown whenever the
// matching circuit reports off.
const BrightnessUnknown = -1

// Mode selects which light circuit commands target.
type Mode uint8

const (
	ModeWhite Mode = iota
	ModeColor
)

func (m Mode) String() string {
	if m == ModeColor {
		return "color"
	}
	return "white"
}

// RGB is a mood-light color triple.
type RGB struct {
	R, G, B uint8
}

// IsZero reports whether the triple is black, which the driver treats as
// "no color stored yet".
func (c RGB) IsZero() bool {
	return c == RGB{}
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// State is a snapshot of the lamp as the driver knows it: optimistic right
// after a command, authoritative once a status notification arrives.
// PowerOn is always WhiteOn || ColorOn.
type State struct {
	MAC             string
	PowerOn         bool
	Mode            Mode
	WhiteOn         bool
	WhiteBrightness int // 0-255, BrightnessUnknown until reported
	ColorOn         bool
	ColorBrightness int // 0-255, BrightnessUnknown until reported
	Color           RGB
	Effect          string
}
