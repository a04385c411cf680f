package protocol

import (
	"errors"
	"testing"
)

// pad builds a notification payload: eight ignored header bytes followed by
// the status fields starting at the reply-version offset.
func pad(fields ...byte) []byte {
	return append(make([]byte, offVersion), fields...)
}

func TestParseStatusWhiteOn(t *testing.T) {
	// version=1, on=1, 50% -> level 128
	st, err := ParseStatus(pad(0x01, 0x01, 50))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if st.Kind != KindWhite || !st.On || st.Brightness != 128 {
		t.Errorf("ParseStatus() = %+v, want white on at 128", st)
	}
}

func TestParseStatusWhiteOff(t *testing.T) {
	st, err := ParseStatus(pad(0x01, 0x00))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if st.Kind != KindWhite || st.On || st.Brightness != 0 {
		t.Errorf("ParseStatus() = %+v, want white off", st)
	}
}

func TestParseStatusColorOn(t *testing.T) {
	// version=2, on=1, 100%, two padding bytes, rgb ff 64 32, effect 2
	st, err := ParseStatus(pad(0x02, 0x01, 100, 0x00, 0x00, 0xFF, 0x64, 0x32, 0x02))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if st.Kind != KindColor || !st.On {
		t.Fatalf("ParseStatus() = %+v, want color on", st)
	}
	if st.Brightness != 255 {
		t.Errorf("Brightness = %d, want 255", st.Brightness)
	}
	if st.R != 0xFF || st.G != 0x64 || st.B != 0x32 {
		t.Errorf("RGB = %02x %02x %02x, want ff 64 32", st.R, st.G, st.B)
	}
	if st.Effect != "Rainbow" {
		t.Errorf("Effect = %q, want %q", st.Effect, "Rainbow")
	}
}

func TestParseStatusColorEffectOutOfRange(t *testing.T) {
	st, err := ParseStatus(pad(0x02, 0x01, 100, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xC8))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if st.Effect != "Off" {
		t.Errorf("Effect = %q, want %q for out-of-range index", st.Effect, "Off")
	}
}

func TestParseStatusColorOff(t *testing.T) {
	st, err := ParseStatus(pad(0x02, 0x00))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if st.Kind != KindColor || st.On {
		t.Errorf("ParseStatus() = %+v, want color off", st)
	}
	if st.R != 0 || st.G != 0 || st.B != 0 || st.Effect != "" {
		t.Errorf("off reply carried light settings: %+v", st)
	}
}

func TestParseStatusAllOff(t *testing.T) {
	st, err := ParseStatus(pad(0xFF))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if st.Kind != KindAllOff {
		t.Errorf("Kind = %v, want all-off", st.Kind)
	}
}

func TestParseStatusShutdown(t *testing.T) {
	st, err := ParseStatus(pad(0x00))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if st.Kind != KindShutdown {
		t.Errorf("Kind = %v, want shutdown", st.Kind)
	}
}

func TestParseStatusUnknownVersion(t *testing.T) {
	st, err := ParseStatus(pad(0x7B))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if st.Kind != KindUnknown || st.Version != 0x7B {
		t.Errorf("ParseStatus() = %+v, want unknown version 0x7b", st)
	}
}

func TestParseStatusTruncated(t *testing.T) {
	cases := map[string][]byte{
		"nil":                      nil,
		"empty":                    {},
		"no version byte":          make([]byte, 8),
		"white without on flag":    pad(0x01),
		"white on, no brightness":  pad(0x01, 0x01),
		"color without on flag":    pad(0x02),
		"color on, no effect byte": pad(0x02, 0x01, 100, 0x00, 0x00, 0xFF, 0x64, 0x32),
	}
	for name, data := range cases {
		if _, err := ParseStatus(data); !errors.Is(err, ErrTruncated) {
			t.Errorf("%s: ParseStatus() error = %v, want ErrTruncated", name, err)
		}
	}
}

func TestParseStatusNeverPanics(t *testing.T) {
	// Every length from 0 up to a full color reply must parse or fail
	// cleanly, never index out of bounds.
	full := pad(0x02, 0x01, 100, 0x00, 0x00, 0xFF, 0x64, 0x32, 0x02)
	for n := 0; n <= len(full); n++ {
		ParseStatus(full[:n])
	}
}

func TestPercentToLevel(t *testing.T) {
	cases := []struct {
		percent, level uint8
	}{
		{0, 0},
		{1, 3},
		{10, 26},
		{50, 128},
		{99, 252},
		{100, 255},
		{150, 255}, // garbled percentages clamp rather than wrap
	}
	for _, c := range cases {
		if got := PercentToLevel(c.percent); got != c.level {
			t.Errorf("PercentToLevel(%d) = %d, want %d", c.percent, got, c.level)
		}
	}
}

func TestLevelToPercent(t *testing.T) {
	cases := []struct {
		level, percent uint8
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{128, 50},
		{254, 100},
		{255, 100},
	}
	for _, c := range cases {
		if got := LevelToPercent(c.level); got != c.percent {
			t.Errorf("LevelToPercent(%d) = %d, want %d", c.level, got, c.percent)
		}
	}
}

func TestEffectIndex(t *testing.T) {
	if got := EffectIndex("Rainbow"); got != 2 {
		t.Errorf("EffectIndex(Rainbow) = %d, want 2", got)
	}
	if got := EffectIndex("Off"); got != 0 {
		t.Errorf("EffectIndex(Off) = %d, want 0", got)
	}
	if got := EffectIndex("disco inferno"); got != 0 {
		t.Errorf("EffectIndex(unknown) = %d, want 0", got)
	}
}

func TestEffectNameRoundTrip(t *testing.T) {
	for i, name := range Effects {
		if got := EffectName(uint8(i)); got != name {
			t.Errorf("EffectName(%d) = %q, want %q", i, got, name)
		}
		if got := EffectIndex(name); got != uint8(i) {
			t.Errorf("EffectIndex(%q) = %d, want %d", name, got, i)
		}
	}
	if got := EffectName(uint8(len(Effects))); got != "Off" {
		t.Errorf("EffectName(out of range) = %q, want Off", got)
	}
}
