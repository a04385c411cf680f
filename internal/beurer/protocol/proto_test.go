package protocol

import (
	"bytes"
	"testing"
)

func TestChecksum(t *testing.T) {
	// Seed len+2 = 0x04 folded over the white status query payload:
	// 0x04 ^ 0x30 ^ 0x01 = 0x35
	got := Checksum(0x04, []byte{0x30, 0x01})
	if got != 0x35 {
		t.Errorf("Checksum(0x04, 30 01) = 0x%02x, want 0x35", got)
	}
}

func TestFrame(t *testing.T) {
	// Two-byte payload: len+7 = 0x09, len+2 = 0x04, checksum 0x35.
	got := Frame([]byte{0x30, 0x01})
	want := []byte{0xFE, 0xEF, 0x0A, 0x09, 0xAB, 0xAA, 0x04, 0x30, 0x01, 0x35, 0x55, 0x0D, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("Frame(30 01) = %x, want %x", got, want)
	}
}

func TestFrameChecksumRederivation(t *testing.T) {
	// The checksum must re-derive from the emitted frame alone: fold the
	// payload bytes into the length seed at offset 6 and compare against
	// the byte that follows the payload.
	for n := 1; n <= 10; n++ {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(0x30 + i*7)
		}
		frame := Frame(payload)

		if len(frame) != n+11 {
			t.Fatalf("len(Frame(%d-byte payload)) = %d, want %d", n, len(frame), n+11)
		}
		seed := frame[6]
		if seed != byte(n+2) {
			t.Errorf("length seed for %d-byte payload = 0x%02x, want 0x%02x", n, seed, n+2)
		}
		sum := seed
		for _, b := range frame[7 : 7+n] {
			sum ^= b
		}
		if got := frame[7+n]; got != sum {
			t.Errorf("checksum for %d-byte payload = 0x%02x, re-derived 0x%02x", n, got, sum)
		}
	}
}

func TestQueryStatus(t *testing.T) {
	got := QueryStatus(ChannelColor)
	want := []byte{0xFE, 0xEF, 0x0A, 0x09, 0xAB, 0xAA, 0x04, 0x30, 0x02, 0x36, 0x55, 0x0D, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("QueryStatus(color) = %x, want %x", got, want)
	}
}

func TestSelectChannel(t *testing.T) {
	got := SelectChannel(ChannelWhite)
	want := []byte{0xFE, 0xEF, 0x0A, 0x09, 0xAB, 0xAA, 0x04, 0x37, 0x01, 0x32, 0x55, 0x0D, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("SelectChannel(white) = %x, want %x", got, want)
	}
}

func TestPowerOff(t *testing.T) {
	got := PowerOff(ChannelColor)
	want := []byte{0xFE, 0xEF, 0x0A, 0x09, 0xAB, 0xAA, 0x04, 0x35, 0x02, 0x33, 0x55, 0x0D, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("PowerOff(color) = %x, want %x", got, want)
	}
}

func TestSetBrightness(t *testing.T) {
	// Three-byte payload: len+7 = 0x0a, len+2 = 0x05.
	// Checksum: 0x05 ^ 0x31 ^ 0x02 ^ 0x4f = 0x79
	got := SetBrightness(ChannelColor, 79)
	want := []byte{0xFE, 0xEF, 0x0A, 0x0A, 0xAB, 0xAA, 0x05, 0x31, 0x02, 0x4F, 0x79, 0x55, 0x0D, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("SetBrightness(color, 79) = %x, want %x", got, want)
	}
}

func TestSetColor(t *testing.T) {
	// Four-byte payload: len+7 = 0x0b, len+2 = 0x06.
	// Checksum: 0x06 ^ 0x32 ^ 0xff ^ 0x00 ^ 0x80 = 0x4b
	got := SetColor(0xFF, 0x00, 0x80)
	want := []byte{0xFE, 0xEF, 0x0A, 0x0B, 0xAB, 0xAA, 0x06, 0x32, 0xFF, 0x00, 0x80, 0x4B, 0x55, 0x0D, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("SetColor(ff 00 80) = %x, want %x", got, want)
	}
}

func TestSetEffect(t *testing.T) {
	got := SetEffect(3)
	want := []byte{0xFE, 0xEF, 0x0A, 0x09, 0xAB, 0xAA, 0x04, 0x34, 0x03, 0x33, 0x55, 0x0D, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("SetEffect(3) = %x, want %x", got, want)
	}
}

func TestChannelString(t *testing.T) {
	if ChannelWhite.String() != "white" || ChannelColor.String() != "color" {
		t.Errorf("Channel strings = %q, %q", ChannelWhite, ChannelColor)
	}
	if got := Channel(0x09).String(); got != "channel(0x09)" {
		t.Errorf("Channel(0x09).String() = %q", got)
	}
}
