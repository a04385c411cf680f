// Package protocol implements the Beurer TL100 wire format: checksummed
// command frames written to the control characteristic, and the status
// notifications the lamp emits in reply.
package protocol

import "fmt"

// Command opcodes, the first byte of a frame payload.
const (
	opStatus     byte = 0x30
	opBrightness byte = 0x31
	opColor      byte = 0x32
	opEffect     byte = 0x34
	opPowerOff   byte = 0x35
	opSelect     byte = 0x37
)

// Channel addresses one of the lamp's two light circuits. The daylight
// circuit and the mood-light circuit are controlled independently; every
// channel-scoped command carries one of these wire values.
type Channel byte

const (
	ChannelWhite Channel = 0x01
	ChannelColor Channel = 0x02
)

func (c Channel) String() string {
	switch c {
	case ChannelWhite:
		return "white"
	case ChannelColor:
		return "color"
	}
	return fmt.Sprintf("channel(0x%02x)", byte(c))
}

// Frame wraps a command payload in the TL100 envelope:
//
//	FE EF 0A <len+7> AB AA <len+2> <payload...> <checksum> 55 0D 0A
//
// where len is the payload length and the checksum XOR-folds the payload
// seeded with len+2.
func Frame(payload []byte) []byte {
	n := len(payload)
	frame := make([]byte, 0, n+11)
	frame = append(frame, 0xFE, 0xEF, 0x0A, byte(n+7), 0xAB, 0xAA, byte(n+2))
	frame = append(frame, payload...)
	frame = append(frame, Checksum(byte(n+2), payload), 0x55, 0x0D, 0x0A)
	return frame
}

// Checksum XOR-folds payload into seed.
func Checksum(seed byte, payload []byte) byte {
	sum := seed
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// QueryStatus builds the status request for one channel. The lamp answers
// with a notification rather than a read response, so the reply arrives
// asynchronously on the notify characteristic.
func QueryStatus(ch Channel) []byte {
	return Frame([]byte{opStatus, byte(ch)})
}

// SelectChannel builds the command that switches the lamp onto a channel,
// powering the lamp on if it was off.
func SelectChannel(ch Channel) []byte {
	return Frame([]byte{opSelect, byte(ch)})
}

// PowerOff builds the shutdown command for one channel. Turning the lamp
// fully off takes one PowerOff per channel.
func PowerOff(ch Channel) []byte {
	return Frame([]byte{opPowerOff, byte(ch)})
}

// SetBrightness builds the brightness command for a channel. The lamp takes
// a percentage, not a 0-255 level; see LevelToPercent.
func SetBrightness(ch Channel, percent uint8) []byte {
	return Frame([]byte{opBrightness, byte(ch), percent})
}

// SetColor builds the mood-light RGB command.
func SetColor(r, g, b uint8) []byte {
	return Frame([]byte{opColor, r, g, b})
}

// SetEffect builds the mood-light animation command. The index is a
// position in Effects; index 0 disables the running animation.
func SetEffect(index uint8) []byte {
	return Frame([]byte{opEffect, index})
}
