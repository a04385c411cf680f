package beurer

import "errors"

var (
	// ErrNoDevice is returned by discovery when no lamp turned up within
	// the scan window.
	ErrNoDevice = errors.New("beurer: no lamp found")

	// ErrNotConnected is returned when a packet write is attempted with no
	// live session.
	ErrNotConnected = errors.New("beurer: not connected")

	// ErrCharacteristicsNotFound is returned when the connected peripheral
	// does not expose the lamp's control characteristics. Retrying will not
	// help; the peripheral is not a TL100.
	ErrCharacteristicsNotFound = errors.New("beurer: lamp characteristics not found")
)
