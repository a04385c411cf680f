package internal

import (
	"testing"

	"github.com/kcmvp/archunit"
)

func TestArchitecture(t *testing.T) {
	protocol := archunit.Packages("protocol", []string{".../internal/beurer/protocol"})
	driver := archunit.Packages("driver", []string{".../internal/beurer"})
	ble := archunit.Packages("ble", []string{".../internal/ble/..."})
	bridge := archunit.Packages("bridge", []string{".../internal/bridge/..."})
	cfg := archunit.Packages("config", []string{".../internal/config/..."})

	// The wire codec is pure: bytes in, bytes out.
	if err := protocol.ShouldNotReferLayers(ble, bridge, cfg); err != nil {
		t.Errorf("architecture violation: protocol reaches outward: %v", err)
	}
	// The driver knows the radio, not MQTT or config files.
	if err := driver.ShouldNotReferLayers(bridge, cfg); err != nil {
		t.Errorf("architecture violation: driver reaches upward: %v", err)
	}
	// The BLE layer carries bytes and knows nothing above it.
	if err := ble.ShouldNotReferLayers(bridge, cfg); err != nil {
		t.Errorf("architecture violation: ble layer reaches upward: %v", err)
	}
	// The bridge talks to lamps only through the driver.
	if err := bridge.ShouldNotReferLayers(ble); err != nil {
		t.Errorf("architecture violation: bridge bypasses the driver: %v", err)
	}
}
