// Package ble abstracts the Bluetooth Low Energy stack behind small
// interfaces so the lamp driver can run against tinygo-org/bluetooth, BlueZ
// over D-Bus, or a mock in tests.
package ble

import "context"

// Device represents a discovered BLE peripheral.
type Device struct {
	Name string
	MAC  string
	RSSI int
}

// Characteristic represents a BLE GATT characteristic on a connected
// peripheral.
type Characteristic interface {
	// UUID returns the characteristic UUID in canonical lowercase form.
	UUID() string
	// Write sends data to the characteristic without response.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this
	// characteristic.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe stops notifications.
	Unsubscribe() error
}

// Session represents an active BLE connection to a peripheral.
type Session interface {
	// Characteristics enumerates every characteristic of every service on
	// the peripheral.
	Characteristics() ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops,
	// whether locally initiated or not.
	OnDisconnect(callback func())
}

// Transport abstracts the BLE stack for testing and for swapping backends.
type Transport interface {
	// Enable powers on the adapter and starts event routing.
	Enable() error
	// Scan streams discovered peripherals to found until found returns
	// true, ctx is done, or the stack fails. found is never invoked
	// concurrently with itself; the same peripheral may be reported more
	// than once as advertisement data trickles in.
	Scan(ctx context.Context, found func(Device) bool) error
	// Connect establishes a connection to the peripheral with the given
	// MAC address.
	Connect(ctx context.Context, mac string) (Session, error)
}
