package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// NativeTransport wraps tinygo-org/bluetooth, which drives the platform's
// own BLE stack: HCI on Linux, CoreBluetooth on macOS, WinRT on Windows.
// On macOS, peripheral addresses are CoreBluetooth UUIDs rather than MAC
// addresses; the MAC fields in Device and config carry that UUID string.
type NativeTransport struct {
	adapter *bluetooth.Adapter

	// mu protects the sessions map.
	mu       sync.Mutex
	sessions map[string]*nativeSession // keyed by peripheral address
}

// NewNativeTransport creates a transport backed by the default adapter.
func NewNativeTransport() *NativeTransport {
	return &NativeTransport{
		adapter:  bluetooth.DefaultAdapter,
		sessions: make(map[string]*nativeSession),
	}
}

func (t *NativeTransport) Enable() error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// Register the adapter-level connect/disconnect handler. The stack
	// fires this callback with connected=false when a peripheral drops,
	// whether we asked for the disconnect or not.
	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		key := addressKey(device.Address.String())
		t.mu.Lock()
		sess, ok := t.sessions[key]
		delete(t.sessions, key)
		t.mu.Unlock()
		if ok && sess.disconnectCb != nil {
			sess.disconnectCb()
		}
	})

	return nil
}

func (t *NativeTransport) Scan(ctx context.Context, found func(Device) bool) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			t.adapter.StopScan()
		case <-done:
		}
	}()

	// The scan callback runs on a single stack goroutine, so found needs
	// no extra serialization here.
	err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		dev := Device{
			Name: result.LocalName(),
			MAC:  result.Address.String(),
			RSSI: int(result.RSSI),
		}
		if found(dev) {
			adapter.StopScan()
		}
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (t *NativeTransport) Connect(ctx context.Context, mac string) (Session, error) {
	var addr bluetooth.Address
	addr.Set(mac)

	// The stack's Connect blocks internally with its own timeout. Wrap it
	// so our ctx deadline also applies.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The underlying Connect will eventually time out or succeed on
		// its own. We can't cancel it from here, but we return now.
		return nil, fmt.Errorf("ble: connect to %s: %w", mac, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", mac, result.err)
		}
		sess := &nativeSession{device: &result.device}

		// Track the session so the adapter-level disconnect handler can
		// find it and fire its OnDisconnect callback.
		t.mu.Lock()
		t.sessions[addressKey(mac)] = sess
		t.mu.Unlock()

		return sess, nil
	}
}

// addressKey normalizes a peripheral address for use as a map key; MAC
// addresses arrive in mixed case depending on who formatted them.
func addressKey(addr string) string {
	return strings.ToUpper(addr)
}

// Compile-time check that NativeTransport implements Transport.
var _ Transport = (*NativeTransport)(nil)

type nativeSession struct {
	device       *bluetooth.Device
	disconnectCb func()
}

func (s *nativeSession) Characteristics() ([]Characteristic, error) {
	svcs, err := s.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	var chars []Characteristic
	for _, svc := range svcs {
		discovered, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics: %w", err)
		}
		for i := range discovered {
			chars = append(chars, &nativeCharacteristic{char: &discovered[i]})
		}
	}
	return chars, nil
}

func (s *nativeSession) Disconnect() error {
	return s.device.Disconnect()
}

func (s *nativeSession) OnDisconnect(cb func()) {
	s.disconnectCb = cb
}

type nativeCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
}

func (c *nativeCharacteristic) UUID() string {
	return c.char.UUID().String()
}

func (c *nativeCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *nativeCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}

func (c *nativeCharacteristic) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}
