package beurer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/ble"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockCharacteristic records writes and allows subscribing.
type mockCharacteristic struct {
	mu       sync.Mutex
	uuid     string
	writes   [][]byte
	writeErr error
	callback func([]byte)
}

func (c *mockCharacteristic) UUID() string { return c.uuid }

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	return nil
}

func (c *mockCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = nil
	return nil
}

// FailWrites makes every subsequent Write return err.
func (c *mockCharacteristic) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Writes returns a snapshot of everything written so far.
func (c *mockCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// SimulateNotification delivers a notification to the subscriber.
func (c *mockCharacteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

// mockSession simulates a connected lamp exposing the TL100 characteristic
// pair.
type mockSession struct {
	mu           sync.Mutex
	writeChar    *mockCharacteristic
	notifyChar   *mockCharacteristic
	disconnectCb func()
	disconnected bool
	charErr      error
	hideNotify   bool
}

func newMockSession() *mockSession {
	return &mockSession{
		writeChar:  &mockCharacteristic{uuid: WriteCharacteristicUUID},
		notifyChar: &mockCharacteristic{uuid: NotifyCharacteristicUUID},
	}
}

func (s *mockSession) Characteristics() ([]ble.Characteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.charErr != nil {
		return nil, s.charErr
	}
	if s.hideNotify {
		return []ble.Characteristic{s.writeChar}, nil
	}
	return []ble.Characteristic{s.writeChar, s.notifyChar}, nil
}

func (s *mockSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

func (s *mockSession) OnDisconnect(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectCb = cb
}

// Disconnected reports whether Disconnect was called (thread-safe).
func (s *mockSession) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// SimulateDisconnect triggers the disconnect callback, as the transport
// would on an unsolicited link loss.
func (s *mockSession) SimulateDisconnect() {
	s.mu.Lock()
	cb := s.disconnectCb
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// mockTransport simulates the BLE stack.
type mockTransport struct {
	mu         sync.Mutex
	devices    []ble.Device
	session    *mockSession // most recent session for test assertions
	connectErr error
	connects   int
	hideNotify bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{session: newMockSession()}
}

func (m *mockTransport) Enable() error { return nil }

// Scan reports the fixed inventory and returns; real stacks keep streaming
// until ctx is done.
func (m *mockTransport) Scan(_ context.Context, found func(ble.Device) bool) error {
	m.mu.Lock()
	devices := m.devices
	m.mu.Unlock()
	for _, dev := range devices {
		if found(dev) {
			return nil
		}
	}
	return nil
}

func (m *mockTransport) Connect(_ context.Context, _ string) (ble.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	sess := newMockSession()
	sess.hideNotify = m.hideNotify
	m.session = sess
	m.connects++
	return sess, nil
}

// latestSession returns the most recently created session (thread-safe).
func (m *mockTransport) latestSession() *mockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *mockTransport) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func TestMockTransportImplementsInterface(t *testing.T) {
	var _ ble.Transport = (*mockTransport)(nil)
}

func TestMockSessionImplementsInterface(t *testing.T) {
	var _ ble.Session = (*mockSession)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ ble.Characteristic = (*mockCharacteristic)(nil)
}
