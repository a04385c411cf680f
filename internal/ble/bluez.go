package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	busName            = "org.bluez"
	adapterPath        = "/org/bluez/hci0"
	adapterIface       = "org.bluez.Adapter1"
	deviceIface        = "org.bluez.Device1"
	charIface          = "org.bluez.GattCharacteristic1"
	propsIface         = "org.freedesktop.DBus.Properties"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"

	propsChangedSignal    = propsIface + ".PropertiesChanged"
	interfacesAddedSignal = objectManagerIface + ".InterfacesAdded"
)

// resolvePollInterval paces the wait for BlueZ to finish GATT discovery
// after Device1.Connect returns.
const resolvePollInterval = 100 * time.Millisecond

// BlueZTransport drives BlueZ over the system D-Bus. It exists for Linux
// hosts where bluetoothd already owns the HCI socket that NativeTransport
// would want exclusively. Only the first adapter (hci0) is used.
type BlueZTransport struct {
	conn *dbus.Conn

	mu       sync.Mutex
	started  bool
	sessions map[dbus.ObjectPath]*bluezSession // keyed by device object path
	notify   map[dbus.ObjectPath]func([]byte)  // keyed by characteristic object path
	scanFn   func(path dbus.ObjectPath, props map[string]dbus.Variant)
}

// NewBlueZTransport connects to the system bus and verifies BlueZ is
// present on it.
func NewBlueZTransport() (*BlueZTransport, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("ble: list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("ble: org.bluez not found on system bus, is bluetooth.service running?")
	}
	return &BlueZTransport{
		conn:     conn,
		sessions: make(map[dbus.ObjectPath]*bluezSession),
		notify:   make(map[dbus.ObjectPath]func([]byte)),
	}, nil
}

func (t *BlueZTransport) Enable() error {
	if err := t.setProp(adapterPath, adapterIface, "Powered", true); err != nil {
		return fmt.Errorf("ble: power adapter: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}
	t.started = true

	// Route PropertiesChanged under /org/bluez (device Connected flips,
	// characteristic Value updates) and InterfacesAdded (scan results)
	// through one dispatch goroutine.
	t.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0,
		"type='signal',interface='"+propsIface+"',member='PropertiesChanged',path_namespace='/org/bluez'")
	t.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0,
		"type='signal',sender='"+busName+"',interface='"+objectManagerIface+"',member='InterfacesAdded'")
	ch := make(chan *dbus.Signal, 32)
	t.conn.Signal(ch)
	go t.dispatch(ch)
	return nil
}

func (t *BlueZTransport) dispatch(ch chan *dbus.Signal) {
	for sig := range ch {
		switch sig.Name {
		case propsChangedSignal:
			t.handlePropertiesChanged(sig)
		case interfacesAddedSignal:
			t.handleInterfacesAdded(sig)
		}
	}
}

func (t *BlueZTransport) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	changed, _ := sig.Body[1].(map[string]dbus.Variant)

	switch iface {
	case deviceIface:
		t.mu.Lock()
		scanFn := t.scanFn
		t.mu.Unlock()
		if scanFn != nil {
			scanFn(sig.Path, changed)
		}

		v, ok := changed["Connected"]
		if !ok {
			return
		}
		if connected, _ := v.Value().(bool); connected {
			return
		}
		t.mu.Lock()
		sess := t.sessions[sig.Path]
		delete(t.sessions, sig.Path)
		// Characteristic paths hang off the device path; drop their
		// notification routes along with the session.
		prefix := string(sig.Path) + "/"
		for p := range t.notify {
			if strings.HasPrefix(string(p), prefix) {
				delete(t.notify, p)
			}
		}
		t.mu.Unlock()
		if sess != nil && sess.disconnectCb != nil {
			sess.disconnectCb()
		}

	case charIface:
		v, ok := changed["Value"]
		if !ok {
			return
		}
		data, _ := v.Value().([]byte)
		t.mu.Lock()
		cb := t.notify[sig.Path]
		t.mu.Unlock()
		if cb != nil {
			cb(data)
		}
	}
}

func (t *BlueZTransport) handleInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	path, _ := sig.Body[0].(dbus.ObjectPath)
	ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
	props, ok := ifaces[deviceIface]
	if !ok {
		return
	}
	t.mu.Lock()
	scanFn := t.scanFn
	t.mu.Unlock()
	if scanFn != nil {
		scanFn(path, props)
	}
}

func (t *BlueZTransport) Scan(ctx context.Context, found func(Device) bool) error {
	var (
		sinkMu  sync.Mutex
		cache   = make(map[dbus.ObjectPath]Device)
		stopped bool
	)
	stop := make(chan struct{})

	// Advertisement data trickles in across several signals: the device
	// object appears first, the name and RSSI often follow. Merge per
	// device and re-deliver on every update so name filters get a chance
	// once the name resolves.
	merge := func(path dbus.ObjectPath, props map[string]dbus.Variant) {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		if stopped {
			return
		}
		dev, ok := cache[path]
		if !ok {
			dev.MAC = macFromPath(path)
		}
		if v, ok := props["Address"]; ok {
			if s, ok := v.Value().(string); ok {
				dev.MAC = s
			}
		}
		if v, ok := props["Alias"]; ok {
			if s, ok := v.Value().(string); ok {
				dev.Name = s
			}
		} else if v, ok := props["Name"]; ok {
			if s, ok := v.Value().(string); ok {
				dev.Name = s
			}
		}
		if v, ok := props["RSSI"]; ok {
			if r, ok := v.Value().(int16); ok {
				dev.RSSI = int(r)
			}
		}
		cache[path] = dev
		if found(dev) {
			stopped = true
			close(stop)
		}
	}

	t.mu.Lock()
	t.scanFn = merge
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.scanFn = nil
		t.mu.Unlock()
	}()

	adapter := t.conn.Object(busName, adapterPath)
	if err := adapter.Call(adapterIface+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("ble: start discovery: %w", err)
	}

	// Replay devices BlueZ already knows about; anything fresh arrives as
	// signals.
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := t.conn.Object(busName, "/").Call(objectManagerIface+".GetManagedObjects", 0).Store(&objs); err == nil {
		for path, ifaces := range objs {
			if props, ok := ifaces[deviceIface]; ok {
				merge(path, props)
			}
		}
	}

	select {
	case <-ctx.Done():
	case <-stop:
	}

	if err := adapter.Call(adapterIface+".StopDiscovery", 0).Err; err != nil {
		return fmt.Errorf("ble: stop discovery: %w", err)
	}
	return nil
}

func (t *BlueZTransport) Connect(ctx context.Context, mac string) (Session, error) {
	path := deviceObjectPath(mac)
	obj := t.conn.Object(busName, path)

	if err := obj.CallWithContext(ctx, deviceIface+".Connect", 0).Err; err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", mac, err)
	}

	// Device1.Connect returns before GATT discovery finishes; wait for
	// ServicesResolved so Characteristics sees the full database.
	if err := t.waitServicesResolved(ctx, path); err != nil {
		obj.Call(deviceIface+".Disconnect", 0)
		return nil, fmt.Errorf("ble: connect to %s: %w", mac, err)
	}

	sess := &bluezSession{t: t, path: path}
	t.mu.Lock()
	t.sessions[path] = sess
	t.mu.Unlock()
	return sess, nil
}

func (t *BlueZTransport) waitServicesResolved(ctx context.Context, path dbus.ObjectPath) error {
	for {
		v, err := t.getProp(path, deviceIface, "ServicesResolved")
		if err == nil {
			if resolved, _ := v.Value().(bool); resolved {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for services: %w", ctx.Err())
		case <-time.After(resolvePollInterval):
		}
	}
}

// Close tears down the bus connection. Sessions become unusable.
func (t *BlueZTransport) Close() error {
	return t.conn.Close()
}

func (t *BlueZTransport) getProp(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := t.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (t *BlueZTransport) setProp(path dbus.ObjectPath, iface, prop string, val interface{}) error {
	obj := t.conn.Object(busName, path)
	return obj.Call(propsIface+".Set", 0, iface, prop, dbus.MakeVariant(val)).Err
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(mac string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(mac), ":", "_")
	return dbus.ObjectPath(adapterPath + "/dev_" + escaped)
}

// macFromPath extracts a MAC address from a BlueZ device object path.
func macFromPath(path dbus.ObjectPath) string {
	s := string(path)
	prefix := adapterPath + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	return strings.ReplaceAll(s[len(prefix):], "_", ":")
}

// Compile-time check that BlueZTransport implements Transport.
var _ Transport = (*BlueZTransport)(nil)

type bluezSession struct {
	t            *BlueZTransport
	path         dbus.ObjectPath
	disconnectCb func()
}

func (s *bluezSession) Characteristics() ([]Characteristic, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := s.t.conn.Object(busName, "/").Call(objectManagerIface+".GetManagedObjects", 0).Store(&objs)
	if err != nil {
		return nil, fmt.Errorf("ble: enumerate objects: %w", err)
	}

	prefix := string(s.path) + "/"
	var chars []Characteristic
	for path, ifaces := range objs {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := ifaces[charIface]
		if !ok {
			continue
		}
		uuid, _ := props["UUID"].Value().(string)
		chars = append(chars, &bluezCharacteristic{t: s.t, path: path, uuid: uuid})
	}
	return chars, nil
}

func (s *bluezSession) Disconnect() error {
	obj := s.t.conn.Object(busName, s.path)
	return obj.Call(deviceIface+".Disconnect", 0).Err
}

func (s *bluezSession) OnDisconnect(cb func()) {
	s.disconnectCb = cb
}

type bluezCharacteristic struct {
	t    *BlueZTransport
	path dbus.ObjectPath
	uuid string
}

func (c *bluezCharacteristic) UUID() string {
	return strings.ToLower(c.uuid)
}

func (c *bluezCharacteristic) Write(data []byte) error {
	obj := c.t.conn.Object(busName, c.path)
	opts := map[string]dbus.Variant{"type": dbus.MakeVariant("command")}
	return obj.Call(charIface+".WriteValue", 0, data, opts).Err
}

func (c *bluezCharacteristic) Subscribe(cb func([]byte)) error {
	c.t.mu.Lock()
	c.t.notify[c.path] = cb
	c.t.mu.Unlock()

	obj := c.t.conn.Object(busName, c.path)
	if err := obj.Call(charIface+".StartNotify", 0).Err; err != nil {
		c.t.mu.Lock()
		delete(c.t.notify, c.path)
		c.t.mu.Unlock()
		return fmt.Errorf("ble: start notify: %w", err)
	}
	return nil
}

func (c *bluezCharacteristic) Unsubscribe() error {
	c.t.mu.Lock()
	delete(c.t.notify, c.path)
	c.t.mu.Unlock()

	obj := c.t.conn.Object(busName, c.path)
	return obj.Call(charIface+".StopNotify", 0).Err
}
