package beurer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/ble"
)

// DeviceNamePrefix is the advertised-name prefix TL100 lamps ship with.
const DeviceNamePrefix = "tl100"

const (
	defaultScanWindow = 10 * time.Second
	probeTimeout      = 5 * time.Second
)

// Discover scans for TL100 lamps and returns everything it found within
// the scan window. Lamps are recognized by their advertised name; when no
// name matches (some phones rename lamps during pairing, and BlueZ caches
// the renamed alias), every discovered device is probed for the lamp's
// characteristic pair instead.
func Discover(ctx context.Context, transport ble.Transport, log *slog.Logger) ([]ble.Device, error) {
	if log == nil {
		log = slog.Default()
	}
	scanCtx, cancel := scanWindow(ctx)
	defer cancel()

	var lamps []ble.Device
	var others []ble.Device
	seen := make(map[string]bool)
	matched := make(map[string]bool)

	log.Info("[SCAN] scanning for lamps", "window", defaultScanWindow)
	err := transport.Scan(scanCtx, func(dev ble.Device) bool {
		key := strings.ToUpper(dev.MAC)
		isLamp := strings.HasPrefix(strings.ToLower(dev.Name), DeviceNamePrefix)
		// Transports re-deliver a device as its advertisement data trickles
		// in, so a lamp whose name resolves late still gets classified by
		// name rather than waiting for the probe fallback.
		if matched[key] || (seen[key] && !isLamp) {
			return false
		}
		seen[key] = true
		if isLamp {
			matched[key] = true
			log.Info("[SCAN] found lamp", "name", dev.Name, "mac", dev.MAC, "rssi", dev.RSSI)
			lamps = append(lamps, dev)
		} else {
			others = append(others, dev)
		}
		return false
	})
	if err != nil && scanCtx.Err() == nil {
		return nil, fmt.Errorf("beurer: scan: %w", err)
	}
	if len(lamps) > 0 {
		return lamps, nil
	}

	// Probing happens after the scan window has closed, so it runs on the
	// caller's context rather than the expired scan context.
	for _, dev := range others {
		if ctx.Err() != nil {
			break
		}
		if probeLamp(ctx, transport, dev, log) {
			lamps = append(lamps, dev)
		}
	}
	return lamps, nil
}

// FindDevice scans until the lamp at mac shows up. The BlueZ transport
// replays already-known devices into the scan, so a previously paired lamp
// resolves without radio traffic.
func FindDevice(ctx context.Context, transport ble.Transport, mac string, log *slog.Logger) (ble.Device, error) {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := scanWindow(ctx)
	defer cancel()

	var found ble.Device
	ok := false
	err := transport.Scan(ctx, func(dev ble.Device) bool {
		if !strings.EqualFold(dev.MAC, mac) {
			return false
		}
		found = dev
		ok = true
		return true
	})
	if ok {
		log.Info("[SCAN] device found", "name", found.Name, "mac", found.MAC)
		return found, nil
	}
	if err != nil && ctx.Err() == nil {
		return ble.Device{}, fmt.Errorf("beurer: scan: %w", err)
	}
	return ble.Device{}, fmt.Errorf("%w at %s", ErrNoDevice, mac)
}

// probeLamp connects briefly and checks for the TL100 characteristic pair.
func probeLamp(ctx context.Context, transport ble.Transport, dev ble.Device, log *slog.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	sess, err := transport.Connect(ctx, dev.MAC)
	if err != nil {
		return false
	}
	defer sess.Disconnect()

	chars, err := sess.Characteristics()
	if err != nil {
		return false
	}
	var write, notify bool
	for _, ch := range chars {
		switch {
		case strings.EqualFold(ch.UUID(), WriteCharacteristicUUID):
			write = true
		case strings.EqualFold(ch.UUID(), NotifyCharacteristicUUID):
			notify = true
		}
	}
	if write && notify {
		log.Info("[SCAN] unnamed device has lamp characteristics", "name", dev.Name, "mac", dev.MAC)
		return true
	}
	return false
}

// scanWindow bounds a scan to the default window; a caller deadline that is
// sooner wins, so a scan never eats a tight command deadline whole.
func scanWindow(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultScanWindow)
}
