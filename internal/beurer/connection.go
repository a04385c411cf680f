package beurer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/ble"
	"github.com/Bellamonte/beurer-daylight-lamps/internal/beurer/protocol"
)

// GATT characteristic UUIDs of the lamp's control protocol. Commands go to
// the write characteristic; status notifications arrive on the notify one.
// The lamp is identified by these rather than by a service UUID.
const (
	WriteCharacteristicUUID  = "8b00ace7-eb0b-49b0-bbe9-9aee0a26e1a3"
	NotifyCharacteristicUUID = "0734594a-a8e7-4b1a-a6b1-cd5243059a57"
)

// connector owns the BLE session for one lamp. Sessions are throwaway:
// every successful connect produces a fresh session with fresh
// characteristic bindings, and any failure discards the lot, so a later
// ensure rebinds from scratch instead of reusing stale handles.
//
// The connector has no lock of its own; the Driver serializes all access,
// including the transport callbacks, which re-enter through lost and
// notify.
type connector struct {
	transport ble.Transport
	mac       string
	log       *slog.Logger

	timeout  time.Duration // bounds each connect attempt
	queryGap time.Duration // pause between the two status queries

	// Set once by the Driver. Both receive the session the event belongs
	// to so stale events from a replaced session can be dropped.
	lost   func(ble.Session)
	notify func(ble.Session, []byte)

	sess       ble.Session // nil while disconnected
	writeChar  ble.Characteristic
	notifyChar ble.Characteristic
}

// ensure establishes the session if there is none: connect, bind the
// control characteristics, subscribe to notifications, and ask the lamp
// for its current status. Already connected is a no-op.
func (c *connector) ensure(ctx context.Context) error {
	if c.sess != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.log.Debug("[BLE] connecting", "mac", c.mac)
	sess, err := c.transport.Connect(ctx, c.mac)
	if err != nil {
		return fmt.Errorf("beurer: connect %s: %w", c.mac, err)
	}

	// Register before binding so a drop during discovery is observed; the
	// handler no-ops until this session becomes current.
	sess.OnDisconnect(func() { c.lost(sess) })

	chars, err := sess.Characteristics()
	if err != nil {
		sess.Disconnect()
		return fmt.Errorf("beurer: enumerate characteristics: %w", err)
	}

	var write, notify ble.Characteristic
	for _, ch := range chars {
		switch {
		case strings.EqualFold(ch.UUID(), WriteCharacteristicUUID):
			write = ch
		case strings.EqualFold(ch.UUID(), NotifyCharacteristicUUID):
			notify = ch
		}
	}
	if write == nil || notify == nil {
		c.log.Error("[BLE] lamp characteristics missing", "mac", c.mac)
		sess.Disconnect()
		return ErrCharacteristicsNotFound
	}

	if err := notify.Subscribe(func(data []byte) { c.notify(sess, data) }); err != nil {
		sess.Disconnect()
		return fmt.Errorf("beurer: subscribe: %w", err)
	}

	c.sess = sess
	c.writeChar = write
	c.notifyChar = notify
	c.log.Info("[BLE] connected", "mac", c.mac)

	// Prime the driver's state with the lamp's actual status.
	return c.queryStatus()
}

func (c *connector) connected() bool {
	return c.sess != nil
}

// current reports whether s is the live session. Transport callbacks carry
// the session they were registered on; anything else is a leftover from a
// torn-down session and must be ignored.
func (c *connector) current(s ble.Session) bool {
	return c.sess == s
}

// write sends one framed packet. A failed write tears the session down:
// the protocol gives no way to tell whether a half-written command was
// applied, so the only safe move is a fresh connect and rebind next time.
func (c *connector) write(packet []byte) error {
	if c.writeChar == nil {
		return ErrNotConnected
	}
	c.log.Debug("[BLE] send", "mac", c.mac, "packet", fmt.Sprintf("%x", packet))
	if err := c.writeChar.Write(packet); err != nil {
		c.log.Warn("[BLE] write failed, dropping session", "mac", c.mac, "error", err)
		c.close()
		return fmt.Errorf("beurer: write: %w", err)
	}
	return nil
}

// queryStatus asks both circuits for their status. The replies arrive
// asynchronously as notifications.
func (c *connector) queryStatus() error {
	if err := c.write(protocol.QueryStatus(protocol.ChannelWhite)); err != nil {
		return err
	}
	if c.queryGap > 0 {
		time.Sleep(c.queryGap)
	}
	return c.write(protocol.QueryStatus(protocol.ChannelColor))
}

// close tears the session down in an orderly way: best-effort unsubscribe,
// disconnect, clear bindings.
func (c *connector) close() {
	if c.sess == nil {
		return
	}
	if c.notifyChar != nil {
		if err := c.notifyChar.Unsubscribe(); err != nil {
			c.log.Warn("[BLE] stop notifications", "mac", c.mac, "error", err)
		}
	}
	if err := c.sess.Disconnect(); err != nil {
		c.log.Warn("[BLE] disconnect", "mac", c.mac, "error", err)
	} else {
		c.log.Info("[BLE] disconnected", "mac", c.mac)
	}
	c.clear()
}

// clear drops the bindings without touching the link, for when the link is
// already gone.
func (c *connector) clear() {
	c.sess = nil
	c.writeChar = nil
	c.notifyChar = nil
}
