// Package beurer drives Beurer TL100 daylight lamps over Bluetooth Low
// Energy. The lamp has two circuits, a daylight white panel and an RGB
// mood light, controlled through a small checksummed packet protocol on a
// pair of GATT characteristics. The driver keeps optimistic local state
// that is reconciled against the status notifications the lamp sends back.
package beurer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/ble"
	"github.com/Bellamonte/beurer-daylight-lamps/internal/beurer/protocol"
)

// Options configures driver behavior.
type Options struct {
	// ConnectTimeout bounds each BLE connect attempt. Defaults to 20s.
	ConnectTimeout time.Duration
	// CommandGap is the pause between consecutive command packets; the
	// lamp drops packets that arrive while it is still chewing on the
	// previous one. Zero disables pacing.
	CommandGap time.Duration
	// RestoreGap is the longer pause used around mode switches, restore
	// steps and the paired status queries. Zero disables pacing.
	RestoreGap time.Duration
	// Logger receives the driver's structured logs. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the timings the lamp is known to cope with.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 20 * time.Second,
		CommandGap:     150 * time.Millisecond,
		RestoreGap:     200 * time.Millisecond,
	}
}

// Driver is the control half of one lamp. Commands connect on demand and
// keep the session for later calls; a dropped session is rebuilt on the
// next command. All methods are safe for concurrent use, but commands are
// serialized internally, so concurrent callers simply queue.
type Driver struct {
	mu   sync.Mutex
	conn *connector
	st   State
	opts Options
	log  *slog.Logger

	onChange func()
}

// New creates a driver for the lamp at mac. The transport must already be
// enabled. mac must be non-empty; it is the one piece of identity a lamp
// driver cannot do without.
func New(transport ble.Transport, mac string, opts Options) (*Driver, error) {
	if mac == "" {
		return nil, fmt.Errorf("beurer: device address required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 20 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	d := &Driver{
		opts: opts,
		log:  log,
		st: State{
			MAC:             strings.ToUpper(mac),
			Mode:            ModeWhite,
			WhiteBrightness: BrightnessUnknown,
			ColorBrightness: BrightnessUnknown,
			Effect:          "Off",
		},
	}
	d.conn = &connector{
		transport: transport,
		mac:       mac,
		log:       log,
		timeout:   opts.ConnectTimeout,
		queryGap:  opts.RestoreGap,
		lost:      d.sessionLost,
		notify:    d.sessionNotify,
	}
	return d, nil
}

// MAC returns the lamp's address as configured, normalized to upper case.
func (d *Driver) MAC() string {
	return d.st.MAC
}

// State returns a snapshot of the lamp state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st
}

// Connected reports whether a live session exists right now.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.connected()
}

// OnChange registers a callback fired whenever the observable state
// changes: after a status notification that moved a field, and after an
// unsolicited disconnect. The callback runs outside the driver's lock;
// read State from inside it.
func (d *Driver) OnChange(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Effects lists the animation names SetEffect accepts.
func Effects() []string {
	out := make([]string, len(protocol.Effects))
	copy(out, protocol.Effects)
	return out
}

// Connect establishes the BLE session without sending any command. Most
// callers can skip it; every command connects on demand.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.ensure(ctx)
}

// Close tears down the session. The driver stays usable; the next command
// reconnects.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn.close()
	d.allOff()
	return nil
}

// TurnOn powers the lamp on in its current mode. Powering on in color mode
// from fully off replays the last-known effect, color and brightness,
// because the lamp forgets its mood-light settings across power-off.
func (d *Driver) TurnOn(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Debug("[LAMP] turn on", "mac", d.st.MAC, "mode", d.st.Mode)
	if err := d.powerOn(ctx); err != nil {
		return err
	}
	d.pause(d.opts.RestoreGap)
	return d.requestStatus()
}

// TurnOff shuts both circuits down. With no live session this is a local
// operation: the flags drop without reconnecting, since a lamp we cannot
// reach is not one we can switch off any harder.
func (d *Driver) TurnOff(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Debug("[LAMP] turn off", "mac", d.st.MAC)
	if !d.conn.connected() {
		d.allOff()
		return nil
	}
	if err := d.write(protocol.PowerOff(protocol.ChannelWhite)); err != nil {
		return err
	}
	d.pause(d.opts.CommandGap)
	if err := d.write(protocol.PowerOff(protocol.ChannelColor)); err != nil {
		return err
	}
	d.allOff()
	d.pause(d.opts.CommandGap)
	return d.requestStatus()
}

// SetColor switches the lamp to color mode showing rgb, powering it on
// first if needed.
func (d *Driver) SetColor(ctx context.Context, rgb RGB) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Debug("[LAMP] set color", "mac", d.st.MAC, "rgb", rgb)
	d.st.Mode = ModeColor
	d.st.Color = rgb
	return d.setColorValue(ctx, func() error { return d.applyColor(rgb) })
}

// SetColorBrightness dims the mood light. Negative means not specified and
// defaults to full.
func (d *Driver) SetColorBrightness(ctx context.Context, level int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	level = normalizeLevel(level)
	d.log.Debug("[LAMP] set color brightness", "mac", d.st.MAC, "level", level)
	d.st.Mode = ModeColor
	d.st.ColorBrightness = level
	return d.setColorValue(ctx, func() error { return d.applyColorBrightness(level) })
}

// SetEffect starts a mood-light animation by name. Unknown names fall back
// to "Off"; empty means "Off".
func (d *Driver) SetEffect(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name == "" {
		name = "Off"
	}
	d.log.Debug("[LAMP] set effect", "mac", d.st.MAC, "effect", name)
	d.st.Mode = ModeColor
	d.st.Effect = name
	return d.setColorValue(ctx, func() error { return d.applyEffect(name) })
}

// SetWhite lights the daylight panel at the given intensity. Negative
// means not specified and defaults to full. The intensity write is chased
// with an effect-off so a leftover mood animation cannot override it.
func (d *Driver) SetWhite(ctx context.Context, intensity int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	intensity = normalizeLevel(intensity)
	d.log.Debug("[LAMP] set white", "mac", d.st.MAC, "intensity", intensity)
	d.st.Mode = ModeWhite
	d.st.WhiteBrightness = intensity
	if !d.st.PowerOn || !d.st.WhiteOn {
		if err := d.powerOn(ctx); err != nil {
			return err
		}
		d.pause(d.opts.CommandGap)
	} else if err := d.conn.ensure(ctx); err != nil {
		return err
	}
	if err := d.applyWhite(intensity); err != nil {
		return err
	}
	d.pause(d.opts.CommandGap)
	if err := d.applyEffect("Off"); err != nil {
		return err
	}
	d.pause(d.opts.CommandGap)
	return d.requestStatus()
}

// RequestStatus asks the lamp to report both circuits. The answers arrive
// asynchronously and are merged into State; watch OnChange for the result.
func (d *Driver) RequestStatus(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.conn.ensure(ctx); err != nil {
		return err
	}
	return d.requestStatus()
}

// Update reconnects if needed and refreshes the state, for periodic or
// on-demand polling.
func (d *Driver) Update(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Debug("[LAMP] update", "mac", d.st.MAC)
	if err := d.conn.ensure(ctx); err != nil {
		return err
	}
	return d.requestStatus()
}

// powerOn selects the current mode's circuit, connecting first if needed.
// Color mode coming from fully off additionally restores the mood-light
// settings. No status refresh; callers do that once they are done.
func (d *Driver) powerOn(ctx context.Context) error {
	if err := d.conn.ensure(ctx); err != nil {
		return err
	}
	wasOff := !d.st.PowerOn
	switch d.st.Mode {
	case ModeWhite:
		if err := d.write(protocol.SelectChannel(protocol.ChannelWhite)); err != nil {
			return err
		}
		d.st.WhiteOn = true
		d.st.ColorOn = false
	default:
		d.st.Mode = ModeColor
		if err := d.write(protocol.SelectChannel(protocol.ChannelColor)); err != nil {
			return err
		}
		d.st.ColorOn = true
		d.st.WhiteOn = false
		if wasOff {
			d.pause(d.opts.RestoreGap)
			if err := d.restoreColorState(); err != nil {
				return err
			}
		}
	}
	d.st.PowerOn = true
	return nil
}

// setColorValue runs apply against the color circuit, powering on in color
// mode first when needed. Powering on from fully off skips apply: the
// restore path inside powerOn already replays the just-stored target
// values, and the lamp should not see them twice.
func (d *Driver) setColorValue(ctx context.Context, apply func() error) error {
	switch {
	case !d.st.PowerOn:
		if err := d.powerOn(ctx); err != nil {
			return err
		}
	case !d.st.ColorOn:
		if err := d.powerOn(ctx); err != nil {
			return err
		}
		d.pause(d.opts.CommandGap)
		if err := apply(); err != nil {
			return err
		}
	default:
		if err := d.conn.ensure(ctx); err != nil {
			return err
		}
		if err := apply(); err != nil {
			return err
		}
	}
	d.pause(d.opts.CommandGap)
	return d.requestStatus()
}

// restoreColorState replays the mood-light settings the lamp forgot while
// powered off: effect, then color, then brightness. A zero color falls
// back to white, an unknown brightness to full.
func (d *Driver) restoreColorState() error {
	d.log.Debug("[LAMP] restoring color state", "mac", d.st.MAC,
		"effect", d.st.Effect, "rgb", d.st.Color, "brightness", d.st.ColorBrightness)

	if err := d.applyEffect(d.st.Effect); err != nil {
		return err
	}
	d.pause(d.opts.RestoreGap)

	rgb := d.st.Color
	if rgb.IsZero() {
		rgb = RGB{255, 255, 255}
	}
	if err := d.applyColor(rgb); err != nil {
		return err
	}
	d.pause(d.opts.RestoreGap)

	level := d.st.ColorBrightness
	if level == BrightnessUnknown {
		level = 255
	}
	return d.applyColorBrightness(level)
}

// The apply functions write one value and mirror it in local state. They
// never power the lamp on and never touch the mode; that split is what
// lets powerOn's restore call them without recursing back into powerOn.

func (d *Driver) applyColor(rgb RGB) error {
	d.st.Color = rgb
	return d.write(protocol.SetColor(rgb.R, rgb.G, rgb.B))
}

func (d *Driver) applyColorBrightness(level int) error {
	d.st.ColorBrightness = level
	return d.write(protocol.SetBrightness(protocol.ChannelColor, protocol.LevelToPercent(uint8(level))))
}

func (d *Driver) applyWhite(intensity int) error {
	d.st.WhiteBrightness = intensity
	return d.write(protocol.SetBrightness(protocol.ChannelWhite, protocol.LevelToPercent(uint8(intensity))))
}

func (d *Driver) applyEffect(name string) error {
	index := protocol.EffectIndex(name)
	if index == 0 && name != protocol.Effects[0] {
		d.log.Warn("[LAMP] unknown effect, falling back to Off", "mac", d.st.MAC, "effect", name)
	}
	d.st.Effect = name
	return d.write(protocol.SetEffect(index))
}

// write sends one packet, treating failure as loss of the session: the
// connector already tore the link down, and the power flags drop because
// we cannot know whether the lamp applied a half-written command.
func (d *Driver) write(packet []byte) error {
	if err := d.conn.write(packet); err != nil {
		d.allOff()
		return err
	}
	return nil
}

func (d *Driver) requestStatus() error {
	if err := d.conn.queryStatus(); err != nil {
		d.allOff()
		return err
	}
	return nil
}

func (d *Driver) allOff() {
	d.st.PowerOn = false
	d.st.WhiteOn = false
	d.st.ColorOn = false
}

func (d *Driver) pause(gap time.Duration) {
	if gap > 0 {
		time.Sleep(gap)
	}
}

// sessionNotify is the transport's notification entry point. It re-checks
// the session so a subscription left over from a torn-down session cannot
// write into fresh state.
func (d *Driver) sessionNotify(sess ble.Session, data []byte) {
	d.mu.Lock()
	if !d.conn.current(sess) {
		d.mu.Unlock()
		return
	}

	st, err := protocol.ParseStatus(data)
	if err != nil {
		d.log.Warn("[LAMP] dropping malformed notification", "mac", d.st.MAC,
			"len", len(data), "error", err)
		d.mu.Unlock()
		return
	}

	fire := false
	switch st.Kind {
	case protocol.KindShutdown:
		// The lamp announces it is about to power down; disconnect in an
		// orderly way rather than waiting for the link to die.
		d.log.Info("[LAMP] lamp announced shutdown", "mac", d.st.MAC)
		d.conn.close()
		fire = d.st.PowerOn || d.st.WhiteOn || d.st.ColorOn
		d.allOff()
	case protocol.KindUnknown:
		d.log.Debug("[LAMP] unknown status version", "mac", d.st.MAC, "version", st.Version)
	default:
		fire = d.merge(st)
		d.log.Debug("[LAMP] status merged", "mac", d.st.MAC, "kind", st.Kind, "changed", fire)
	}
	cb := d.onChange
	d.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
}

// sessionLost is the transport's unsolicited-disconnect entry point. The
// link is already gone, so only the bindings and flags are dropped. The
// change callback always fires: reachability changed even if no field did.
func (d *Driver) sessionLost(sess ble.Session) {
	d.mu.Lock()
	if !d.conn.current(sess) {
		d.mu.Unlock()
		return
	}
	d.log.Warn("[BLE] connection lost", "mac", d.st.MAC)
	d.conn.clear()
	d.allOff()
	cb := d.onChange
	d.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// merge folds one decoded status into the state, reporting whether any
// observable field changed. Off replies blank the matching brightness but
// keep color and effect: the lamp zeroes those fields when off, and
// overwriting remembered values with zeroes would wreck the next restore.
func (d *Driver) merge(st protocol.Status) bool {
	changed := false
	switch st.Kind {
	case protocol.KindWhite:
		level := BrightnessUnknown
		if st.On {
			level = int(st.Brightness)
		}
		if d.st.WhiteOn != st.On || d.st.WhiteBrightness != level {
			changed = true
		}
		d.st.WhiteOn = st.On
		d.st.WhiteBrightness = level
		if st.On {
			d.st.Mode = ModeWhite
		}

	case protocol.KindColor:
		level := BrightnessUnknown
		rgb := d.st.Color
		effect := d.st.Effect
		if st.On {
			level = int(st.Brightness)
			rgb = RGB{st.R, st.G, st.B}
			effect = st.Effect
		}
		if d.st.ColorOn != st.On || d.st.ColorBrightness != level ||
			d.st.Color != rgb || d.st.Effect != effect {
			changed = true
		}
		d.st.ColorOn = st.On
		d.st.ColorBrightness = level
		d.st.Color = rgb
		d.st.Effect = effect
		if st.On {
			d.st.Mode = ModeColor
		}

	case protocol.KindAllOff:
		if d.st.PowerOn || d.st.WhiteOn || d.st.ColorOn {
			changed = true
		}
		d.st.WhiteOn = false
		d.st.ColorOn = false
	}

	on := d.st.WhiteOn || d.st.ColorOn
	if d.st.PowerOn != on {
		changed = true
	}
	d.st.PowerOn = on
	return changed
}

// normalizeLevel maps the optional 0-255 brightness argument onto the wire
// range: negative means not specified and defaults to full; anything past
// 255 caps there.
func normalizeLevel(level int) int {
	if level < 0 || level > 255 {
		return 255
	}
	return level
}
