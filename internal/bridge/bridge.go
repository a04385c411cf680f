// Package bridge exposes lamps over MQTT in the Home Assistant JSON-schema
// light dialect, including discovery, so lamps show up as entities without
// any YAML on the Home Assistant side.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/beurer"
)

const (
	commandTimeout = 30 * time.Second
	// maxPollBackoffSeconds caps the retry backoff when a lamp stays
	// unreachable across polls.
	maxPollBackoffSeconds = 60
)

// Lamp is the slice of the lamp driver the bridge needs. *beurer.Driver
// satisfies it.
type Lamp interface {
	MAC() string
	State() beurer.State
	Connected() bool
	OnChange(fn func())
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	SetWhite(ctx context.Context, intensity int) error
	SetColor(ctx context.Context, rgb beurer.RGB) error
	SetColorBrightness(ctx context.Context, level int) error
	SetEffect(ctx context.Context, name string) error
	Update(ctx context.Context) error
}

var _ Lamp = (*beurer.Driver)(nil)

// Client is the MQTT surface the bridge publishes and subscribes through.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// Options configures the bridge.
type Options struct {
	// TopicPrefix roots every lamp topic, e.g. "beurer".
	TopicPrefix string
	// DiscoveryPrefix roots Home Assistant discovery configs, usually
	// "homeassistant". Empty disables discovery publishing.
	DiscoveryPrefix string
	// Poll is the lamp status poll interval. Defaults to 60s.
	Poll time.Duration
	// Logger receives the bridge's structured logs. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Bridge maps lamps onto MQTT topics. Add lamps with AddLamp, then call Run.
type Bridge struct {
	client Client
	opts   Options
	log    *slog.Logger
	lamps  []*lampBinding

	// runCtx is the lifetime handed to Run; command handlers derive their
	// per-command timeouts from it so in-flight commands die with the bridge.
	runCtx context.Context
}

type lampBinding struct {
	lamp   Lamp
	name   string
	topics Topics
}

// New creates a bridge publishing through client.
func New(client Client, opts Options) *Bridge {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "beurer"
	}
	if opts.Poll <= 0 {
		opts.Poll = 60 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{client: client, opts: opts, log: log}
}

// AddLamp registers a lamp under the given display name (empty falls back
// to the MAC). Must be called before Start or Run.
func (b *Bridge) AddLamp(lamp Lamp, name string) {
	id := LampID(name, lamp.MAC())
	if name == "" {
		name = lamp.MAC()
	}
	b.lamps = append(b.lamps, &lampBinding{
		lamp:   lamp,
		name:   name,
		topics: Topics{Prefix: b.opts.TopicPrefix, ID: id},
	})
}

// Start wires every registered lamp: discovery config, availability, initial
// state, and the command subscription. It does not block; Run does.
func (b *Bridge) Start(ctx context.Context) error {
	b.runCtx = ctx
	for _, binding := range b.lamps {
		if err := b.startLamp(binding); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) startLamp(binding *lampBinding) error {
	if b.opts.DiscoveryPrefix != "" {
		payload, err := discoveryPayload(binding.name, binding.lamp.MAC(), binding.topics.ID, binding.topics)
		if err != nil {
			return err
		}
		topic := discoveryTopic(b.opts.DiscoveryPrefix, binding.topics.ID)
		if err := b.client.Publish(topic, 0, true, payload); err != nil {
			return fmt.Errorf("bridge: publish discovery for %s: %w", binding.topics.ID, err)
		}
	}

	b.publishAvailability(binding)
	b.publishState(binding)

	binding.lamp.OnChange(func() {
		b.publishState(binding)
		b.publishAvailability(binding)
	})

	if err := b.client.Subscribe(binding.topics.Command(), 0, func(_ string, payload []byte) {
		b.handleCommand(binding, payload)
	}); err != nil {
		return fmt.Errorf("bridge: subscribe commands for %s: %w", binding.topics.ID, err)
	}

	b.log.Info("[MQTT] lamp bridged", "lamp", binding.topics.ID, "mac", binding.lamp.MAC())
	return nil
}

// Run starts every lamp and polls until ctx is done. Lamps that cannot be
// reached are retried with exponential backoff instead of the regular poll
// interval, so a lamp that is simply switched off at the wall does not get
// hammered.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, binding := range b.lamps {
		wg.Add(1)
		go func(bd *lampBinding) {
			defer wg.Done()
			b.pollLamp(ctx, bd)
		}(binding)
	}

	<-ctx.Done()
	wg.Wait()

	// Retained "online" must not outlive the bridge.
	for _, binding := range b.lamps {
		b.publish(binding.topics.Availability(), 1, true, []byte("offline"))
	}
	return nil
}

func (b *Bridge) pollLamp(ctx context.Context, binding *lampBinding) {
	attempt := 0
	for {
		if err := binding.lamp.Update(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoffDelay(attempt, maxPollBackoffSeconds)
			attempt++
			b.log.Warn("[MQTT] lamp poll failed", "lamp", binding.topics.ID, "error", err, "retry_in", delay)
			b.publishAvailability(binding)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0
		b.publishAvailability(binding)
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.opts.Poll):
		}
	}
}

func (b *Bridge) handleCommand(binding *lampBinding, payload []byte) {
	cmd, err := decodeCommand(payload)
	if err != nil {
		b.log.Warn("[MQTT] dropping malformed command", "lamp", binding.topics.ID, "error", err)
		return
	}
	base := b.runCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, commandTimeout)
	defer cancel()

	b.log.Debug("[MQTT] command", "lamp", binding.topics.ID, "payload", string(payload))
	if err := b.dispatch(ctx, binding.lamp, cmd); err != nil {
		b.log.Warn("[MQTT] command failed", "lamp", binding.topics.ID, "error", err)
		b.publishAvailability(binding)
	}
}

// dispatch maps one command onto driver calls. Brightness without color or
// effect means the daylight panel; alongside a color it dims the mood
// light. Effects apply last so they override a simultaneous color write,
// matching how the lamp itself layers them.
func (b *Bridge) dispatch(ctx context.Context, lamp Lamp, cmd lightCommand) error {
	if strings.EqualFold(cmd.State, "OFF") {
		return lamp.TurnOff(ctx)
	}
	switch {
	case cmd.White != nil:
		return lamp.SetWhite(ctx, *cmd.White)
	case cmd.Color != nil:
		if err := lamp.SetColor(ctx, beurer.RGB{R: cmd.Color.R, G: cmd.Color.G, B: cmd.Color.B}); err != nil {
			return err
		}
		if cmd.Brightness != nil {
			if err := lamp.SetColorBrightness(ctx, *cmd.Brightness); err != nil {
				return err
			}
		}
		if cmd.Effect != nil {
			return lamp.SetEffect(ctx, *cmd.Effect)
		}
		return nil
	case cmd.Effect != nil:
		return lamp.SetEffect(ctx, *cmd.Effect)
	case cmd.Brightness != nil:
		return lamp.SetWhite(ctx, *cmd.Brightness)
	default:
		return lamp.TurnOn(ctx)
	}
}

func (b *Bridge) publishState(binding *lampBinding) {
	payload, err := encodeState(binding.lamp.State())
	if err != nil {
		b.log.Error("[MQTT] encode state", "lamp", binding.topics.ID, "error", err)
		return
	}
	b.publish(binding.topics.State(), 0, true, payload)
}

func (b *Bridge) publishAvailability(binding *lampBinding) {
	payload := []byte("offline")
	if binding.lamp.Connected() {
		payload = []byte("online")
	}
	b.publish(binding.topics.Availability(), 1, true, payload)
}

func (b *Bridge) publish(topic string, qos byte, retained bool, payload []byte) {
	if err := b.client.Publish(topic, qos, retained, payload); err != nil {
		b.log.Warn("[MQTT] publish failed", "topic", topic, "error", err)
	}
}

// backoffDelay returns the retry delay for attempt n, capped at maxSeconds.
// The attempt counter grows for as long as a lamp stays unreachable, so the
// exponent is clamped before the shift can overflow the duration.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	max := time.Duration(maxSeconds) * time.Second
	if attempt > 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > max {
		return max
	}
	return delay
}
