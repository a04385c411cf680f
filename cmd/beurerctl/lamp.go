package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/beurer"
)

// statusSettle is how long status waits for the lamp's asynchronous circuit
// reports after querying.
const statusSettle = time.Second

var (
	cmdScan = &cobra.Command{
		Use:   "scan",
		Short: "scan for TL100 lamps",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}

	cmdStatus = &cobra.Command{
		Use:   "status",
		Short: "show the lamp's current state",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	cmdOn = &cobra.Command{
		Use:   "on",
		Short: "power the lamp on in its last mode",
		Args:  cobra.NoArgs,
		RunE:  runOn,
	}

	cmdOff = &cobra.Command{
		Use:   "off",
		Short: "power the lamp off",
		Args:  cobra.NoArgs,
		RunE:  runOff,
	}

	cmdWhite = &cobra.Command{
		Use:   "white [brightness]",
		Short: "light the daylight panel, brightness 0-255 (default full)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWhite,
	}

	cmdColor = &cobra.Command{
		Use:   "color <rrggbb | r g b>",
		Short: "switch the mood light to a color",
		Args:  cobra.RangeArgs(1, 3),
		RunE:  runColor,
	}

	cmdBrightness = &cobra.Command{
		Use:   "brightness <0-255>",
		Short: "dim the mood light",
		Args:  cobra.ExactArgs(1),
		RunE:  runBrightness,
	}

	cmdEffect = &cobra.Command{
		Use:   "effect [name]",
		Short: "start a mood-light animation, or list them all",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEffect,
	}

	cmdWatch = &cobra.Command{
		Use:   "watch",
		Short: "follow state changes until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
)

// runWithLamp opens the target lamp, runs fn, and closes the connection.
func runWithLamp(fn func(ctx context.Context, d *beurer.Driver) error) error {
	ctx, cancel := opCtx()
	defer cancel()
	d, err := openLamp(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}

func runScan(c *cobra.Command, args []string) error {
	transport, err := newTransport()
	if err != nil {
		return err
	}
	ctx, cancel := opCtx()
	defer cancel()

	devices, err := beurer.Discover(ctx, transport, logger)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No lamps found.")
		return nil
	}
	for _, dev := range devices {
		name := dev.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%-20s  rssi %4d  %s\n", dev.MAC, dev.RSSI, name)
	}
	return nil
}

func runStatus(c *cobra.Command, args []string) error {
	return runWithLamp(func(ctx context.Context, d *beurer.Driver) error {
		if err := d.Update(ctx); err != nil {
			return err
		}
		// The circuit reports arrive as notifications after Update
		// returns; give them a moment.
		time.Sleep(statusSettle)
		printState(d.State())
		return nil
	})
}

func runOn(c *cobra.Command, args []string) error {
	return runWithLamp(func(ctx context.Context, d *beurer.Driver) error {
		return d.TurnOn(ctx)
	})
}

func runOff(c *cobra.Command, args []string) error {
	return runWithLamp(func(ctx context.Context, d *beurer.Driver) error {
		return d.TurnOff(ctx)
	})
}

func runWhite(c *cobra.Command, args []string) error {
	level := -1
	if len(args) == 1 {
		var err error
		if level, err = parseLevel(args[0]); err != nil {
			return err
		}
	}
	return runWithLamp(func(ctx context.Context, d *beurer.Driver) error {
		return d.SetWhite(ctx, level)
	})
}

func runColor(c *cobra.Command, args []string) error {
	rgb, err := parseColor(args)
	if err != nil {
		return err
	}
	return runWithLamp(func(ctx context.Context, d *beurer.Driver) error {
		return d.SetColor(ctx, rgb)
	})
}

func runBrightness(c *cobra.Command, args []string) error {
	level, err := parseLevel(args[0])
	if err != nil {
		return err
	}
	return runWithLamp(func(ctx context.Context, d *beurer.Driver) error {
		return d.SetColorBrightness(ctx, level)
	})
}

func runEffect(c *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, name := range beurer.Effects() {
			fmt.Println(name)
		}
		return nil
	}
	name, ok := matchEffect(args[0])
	if !ok {
		return fmt.Errorf("unknown effect %q, one of: %s", args[0], strings.Join(beurer.Effects(), ", "))
	}
	return runWithLamp(func(ctx context.Context, d *beurer.Driver) error {
		return d.SetEffect(ctx, name)
	})
}

func runWatch(c *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, err := openLamp(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	d.OnChange(func() {
		fmt.Println(formatState(d.State()))
	})

	connectCtx, connectCancel := context.WithTimeout(ctx, flagTimeout)
	err = d.Update(connectCtx)
	connectCancel()
	if err != nil {
		return err
	}
	fmt.Println(formatState(d.State()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, closing", "signal", sig.String())
	return nil
}

func parseLevel(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("brightness must be 0-255, got %q", s)
	}
	return n, nil
}

// parseColor accepts either one rrggbb hex value (with or without a leading
// #) or three decimal components.
func parseColor(args []string) (beurer.RGB, error) {
	if len(args) == 1 {
		s := strings.TrimPrefix(args[0], "#")
		if len(s) != 6 {
			return beurer.RGB{}, fmt.Errorf("color must be rrggbb hex or three 0-255 components")
		}
		n, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return beurer.RGB{}, fmt.Errorf("invalid hex color %q", args[0])
		}
		return beurer.RGB{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}, nil
	}
	if len(args) != 3 {
		return beurer.RGB{}, fmt.Errorf("color must be rrggbb hex or three 0-255 components")
	}
	var parts [3]uint8
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 || n > 255 {
			return beurer.RGB{}, fmt.Errorf("color component must be 0-255, got %q", arg)
		}
		parts[i] = uint8(n)
	}
	return beurer.RGB{R: parts[0], G: parts[1], B: parts[2]}, nil
}

// matchEffect resolves a case-insensitive effect name to its catalog form.
func matchEffect(s string) (string, bool) {
	for _, name := range beurer.Effects() {
		if strings.EqualFold(name, s) {
			return name, true
		}
	}
	return "", false
}

func printState(st beurer.State) {
	fmt.Printf("Lamp:    %s\n", st.MAC)
	fmt.Printf("Power:   %s (%s mode)\n", onOff(st.PowerOn), st.Mode)
	fmt.Printf("White:   %s, brightness %s\n", onOff(st.WhiteOn), formatLevel(st.WhiteBrightness))
	fmt.Printf("Color:   %s, %s, brightness %s\n", onOff(st.ColorOn), st.Color, formatLevel(st.ColorBrightness))
	fmt.Printf("Effect:  %s\n", st.Effect)
}

// formatState renders a state snapshot as one line for watch output.
func formatState(st beurer.State) string {
	return fmt.Sprintf("power=%s mode=%s white=%s(%s) color=%s(%s %s) effect=%s",
		onOff(st.PowerOn), st.Mode,
		onOff(st.WhiteOn), formatLevel(st.WhiteBrightness),
		onOff(st.ColorOn), st.Color, formatLevel(st.ColorBrightness),
		st.Effect)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func formatLevel(level int) string {
	if level == beurer.BrightnessUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%d/255", level)
}
