// Command beurerctl controls Beurer TL100 daylight lamps over Bluetooth LE
// and optionally bridges them onto MQTT for Home Assistant.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/beurer"
	"github.com/Bellamonte/beurer-daylight-lamps/internal/ble"
	"github.com/Bellamonte/beurer-daylight-lamps/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	flagConfig   string
	flagMAC      string
	flagLogLevel string
	flagTimeout  time.Duration

	app = &cobra.Command{
		Use:          "beurerctl",
		Short:        "control Beurer TL100 daylight lamps over Bluetooth LE",
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(flagConfig)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			setLogger()
			return nil
		},
	}

	cmdInit = &cobra.Command{
		Use:   "init",
		Short: "write a default config file",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
)

func init() {
	app.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default: "+config.DefaultConfigPath()+")")
	app.PersistentFlags().StringVarP(&flagMAC, "mac", "m", "", "lamp address, overrides the configured lamps")
	app.PersistentFlags().StringVarP(&flagLogLevel, "log-level", "L", "", "log level, one of: [debug,info,warn,error]")
	app.PersistentFlags().DurationVarP(&flagTimeout, "timeout", "t", 30*time.Second, "timeout for lamp operations")

	app.AddCommand(cmdInit)
	app.AddCommand(cmdScan)
	app.AddCommand(cmdStatus)
	app.AddCommand(cmdOn)
	app.AddCommand(cmdOff)
	app.AddCommand(cmdWhite)
	app.AddCommand(cmdColor)
	app.AddCommand(cmdBrightness)
	app.AddCommand(cmdEffect)
	app.AddCommand(cmdWatch)
	app.AddCommand(cmdServe)
}

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		c, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return c, nil
	}

	return config.Default(), nil
}

// setLogger installs the process logger. The --log-level flag wins over the
// config file.
func setLogger() {
	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	}))
	slog.SetDefault(logger)
}

func newTransport() (ble.Transport, error) {
	var transport ble.Transport
	switch cfg.Transport {
	case "bluez":
		t, err := ble.NewBlueZTransport()
		if err != nil {
			return nil, err
		}
		transport = t
	case "native":
		transport = ble.NewNativeTransport()
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err := transport.Enable(); err != nil {
		return nil, err
	}
	return transport, nil
}

// openLamp builds a driver for the target lamp: the --mac flag if given, the
// single configured lamp, or the first lamp a scan turns up.
func openLamp(ctx context.Context) (*beurer.Driver, error) {
	transport, err := newTransport()
	if err != nil {
		return nil, err
	}
	mac, err := resolveMAC(ctx, transport)
	if err != nil {
		return nil, err
	}
	opts := beurer.DefaultOptions()
	opts.Logger = logger
	return beurer.New(transport, mac, opts)
}

func resolveMAC(ctx context.Context, transport ble.Transport) (string, error) {
	if flagMAC != "" {
		return flagMAC, nil
	}
	switch len(cfg.Lamps) {
	case 0:
		// Fall through to scanning.
	case 1:
		return cfg.Lamps[0].MAC, nil
	default:
		return "", fmt.Errorf("%d lamps configured, pick one with --mac", len(cfg.Lamps))
	}

	logger.Info("no lamp configured, scanning")
	devices, err := beurer.Discover(ctx, transport, logger)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", beurer.ErrNoDevice
	}
	logger.Info("using discovered lamp", "mac", devices[0].MAC, "name", devices[0].Name)
	return devices[0].MAC, nil
}

// opCtx returns the context for one lamp operation, bounded by --timeout.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), flagTimeout)
}

func runInit(c *cobra.Command, args []string) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}
