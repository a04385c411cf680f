package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/beurer"
	"github.com/Bellamonte/beurer-daylight-lamps/internal/bridge"
	"github.com/Bellamonte/beurer-daylight-lamps/internal/config"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "bridge the configured lamps onto MQTT",
	Long: `Serve connects to the MQTT broker from the config file and exposes every
configured lamp as a Home Assistant JSON-schema light, with discovery,
availability and periodic status polling. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(c *cobra.Command, args []string) error {
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must be configured for serve")
	}
	if len(cfg.Lamps) == 0 {
		return fmt.Errorf("no lamps configured in %s; find yours with beurerctl scan", config.DefaultConfigPath())
	}

	transport, err := newTransport()
	if err != nil {
		return err
	}

	client, err := bridge.NewPahoClient(cfg.MQTT, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	b := bridge.New(client, bridge.Options{
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		Poll:            time.Duration(cfg.MQTT.PollSeconds) * time.Second,
		Logger:          logger,
	})

	opts := beurer.DefaultOptions()
	opts.Logger = logger
	drivers := make([]*beurer.Driver, 0, len(cfg.Lamps))
	for _, lamp := range cfg.Lamps {
		d, err := beurer.New(transport, lamp.MAC, opts)
		if err != nil {
			return err
		}
		drivers = append(drivers, d)
		b.AddLamp(d, lamp.Name)
	}
	defer func() {
		for _, d := range drivers {
			d.Close()
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("bridge running", "broker", cfg.MQTT.Broker, "lamps", len(drivers))
	return b.Run(ctx)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
