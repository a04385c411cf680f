package bridge

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Bellamonte/beurer-daylight-lamps/internal/config"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	// mqttDisconnectQuiesce gives pending publishes a moment to flush on
	// shutdown, in milliseconds as paho wants it.
	mqttDisconnectQuiesce = 250
	mqttKeepAlive         = 60 * time.Second
)

// PahoClient implements Client on eclipse/paho with auto-reconnect, an LWT
// on the bridge status topic, and re-subscription after reconnects.
type PahoClient struct {
	client      pahomqtt.Client
	log         *slog.Logger
	statusTopic string

	mu   sync.Mutex
	subs map[string]pahoSubscription
}

type pahoSubscription struct {
	qos     byte
	handler func(topic string, payload []byte)
}

var _ Client = (*PahoClient)(nil)

// NewPahoClient connects to the broker in cfg and reports online on the
// bridge status topic. The broker flips that topic to offline through the
// LWT if the bridge dies without a clean shutdown.
func NewPahoClient(cfg config.MQTTConfig, log *slog.Logger) (*PahoClient, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &PahoClient{
		log:         log,
		statusTopic: StatusTopic(cfg.TopicPrefix),
		subs:        make(map[string]pahoSubscription),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetWill(c.statusTopic, "offline", 1, true)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("[MQTT] connection lost", "error", err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("bridge: connect mqtt: timeout after %v", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("bridge: connect mqtt: %w", err)
	}
	return c, nil
}

// handleConnect runs on every (re)connect: report online and re-install the
// subscriptions the broker forgot with the clean session.
func (c *PahoClient) handleConnect() {
	c.log.Info("[MQTT] connected", "status_topic", c.statusTopic)
	c.client.Publish(c.statusTopic, 1, true, "online")

	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, sub := range c.subs {
		c.client.Subscribe(topic, sub.qos, wrapHandler(sub.handler))
	}
}

// Publish sends payload and waits for the broker to take it.
func (c *PahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("bridge: publish %s: timeout after %v", topic, mqttPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("bridge: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic and remembers it for reconnects.
func (c *PahoClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.subs[topic] = pahoSubscription{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, wrapHandler(handler))
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("bridge: subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("bridge: subscribe %s: %w", topic, err)
	}
	return nil
}

// Close reports offline and disconnects.
func (c *PahoClient) Close() {
	token := c.client.Publish(c.statusTopic, 1, true, "offline")
	token.WaitTimeout(mqttPublishTimeout)
	c.client.Disconnect(mqttDisconnectQuiesce)
}

// wrapHandler adapts a bridge handler to paho, dropping retained messages:
// a retained command replayed on subscribe is a leftover from a previous
// run, not a fresh request.
func wrapHandler(handler func(topic string, payload []byte)) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if msg.Retained() {
			return
		}
		handler(msg.Topic(), msg.Payload())
	}
}
