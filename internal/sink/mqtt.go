package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Publisher sends a payload to an MQTT topic.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// MQTTClient is a thin paho wrapper.
type MQTTClient struct {
	client mqtt.Client
}

// NewMQTTClient connects to the broker.
func NewMQTTClient(opts MQTTOptions) (*MQTTClient, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		o.SetPassword(opts.Password)
	}
	o.SetAutoReconnect(true)
	o.SetCleanSession(true)
	o.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(o)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTClient{client: client}, nil
}

// Publish implements Publisher.
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect closes the connection.
func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}

// MQTT publishes alerts as JSON AlertEvents.
type MQTT struct {
	pub       Publisher
	topic     string
	qos       byte
	target    string
	reference string
	now       func() time.Time
}

// NewMQTT creates an MQTT sink.
func NewMQTT(pub Publisher, topic string, qos byte, target, reference string) *MQTT {
	return &MQTT{
		pub:       pub,
		topic:     topic,
		qos:       qos,
		target:    target,
		reference: reference,
		now:       time.Now,
	}
}

// Name implements Sink.
func (m *MQTT) Name() string { return "mqtt" }

// Send implements Sink.
func (m *MQTT) Send(ctx context.Context, result *types.DetectionResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := types.NewAlertEvent(result, m.target, m.reference, m.now())
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	return m.pub.Publish(m.topic, m.qos, false, payload)
}
