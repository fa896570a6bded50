// Package publish fans executed query results out to an MQTT broker so other
// consumers can follow what the explorer fetched.
package publish

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pocket-telemetry/backend/internal/interpret"
	"github.com/pocket-telemetry/backend/internal/models"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client not connected")

// Publisher sends executed results somewhere.
type Publisher interface {
	PublishResult(msg ResultMessage) error
	Close()
}

// ResultMessage is the payload published for each successful execution.
type ResultMessage struct {
	WorkspaceID    string               `json:"workspaceId"`
	VehicleTokenID string               `json:"vehicleTokenId"`
	Kind           models.QueryKind     `json:"kind"`
	Query          string               `json:"query"`
	Summary        string               `json:"summary"`
	Rendering      *interpret.Rendering `json:"rendering"`
	ExecutedAt     time.Time            `json:"executedAt"`
}

// Config is the MQTT connection and topic configuration.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func generateClientID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return "pocket-telemetry-" + hex.EncodeToString(b)
}

// DefaultConfig returns the defaults used when only a broker is configured.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       generateClientID(),
		TopicPrefix:    "dimo/telemetry",
		QoS:            1,
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// mqttClient is the subset of mqtt.Client the publisher uses.
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes results as JSON to
// <prefix>/<vehicleTokenId>/<kind>.
type MQTTPublisher struct {
	config Config
	client mqttClient
}

// NewMQTTPublisher creates a publisher backed by a paho client. Call Start to connect.
func NewMQTTPublisher(cfg Config) *MQTTPublisher {
	defaults := DefaultConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = defaults.ClientID
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaults.TopicPrefix
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaults.KeepAlive
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		fmt.Printf("[MQTT] Connected to %s\n", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		fmt.Printf("[MQTT] Connection lost: %v\n", err)
	})

	return newPublisher(cfg, mqtt.NewClient(opts))
}

func newPublisher(cfg Config, client mqttClient) *MQTTPublisher {
	return &MQTTPublisher{config: cfg, client: client}
}

// Start connects to the broker.
func (p *MQTTPublisher) Start() error {
	fmt.Printf("[MQTT] Connecting to %s as %s\n", p.config.Broker, p.config.ClientID)
	token := p.client.Connect()
	if !token.WaitTimeout(p.config.ConnectTimeout) {
		return fmt.Errorf("connecting to MQTT broker %s: timed out", p.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to MQTT broker %s: %w", p.config.Broker, err)
	}
	return nil
}

// Topic returns the topic a result for vehicle and kind is published to.
func (p *MQTTPublisher) Topic(vehicleTokenID string, kind models.QueryKind) string {
	vehicle := vehicleTokenID
	if vehicle == "" {
		vehicle = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(p.config.TopicPrefix, "/"), vehicle, kind)
}

// PublishResult publishes msg and waits for the broker acknowledgement.
func (p *MQTTPublisher) PublishResult(msg ResultMessage) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding result message: %w", err)
	}

	topic := p.Topic(msg.VehicleTokenID, msg.Kind)
	token := p.client.Publish(topic, p.config.QoS, false, payload)
	if !token.WaitTimeout(p.config.PublishTimeout) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	fmt.Printf("[MQTT] Published %s (%d bytes)\n", topic, len(payload))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		fmt.Println("[MQTT] Disconnected")
	}
}

// Noop discards every result. It is used when no broker is configured.
type Noop struct{}

func (Noop) PublishResult(ResultMessage) error { return nil }
func (Noop) Close()                            {}
