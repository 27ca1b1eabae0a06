// Package broker wraps paho.mqtt.golang into the long-lived, subscribing
// connection the mirroring engine needs, generalizing the one-shot
// publish-and-disconnect pattern the teacher's notify.MQTT uses (grounded on
// internal/notify/mqtt.go) into a persistent client with retained publishes
// and topic subscriptions.
package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Broker is the transport collaborator the mirroring engine publishes to and
// receives inbound read/write requests from (SPEC_FULL.md §7).
type Broker interface {
	Connect(ctx context.Context) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Publish(topic string, payload []byte, retained bool) error
	Disconnect()
	ClientID() string
}

// Config holds the settings needed to dial a broker.
type Config struct {
	Host        string
	ClientID    string
	Username    string
	Password    string
	CACertPath  string
	KeepAlive   time.Duration
	ConnectWait time.Duration
}

// MQTT is the production Broker implementation.
type MQTT struct {
	cfg    Config
	client mqtt.Client
}

// New creates an MQTT broker client. Connect must be called before use.
func New(cfg Config) *MQTT {
	if cfg.ConnectWait == 0 {
		cfg.ConnectWait = 10 * time.Second
	}
	return &MQTT{cfg: cfg}
}

// ClientID returns the identifier this client connects with.
func (m *MQTT) ClientID() string { return m.cfg.ClientID }

// Connect dials the broker and blocks until the connection is established or
// ctx expires.
func (m *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Host).
		SetClientID(m.cfg.ClientID).
		SetKeepAlive(m.cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectTimeout(m.cfg.ConnectWait).
		SetWriteTimeout(m.cfg.ConnectWait)

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	if m.cfg.CACertPath != "" {
		tlsCfg, err := tlsConfig(m.cfg.CACertPath)
		if err != nil {
			return fmt.Errorf("build tls config: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	m.client = mqtt.NewClient(opts)
	tok := m.client.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if tok.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", tok.Error())
	}
	return nil
}

// Subscribe registers handler for every message delivered on topic.
func (m *MQTT) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	tok := m.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !tok.WaitTimeout(m.cfg.ConnectWait) {
		return fmt.Errorf("mqtt subscribe %s: timeout", topic)
	}
	if tok.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, tok.Error())
	}
	return nil
}

// Publish sends payload to topic at QoS 0, optionally retained.
func (m *MQTT) Publish(topic string, payload []byte, retained bool) error {
	tok := m.client.Publish(topic, 0, retained, payload)
	if !tok.WaitTimeout(m.cfg.ConnectWait) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	if tok.Error() != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, tok.Error())
	}
	return nil
}

// Disconnect closes the connection gracefully.
func (m *MQTT) Disconnect() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

func tlsConfig(caCertPath string) (*tls.Config, error) {
	pem, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("read ca cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caCertPath)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
