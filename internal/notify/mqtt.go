package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tracker-svr/internal/dispatcher"
)

type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// MQTT publica cada posición en el topic propio del dispositivo. Los
// dispositivos sin topic se omiten.
type MQTT struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *slog.Logger
}

func NewMQTT(cfg MQTTConfig, lg *slog.Logger) *MQTT {
	logger := lg.With("component", "notify.mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) { logger.Info("mqtt connected", "broker", cfg.BrokerURL) }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) { logger.Warn("mqtt connection lost", "err", err) }

	return &MQTT{
		client: mqtt.NewClient(opts),
		prefix: strings.Trim(cfg.TopicPrefix, "/"),
		qos:    cfg.QoS,
		logger: logger,
	}
}

// Connect espera la primera conexión. Los reintentos los hace paho
// (ConnectRetry); si ctx se cancela antes, aborta el intento en curso.
func (m *MQTT) Connect(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		m.client.Disconnect(0)
		return ctx.Err()
	}
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Deliver(ctx context.Context, d dispatcher.Delivery) error {
	topic := m.topic(d.Device.Topic)
	if topic == "" {
		return nil
	}
	payload, err := json.Marshal(NewEvent(d))
	if err != nil {
		return err
	}
	token := m.client.Publish(topic, m.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish %s: %w", topic, ctx.Err())
	}
}

func (m *MQTT) topic(deviceTopic string) string {
	deviceTopic = strings.Trim(deviceTopic, "/")
	if deviceTopic == "" {
		return ""
	}
	if m.prefix == "" {
		return deviceTopic
	}
	return m.prefix + "/" + deviceTopic
}
