package publish

import (
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/config"
	"github.com/emmett/sphinxvox/internal/logging"
	"github.com/emmett/sphinxvox/internal/recognizer"
)

const mqttAckTimeout = 5 * time.Second

// mqttClient is the part of paho.Client the publisher uses
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes with QoS 1 to an MQTT broker
type MQTTPublisher struct {
	client     mqttClient
	logger     *logrus.Entry
	ackTimeout time.Duration
}

// NewMQTTPublisher connects to the broker in cfg
func NewMQTTPublisher(cfg config.MQTTSettings, logger *logrus.Logger) (*MQTTPublisher, error) {
	logger = logging.OrDiscard(logger)
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.BrokerURL, token.Error())
	}

	log := logger.WithField("broker", cfg.BrokerURL)
	log.Info("Connected to MQTT broker")
	return newMQTTPublisher(client, log), nil
}

func newMQTTPublisher(client mqttClient, logger *logrus.Entry) *MQTTPublisher {
	return &MQTTPublisher{client: client, logger: logger, ackTimeout: mqttAckTimeout}
}

// Publish hands payload to the client and returns without waiting for the
// broker acknowledgement. A missing or failed ack is logged.
func (m *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, 1, false, payload)
	go m.awaitAck(topic, token)
	return nil
}

func (m *MQTTPublisher) awaitAck(topic string, token paho.Token) {
	log := m.logger.WithField("topic", topic)
	if !token.WaitTimeout(m.ackTimeout) {
		log.Warn("MQTT publish not acknowledged in time")
		return
	}
	if err := token.Error(); err != nil {
		log.WithError(err).Warn("MQTT publish failed")
	}
}

func (m *MQTTPublisher) Close() error {
	m.client.Disconnect(250)
	return nil
}

// MQTTTopic returns <prefix>/<session>/<kind>
func MQTTTopic(prefix string) TopicFunc {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(ev recognizer.Event) string {
		return fmt.Sprintf("%s/%s/%s", prefix, ev.SessionID, ev.Kind)
	}
}
