package publish

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/config"
	"github.com/emmett/sphinxvox/internal/recognizer"
)

// NATSPublisher publishes core NATS messages
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the servers in cfg
func NewNATSPublisher(cfg config.NATSSettings, logger *logrus.Logger) (*NATSPublisher, error) {
	var opts []nats.Option
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			logger.WithError(err).Warn("NATS disconnected")
		}
	}))

	nc, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version": nc.ConnectedServerVersion(),
		"address": nc.ConnectedAddr(),
	}).Info("Connected to NATS server")
	return &NATSPublisher{conn: nc}, nil
}

func (n *NATSPublisher) Publish(subject string, payload []byte) error {
	return n.conn.Publish(subject, payload)
}

// Close drains pending messages before closing
func (n *NATSPublisher) Close() error {
	return n.conn.Drain()
}

// NATSSubject returns <subject>.<kind>
func NATSSubject(subject string) TopicFunc {
	subject = strings.TrimSuffix(subject, ".")
	return func(ev recognizer.Event) string {
		return subject + "." + ev.Kind.String()
	}
}

// NewSinks connects every enabled sink in settings
func NewSinks(settings config.SinkSettings, logger *logrus.Logger) ([]*Sink, error) {
	var sinks []*Sink

	if settings.MQTT.Enabled {
		pub, err := NewMQTTPublisher(settings.MQTT, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, NewSink("mqtt", pub, MQTTTopic(settings.MQTT.TopicPrefix), logger))
	}

	if settings.NATS.Enabled {
		pub, err := NewNATSPublisher(settings.NATS, logger)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, NewSink("nats", pub, NATSSubject(settings.NATS.Subject), logger))
	}

	return sinks, nil
}
