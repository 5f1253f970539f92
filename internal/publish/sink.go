// Package publish forwards recognition events to message brokers.
package publish

import (
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/logging"
	"github.com/emmett/sphinxvox/internal/recognizer"
	"github.com/emmett/sphinxvox/internal/stt"
)

// Publisher sends a payload to a topic or subject
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

// TopicFunc picks the destination for an event
type TopicFunc func(ev recognizer.Event) string

// Sink is a recognizer listener that publishes every event as JSON
type Sink struct {
	name      string
	publisher Publisher
	topic     TopicFunc
	logger    *logrus.Entry
}

// NewSink creates a sink; name is used in logs only
func NewSink(name string, publisher Publisher, topic TopicFunc, logger *logrus.Logger) *Sink {
	logger = logging.OrDiscard(logger)
	return &Sink{
		name:      name,
		publisher: publisher,
		topic:     topic,
		logger:    logger.WithField("sink", name),
	}
}

// OnEvent implements recognizer.EventListener
func (s *Sink) OnEvent(ev recognizer.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode event")
		return
	}

	topic := s.topic(ev)
	if err := s.publisher.Publish(topic, payload); err != nil {
		s.logger.WithFields(logrus.Fields{
			"topic": topic,
			"event": ev.Kind,
		}).WithError(err).Warn("Failed to publish event")
	}
}

// Name returns the sink name
func (s *Sink) Name() string { return s.name }

// Close closes the underlying publisher
func (s *Sink) Close() error {
	return s.publisher.Close()
}

func (s *Sink) OnBeginningOfSpeech()            {}
func (s *Sink) OnEndOfSpeech()                  {}
func (s *Sink) OnPartialResult(*stt.Hypothesis) {}
func (s *Sink) OnResult(*stt.Hypothesis)        {}
func (s *Sink) OnTimeout()                      {}
func (s *Sink) OnError(error)                   {}
