// Package control exposes a recognition session to remote surfaces.
package control

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/logging"
	"github.com/emmett/sphinxvox/internal/recognizer"
)

// Status is a snapshot of the session
type Status struct {
	SessionID  string `json:"session_id"`
	State      string `json:"state"`
	Listening  bool   `json:"listening"`
	Search     string `json:"search"`
	SampleRate int    `json:"sample_rate"`
}

// Controller is what the gRPC, HTTP and MCP surfaces drive
type Controller interface {
	StartListening(search string, timeoutMs int) (bool, error)
	Stop() bool
	Cancel() bool
	SetSearch(name string) error
	Status() Status
	Subscribe(buffer int) (<-chan recognizer.Event, func())
	Recent(n int) []recognizer.Event
}

// Timeout maps a millisecond timeout onto the session's; zero or less disables it
func Timeout(ms int) time.Duration {
	if ms <= 0 {
		return recognizer.NoTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// Service implements Controller over one session
type Service struct {
	session *recognizer.Session
	hub     *Hub
	logger  *logrus.Entry
}

// NewService attaches an event hub to session
func NewService(session *recognizer.Session, history int, logger *logrus.Logger) *Service {
	log := logging.OrDiscard(logger).WithField("session_id", session.ID())
	hub := NewHub(history, log)
	session.AddListener(hub)

	return &Service{
		session: session,
		hub:     hub,
		logger:  log,
	}
}

func (s *Service) StartListening(search string, timeoutMs int) (bool, error) {
	started, err := s.session.StartListeningTimeout(search, Timeout(timeoutMs))
	if err != nil {
		s.logger.WithError(err).WithField("search", search).Warn("Start listening rejected")
	}
	return started, err
}

func (s *Service) Stop() bool   { return s.session.Stop() }
func (s *Service) Cancel() bool { return s.session.Cancel() }

func (s *Service) SetSearch(name string) error {
	return s.session.SetSearch(name)
}

func (s *Service) Status() Status {
	state := s.session.State()
	return Status{
		SessionID:  s.session.ID(),
		State:      state.String(),
		Listening:  state == recognizer.Recording,
		Search:     s.session.SearchName(),
		SampleRate: s.session.SampleRate(),
	}
}

func (s *Service) Subscribe(buffer int) (<-chan recognizer.Event, func()) {
	return s.hub.Subscribe(buffer)
}

func (s *Service) Recent(n int) []recognizer.Event {
	return s.hub.Recent(n)
}

// Hub returns the service's event hub
func (s *Service) Hub() *Hub {
	return s.hub
}

// Close detaches the hub; the session is owned by the caller
func (s *Service) Close() {
	s.session.RemoveListener(s.hub)
}
