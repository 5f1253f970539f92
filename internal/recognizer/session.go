package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/audio"
	"github.com/emmett/sphinxvox/internal/logging"
	"github.com/emmett/sphinxvox/internal/stt"
)

// NoTimeout disables the no-speech timeout
const NoTimeout time.Duration = -1

// DefaultBufferSeconds is the length of one audio read
const DefaultBufferSeconds = 0.4

// State is the session's worker state
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Config holds configuration for a session
type Config struct {
	// SampleRate must be a positive whole number of Hz
	SampleRate float64

	// BufferSeconds is the length of each read; zero means DefaultBufferSeconds
	BufferSeconds float64

	// RawLogDir, when set, receives one WAV file per utterance
	RawLogDir string

	Logger *logrus.Logger
}

// Session drives one audio source into one engine and reports to listeners
type Session struct {
	id         string
	engine     stt.Engine
	source     audio.Source
	sampleRate int
	bufferSize int
	rawLogDir  string
	logger     *logrus.Entry

	registry   *Registry
	dispatcher *Dispatcher

	mu     sync.Mutex
	search string
	worker *worker
	closed bool
}

// worker is one run of the capture loop. final is written before done is closed.
type worker struct {
	utteranceID string
	cancel      context.CancelFunc
	done        chan struct{}
	final       *stt.Hypothesis
}

func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// NewSession validates cfg and starts the event dispatcher
func NewSession(engine stt.Engine, source audio.Source, cfg Config) (*Session, error) {
	if engine == nil {
		return nil, fmt.Errorf("session requires an engine")
	}
	if source == nil {
		return nil, fmt.Errorf("session requires an audio source")
	}
	rate, err := stt.IntegralRate(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	seconds := cfg.BufferSeconds
	if seconds == 0 {
		seconds = DefaultBufferSeconds
	}
	bufferSize := int(math.Round(float64(rate) * seconds))
	if bufferSize <= 0 {
		return nil, fmt.Errorf("buffer of %v seconds at %d Hz holds no samples", seconds, rate)
	}

	id := uuid.NewString()
	logger := logging.OrDiscard(cfg.Logger).WithField("session_id", id)
	registry := NewRegistry()

	return &Session{
		id:         id,
		engine:     engine,
		source:     source,
		sampleRate: rate,
		bufferSize: bufferSize,
		rawLogDir:  cfg.RawLogDir,
		logger:     logger,
		registry:   registry,
		dispatcher: NewDispatcher(registry, logger),
	}, nil
}

// ID returns the session's unique identifier
func (s *Session) ID() string { return s.id }

// SampleRate returns the rate in Hz
func (s *Session) SampleRate() int { return s.sampleRate }

// BufferSize returns the number of samples per read
func (s *Session) BufferSize() int { return s.bufferSize }

func (s *Session) AddListener(l Listener)    { s.registry.Add(l) }
func (s *Session) RemoveListener(l Listener) { s.registry.Remove(l) }

// SetSearch selects the search for the next utterance.
// It fails with ErrListening while recording.
func (s *Session) SetSearch(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordingLocked() {
		return ErrListening
	}
	return s.applySearchLocked(name)
}

func (s *Session) applySearchLocked(name string) error {
	if err := s.engine.SetSearch(name); err != nil {
		return fmt.Errorf("failed to set search %q: %w", name, err)
	}
	s.search = name
	return nil
}

// SearchName returns the last applied search, or "" if none was set
func (s *Session) SearchName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.search
}

// State reports Recording while a worker is capturing
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordingLocked() {
		return Recording
	}
	return Idle
}

func (s *Session) recordingLocked() bool {
	return s.worker != nil && !s.worker.exited()
}

// StartListening starts recognition with no timeout
func (s *Session) StartListening(search string) (bool, error) {
	return s.StartListeningTimeout(search, NoTimeout)
}

// StartListeningTimeout starts a worker using search.
// An empty search keeps the current one. It returns false without error
// when a worker is already recording.
func (s *Session) StartListeningTimeout(search string, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if s.worker != nil {
		if !s.worker.exited() {
			return false, nil
		}
		// ended on its own; its terminal event has already been posted
		s.worker.cancel()
		s.worker = nil
	}

	if search != "" {
		if err := s.applySearchLocked(search); err != nil {
			return false, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		utteranceID: uuid.NewString(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	s.worker = w

	s.logger.WithFields(logrus.Fields{
		"utterance_id": w.utteranceID,
		"search":       s.search,
		"timeout":      timeout,
	}).Info("Start recognition")

	go s.run(ctx, w, s.timeoutSamples(timeout))
	return true, nil
}

// timeoutSamples converts a timeout to a sample budget; -1 disables it
func (s *Session) timeoutSamples(timeout time.Duration) int64 {
	if timeout < 0 {
		return -1
	}
	return timeout.Milliseconds() * int64(s.sampleRate) / 1000
}

// Stop ends the utterance and posts its final result.
// It returns false if there was no worker to stop.
func (s *Session) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.joinLocked()
	if w == nil {
		return false
	}
	s.logger.WithField("utterance_id", w.utteranceID).Info("Stop recognition")
	s.post(w, Event{Kind: EventFinal, Hypothesis: w.final})
	return true
}

// Cancel ends the utterance and drops every pending event
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.joinLocked()
	if w == nil {
		return false
	}
	s.logger.WithField("utterance_id", w.utteranceID).Info("Cancel recognition")
	s.dispatcher.Purge()
	return true
}

func (s *Session) joinLocked() *worker {
	w := s.worker
	if w == nil {
		return nil
	}
	w.cancel()
	<-w.done
	s.worker = nil
	return w
}

// Wait blocks until the current worker exits on its own or ctx is done.
// It returns immediately when there is no worker.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	w := s.worker
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until every posted event has been delivered.
// It must not be called from a listener callback.
func (s *Session) Flush() {
	s.dispatcher.Flush()
}

// Close cancels any worker, stops the dispatcher and closes the source
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	// closed and the join share one critical section so no run can start in between
	s.closed = true
	if w := s.joinLocked(); w != nil {
		s.logger.WithField("utterance_id", w.utteranceID).Info("Cancel recognition")
		s.dispatcher.Purge()
	}
	s.mu.Unlock()

	s.dispatcher.Close()
	return s.source.Close()
}

// AddFsgSearch installs a grammar built in code
func (s *Session) AddFsgSearch(name string, fsg *stt.FsgModel) error {
	return s.install(name, func(i stt.SearchInstaller) error { return i.AddFsgSearch(name, fsg) })
}

// AddGrammarSearch installs a JSGF grammar file
func (s *Session) AddGrammarSearch(name, path string) error {
	return s.install(name, func(i stt.SearchInstaller) error { return i.AddGrammarSearch(name, path) })
}

// AddNgramSearch installs an n-gram language model
func (s *Session) AddNgramSearch(name, path string) error {
	return s.install(name, func(i stt.SearchInstaller) error { return i.AddNgramSearch(name, path) })
}

// AddKeyphraseSearch installs a single keyphrase spotter
func (s *Session) AddKeyphraseSearch(name, phrase string) error {
	return s.install(name, func(i stt.SearchInstaller) error { return i.AddKeyphraseSearch(name, phrase) })
}

// AddKeywordSearch installs a keyword list spotter
func (s *Session) AddKeywordSearch(name, path string) error {
	return s.install(name, func(i stt.SearchInstaller) error { return i.AddKeywordSearch(name, path) })
}

// AddAllphoneSearch installs a phonetic search
func (s *Session) AddAllphoneSearch(name, path string) error {
	return s.install(name, func(i stt.SearchInstaller) error { return i.AddAllphoneSearch(name, path) })
}

func (s *Session) install(name string, fn func(stt.SearchInstaller) error) error {
	installer, ok := s.engine.(stt.SearchInstaller)
	if !ok {
		return fmt.Errorf("failed to add search %q: %w", name, stt.ErrUnsupportedSearch)
	}
	if err := fn(installer); err != nil {
		return fmt.Errorf("failed to add search %q: %w", name, err)
	}
	return nil
}

func (s *Session) post(w *worker, ev Event) {
	ev.SessionID = s.id
	ev.UtteranceID = w.utteranceID
	ev.Time = time.Now()
	s.dispatcher.Post(ev)
}

func (s *Session) fault(w *worker, phase string, err error) {
	s.logger.WithFields(logrus.Fields{
		"utterance_id": w.utteranceID,
		"phase":        phase,
	}).WithError(err).Error("Recognition fault")
	s.post(w, Event{Kind: EventError, Err: &FaultError{Phase: phase, Err: err}})
}

// run is the capture loop. It owns the engine utterance and the read buffer.
func (s *Session) run(ctx context.Context, w *worker, timeoutSamples int64) {
	defer close(w.done)

	log := s.logger.WithField("utterance_id", w.utteranceID)
	var (
		uttOpen  bool
		recorder *audio.UtteranceRecorder
	)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.WithField("panic", r).Error("Recognition worker panicked")
		if uttOpen {
			s.endUtterance(log)
			w.final = s.hypSafe()
		}
		if recorder != nil {
			_ = recorder.Close()
		}
		s.stopSource(log)
		s.fault(w, PhaseRuntime, fmt.Errorf("worker panic: %v", r))
	}()

	buf := make([]int16, s.bufferSize)

	if err := s.source.Start(); err != nil {
		s.stopSource(log)
		s.fault(w, PhaseStartup, fmt.Errorf("failed to start audio source: %w", err))
		return
	}
	if !s.source.IsRecording() {
		s.stopSource(log)
		s.fault(w, PhaseStartup, errors.New("audio source did not enter recording state"))
		return
	}

	// the first read after start is device warm-up
	if n, err := s.source.Read(buf); err != nil || n < 0 {
		if err == nil {
			err = fmt.Errorf("negative read count %d", n)
		}
		s.stopSource(log)
		s.fault(w, PhaseStartup, fmt.Errorf("failed to read from audio source: %w", err))
		return
	}

	if err := s.engine.StartUtt(); err != nil {
		s.stopSource(log)
		s.fault(w, PhaseStartup, fmt.Errorf("failed to start utterance: %w", err))
		return
	}
	uttOpen = true

	recorder = s.openRecorder(w, log)

	var (
		fault     error
		eof       bool
		inSpeech  bool
		remaining = timeoutSamples
	)

	for ctx.Err() == nil && (timeoutSamples < 0 || remaining > 0) {
		n, err := s.source.Read(buf)
		if errors.Is(err, io.EOF) {
			eof = true
		} else if err != nil {
			fault = fmt.Errorf("failed to read from audio source: %w", err)
			break
		} else if n < 0 {
			fault = fmt.Errorf("negative read count %d", n)
			break
		}

		if n > 0 {
			if err := s.engine.ProcessRaw(buf[:n]); err != nil {
				fault = fmt.Errorf("failed to process audio: %w", err)
				break
			}
			s.record(recorder, buf[:n], log)

			if vad := s.engine.InSpeech(); vad != inSpeech {
				inSpeech = vad
				if inSpeech {
					s.post(w, Event{Kind: EventSpeechBegin})
				} else {
					s.post(w, Event{Kind: EventSpeechEnd})
				}
			}

			if inSpeech {
				remaining = timeoutSamples
			} else {
				remaining -= int64(n)
			}

			if hyp := s.engine.Hyp(); hyp != nil {
				s.post(w, Event{Kind: EventPartial, Hypothesis: hyp})
			}
		}

		if eof {
			break
		}
	}

	s.stopSource(log)

	// drain what the device captured before it stopped
	if fault == nil && !eof {
		if n, err := s.source.Read(buf); err == nil && n > 0 {
			if err := s.engine.ProcessRaw(buf[:n]); err != nil {
				log.WithError(err).Warn("Failed to process audio tail")
			} else {
				s.record(recorder, buf[:n], log)
			}
		}
	}

	s.endUtterance(log)
	uttOpen = false
	w.final = s.engine.Hyp()

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			log.WithError(err).Warn("Failed to close utterance recording")
		}
	}

	switch {
	case fault != nil:
		s.fault(w, PhaseRuntime, fault)
	case timeoutSamples >= 0 && remaining <= 0:
		log.Info("Recognition timed out")
		s.post(w, Event{Kind: EventTimeout})
	}
}

func (s *Session) endUtterance(log *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Engine panicked ending utterance")
		}
	}()
	if err := s.engine.EndUtt(); err != nil {
		log.WithError(err).Warn("Failed to end utterance")
	}
}

func (s *Session) hypSafe() (hyp *stt.Hypothesis) {
	defer func() {
		if recover() != nil {
			hyp = nil
		}
	}()
	return s.engine.Hyp()
}

func (s *Session) stopSource(log *logrus.Entry) {
	if err := s.source.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop audio source")
	}
}

func (s *Session) openRecorder(w *worker, log *logrus.Entry) *audio.UtteranceRecorder {
	if s.rawLogDir == "" {
		return nil
	}
	recorder, err := audio.NewUtteranceRecorder(s.rawLogDir, w.utteranceID, s.sampleRate)
	if err != nil {
		log.WithError(err).Warn("Utterance recording disabled")
		return nil
	}
	return recorder
}

func (s *Session) record(recorder *audio.UtteranceRecorder, samples []int16, log *logrus.Entry) {
	if recorder == nil {
		return
	}
	if err := recorder.Write(samples); err != nil {
		log.WithError(err).Warn("Failed to record utterance audio")
	}
}
