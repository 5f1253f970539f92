package recognizer

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emmett/sphinxvox/internal/stt"
)

const (
	testRate  = 16000
	frameSize = testRate / 10 // 100ms
)

func speech() []int16 {
	f := make([]int16, frameSize)
	for i := range f {
		f[i] = 1000
	}
	return f
}

func silence() []int16 { return make([]int16, frameSize) }

// read is one scripted result of fakeSource.Read
type read struct {
	samples []int16
	n       int
	err     error
}

func frames(fs ...[]int16) []read {
	out := make([]read, len(fs))
	for i, f := range fs {
		out[i] = read{samples: f}
	}
	return out
}

func repeat(f func() []int16, n int) [][]int16 {
	out := make([][]int16, n)
	for i := range out {
		out[i] = f()
	}
	return out
}

// fakeSource replays scripted reads, then idles, loops silence or returns io.EOF
type fakeSource struct {
	mu        sync.Mutex
	reads     []read
	pos       int
	tail      []int16 // returned by the first read after Stop
	eof       bool
	silent    bool
	startErr  error
	noRecord  bool
	recording bool
	starts    int
	stops     int
	closed    bool
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.recording = !f.noRecord
	return nil
}

func (f *fakeSource) Read(buf []int16) (int, error) {
	f.mu.Lock()
	if f.pos < len(f.reads) {
		r := f.reads[f.pos]
		f.pos++
		f.mu.Unlock()
		if r.err != nil {
			return 0, r.err
		}
		if r.samples == nil {
			return r.n, nil
		}
		return copy(buf, r.samples), nil
	}
	recording, eof, silent := f.recording, f.eof, f.silent
	tail := f.tail
	if !recording {
		f.tail = nil
	}
	f.mu.Unlock()

	switch {
	case !recording && tail != nil:
		return copy(buf, tail), nil
	case !recording:
		return 0, nil
	case eof:
		return 0, io.EOF
	case silent:
		time.Sleep(time.Millisecond)
		n := copy(buf, silence())
		return n, nil
	default:
		time.Sleep(2 * time.Millisecond)
		return 0, nil
	}
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.recording = false
	return nil
}

func (f *fakeSource) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.recording = false
	return nil
}

func (f *fakeSource) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// fakeEngine treats any frame whose first sample is non-zero as speech
type fakeEngine struct {
	mu           sync.Mutex
	starts       int
	ends         int
	processed    int
	speechFrames int
	inSpeech     bool
	inUtt        bool
	search       string
	searches     map[string]bool
	startErr     error
	panicAt      int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{searches: map[string]bool{stt.DefaultSearch: true}}
}

func (e *fakeEngine) StartUtt() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.starts++
	e.inUtt = true
	e.speechFrames = 0
	e.inSpeech = false
	return nil
}

func (e *fakeEngine) ProcessRaw(samples []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inUtt {
		return stt.ErrNoUtterance
	}
	e.processed++
	if e.panicAt > 0 && e.processed == e.panicAt {
		panic("decoder exploded")
	}
	e.inSpeech = len(samples) > 0 && samples[0] != 0
	if e.inSpeech {
		e.speechFrames++
	}
	return nil
}

func (e *fakeEngine) EndUtt() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inUtt {
		return stt.ErrNoUtterance
	}
	e.ends++
	e.inUtt = false
	return nil
}

func (e *fakeEngine) Hyp() *stt.Hypothesis {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.speechFrames == 0 {
		return nil
	}
	return &stt.Hypothesis{Text: fmt.Sprintf("words %d", e.speechFrames), Score: int32(-e.speechFrames)}
}

func (e *fakeEngine) InSpeech() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inSpeech
}

func (e *fakeEngine) SetSearch(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.searches[name] {
		return fmt.Errorf("%w: %s", stt.ErrUnknownSearch, name)
	}
	e.search = name
	return nil
}

func (e *fakeEngine) Search() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.search
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) add(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.searches[name] = true
	return nil
}

func (e *fakeEngine) AddFsgSearch(name string, fsg *stt.FsgModel) error {
	if err := fsg.Validate(); err != nil {
		return err
	}
	return e.add(name)
}
func (e *fakeEngine) AddGrammarSearch(name, _ string) error { return e.add(name) }
func (e *fakeEngine) AddNgramSearch(name, _ string) error   { return e.add(name) }
func (e *fakeEngine) AddKeyphraseSearch(name, phrase string) error {
	if phrase == "" {
		return errors.New("empty keyphrase")
	}
	return e.add(name)
}
func (e *fakeEngine) AddKeywordSearch(name, _ string) error  { return e.add(name) }
func (e *fakeEngine) AddAllphoneSearch(name, _ string) error { return e.add(name) }

func (e *fakeEngine) counts() (starts, ends, processed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts, e.ends, e.processed
}

// bareEngine hides the SearchInstaller methods
type bareEngine struct {
	stt.Engine
}

// recordingListener records every callback in order
type recordingListener struct {
	mu     sync.Mutex
	kinds  []EventKind
	hyps   []*stt.Hypothesis
	errors []error
}

func (l *recordingListener) add(kind EventKind, hyp *stt.Hypothesis, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds = append(l.kinds, kind)
	l.hyps = append(l.hyps, hyp)
	if err != nil {
		l.errors = append(l.errors, err)
	}
}

func (l *recordingListener) OnBeginningOfSpeech()                { l.add(EventSpeechBegin, nil, nil) }
func (l *recordingListener) OnEndOfSpeech()                      { l.add(EventSpeechEnd, nil, nil) }
func (l *recordingListener) OnPartialResult(hyp *stt.Hypothesis) { l.add(EventPartial, hyp, nil) }
func (l *recordingListener) OnResult(hyp *stt.Hypothesis)        { l.add(EventFinal, hyp, nil) }
func (l *recordingListener) OnTimeout()                          { l.add(EventTimeout, nil, nil) }
func (l *recordingListener) OnError(err error)                   { l.add(EventError, nil, err) }

func (l *recordingListener) Kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]EventKind(nil), l.kinds...)
}

func (l *recordingListener) Errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errors...)
}

func (l *recordingListener) Last() *stt.Hypothesis {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.hyps) == 0 {
		return nil
	}
	return l.hyps[len(l.hyps)-1]
}

func newTestSession(t *testing.T, engine stt.Engine, source *fakeSource) (*Session, *recordingListener) {
	t.Helper()

	s, err := NewSession(engine, source, Config{SampleRate: testRate})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	l := &recordingListener{}
	s.AddListener(l)
	return s, l
}

func count(kinds []EventKind, kind EventKind) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}
