package recognizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/sphinxvox/internal/audio"
	"github.com/emmett/sphinxvox/internal/stt"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func waitProcessed(t *testing.T, e *fakeEngine, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, _, processed := e.counts()
		return processed >= n
	}, waitFor, tick)
}

func waitWorker(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestNewSessionValidation(t *testing.T) {
	_, err := NewSession(newFakeEngine(), &fakeSource{}, Config{SampleRate: 16000.5})
	assert.ErrorIs(t, err, stt.ErrInvalidSampleRate)

	_, err = NewSession(newFakeEngine(), &fakeSource{}, Config{SampleRate: 0})
	assert.ErrorIs(t, err, stt.ErrInvalidSampleRate)

	_, err = NewSession(nil, &fakeSource{}, Config{SampleRate: testRate})
	assert.Error(t, err)

	_, err = NewSession(newFakeEngine(), nil, Config{SampleRate: testRate})
	assert.Error(t, err)
}

func TestBufferSize(t *testing.T) {
	s, err := NewSession(newFakeEngine(), &fakeSource{}, Config{SampleRate: testRate})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 6400, s.BufferSize())
	assert.Equal(t, testRate, s.SampleRate())
	assert.NotEmpty(t, s.ID())

	s2, err := NewSession(newFakeEngine(), &fakeSource{}, Config{SampleRate: 8000, BufferSeconds: 0.25})
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, 2000, s2.BufferSize())
}

func TestSpeechScenario(t *testing.T) {
	engine := newFakeEngine()
	script := [][]int16{silence()} // warm-up, discarded
	script = append(script, repeat(silence, 5)...)
	script = append(script, repeat(speech, 5)...)
	script = append(script, repeat(silence, 5)...)
	source := &fakeSource{reads: frames(script...)}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Recording, s.State())

	waitProcessed(t, engine, 15)
	assert.True(t, s.Stop())
	s.Flush()

	want := []EventKind{EventSpeechBegin}
	for i := 0; i < 5; i++ {
		want = append(want, EventPartial)
	}
	want = append(want, EventSpeechEnd)
	for i := 0; i < 5; i++ {
		want = append(want, EventPartial)
	}
	want = append(want, EventFinal)
	assert.Equal(t, want, l.Kinds())

	final := l.Last()
	require.NotNil(t, final)
	assert.Equal(t, "words 5", final.Text)

	starts, ends, processed := engine.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, 15, processed)
	assert.Equal(t, Idle, s.State())
}

func TestStopWithoutSpeechPostsNilResult(t *testing.T) {
	engine := newFakeEngine()
	source := &fakeSource{reads: frames(silence(), silence(), silence())}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	waitProcessed(t, engine, 2)

	assert.True(t, s.Stop())
	s.Flush()

	assert.Equal(t, []EventKind{EventFinal}, l.Kinds())
	assert.Nil(t, l.Last())
}

func TestDoubleStart(t *testing.T) {
	engine := newFakeEngine()
	source := &fakeSource{}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.StartListening("")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Recording, s.State())

	assert.True(t, s.Cancel())
	starts, _ := source.counts()
	assert.Equal(t, 1, starts)
	assert.False(t, s.Cancel())
	assert.False(t, s.Stop())
	s.Flush()

	assert.Empty(t, l.Kinds())
	engineStarts, engineEnds, _ := engine.counts()
	assert.Equal(t, engineStarts, engineEnds)
}

func TestStopWhenIdle(t *testing.T) {
	s, l := newTestSession(t, newFakeEngine(), &fakeSource{})
	assert.False(t, s.Stop())
	assert.False(t, s.Cancel())
	s.Flush()
	assert.Empty(t, l.Kinds())
}

func TestTimeoutAfterSilence(t *testing.T) {
	engine := newFakeEngine()
	source := &fakeSource{silent: true}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListeningTimeout("", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	waitWorker(t, s)
	s.Flush()

	assert.Equal(t, []EventKind{EventTimeout}, l.Kinds())
	assert.Equal(t, Idle, s.State())

	starts, ends, processed := engine.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, 10, processed)

	// the exited worker is still reaped by Stop
	assert.True(t, s.Stop())
	s.Flush()
	assert.Equal(t, []EventKind{EventTimeout, EventFinal}, l.Kinds())
	assert.False(t, s.Stop())
}

func TestSpeechResetsTimeout(t *testing.T) {
	engine := newFakeEngine()
	script := [][]int16{silence()}
	script = append(script, repeat(silence, 5)...)
	script = append(script, speech())
	script = append(script, repeat(silence, 9)...)
	source := &fakeSource{reads: frames(script...), silent: true}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListeningTimeout("", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	waitWorker(t, s)
	s.Flush()

	_, _, processed := engine.counts()
	assert.Equal(t, 16, processed)

	kinds := l.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, EventTimeout, kinds[len(kinds)-1])
	assert.Equal(t, 1, count(kinds, EventSpeechBegin))
	assert.Equal(t, 1, count(kinds, EventSpeechEnd))
	assert.Equal(t, 0, count(kinds, EventFinal))
}

func TestZeroTimeoutFiresImmediately(t *testing.T) {
	engine := newFakeEngine()
	s, l := newTestSession(t, engine, &fakeSource{silent: true})

	ok, err := s.StartListeningTimeout("", 0)
	require.NoError(t, err)
	require.True(t, ok)

	waitWorker(t, s)
	s.Flush()

	assert.Equal(t, []EventKind{EventTimeout}, l.Kinds())
	starts, ends, processed := engine.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, 0, processed)
}

func TestCancelPurgesPendingEvents(t *testing.T) {
	engine := newFakeEngine()
	source := &fakeSource{reads: frames(silence(), speech(), speech(), speech())}
	s, l := newTestSession(t, engine, source)

	release := make(chan struct{})
	s.dispatcher.pool.Submit(func() { <-release })

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	waitProcessed(t, engine, 3)

	assert.True(t, s.Cancel())
	close(release)
	s.Flush()

	assert.Empty(t, l.Kinds())
	starts, ends, _ := engine.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, Idle, s.State())

	// events after the cancel are delivered again
	ok, err = s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.Stop())
	s.Flush()
	assert.Equal(t, []EventKind{EventFinal}, l.Kinds())
}

func TestCancelNeverDeliversResult(t *testing.T) {
	engine := newFakeEngine()
	source := &fakeSource{reads: frames(silence(), speech(), speech())}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	waitProcessed(t, engine, 2)

	assert.True(t, s.Cancel())
	s.Flush()
	delivered := len(l.Kinds())

	time.Sleep(20 * time.Millisecond)
	s.Flush()
	assert.Len(t, l.Kinds(), delivered)
	assert.Equal(t, 0, count(l.Kinds(), EventFinal))
}

func TestRuntimeFaultNegativeRead(t *testing.T) {
	engine := newFakeEngine()
	reads := frames(silence(), speech())
	reads = append(reads, read{n: -1})
	source := &fakeSource{reads: reads}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)

	waitWorker(t, s)
	s.Flush()

	assert.Equal(t, []EventKind{EventSpeechBegin, EventPartial, EventError}, l.Kinds())
	errs := l.Errors()
	require.Len(t, errs, 1)
	var fault *FaultError
	require.ErrorAs(t, errs[0], &fault)
	assert.Equal(t, PhaseRuntime, fault.Phase)

	starts, ends, _ := engine.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, Idle, s.State())

	// a new start reaps the failed worker without a result
	ok, err = s.StartListening("")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.Cancel())
	s.Flush()
	assert.Equal(t, 0, count(l.Kinds(), EventFinal))
}

func TestRuntimeFaultReadError(t *testing.T) {
	unplugged := errors.New("device unplugged")
	engine := newFakeEngine()
	reads := frames(silence(), silence())
	reads = append(reads, read{err: unplugged})
	s, l := newTestSession(t, engine, &fakeSource{reads: reads})

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	waitWorker(t, s)
	s.Flush()

	errs := l.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], unplugged)
}

func TestStartupFaults(t *testing.T) {
	tests := []struct {
		name   string
		source *fakeSource
		engine func() *fakeEngine
	}{
		{
			name:   "source start fails",
			source: &fakeSource{startErr: errors.New("device busy")},
		},
		{
			name:   "source not recording",
			source: &fakeSource{noRecord: true},
		},
		{
			name:   "warm-up read fails",
			source: &fakeSource{reads: []read{{err: errors.New("overrun")}}},
		},
		{
			name:   "start utterance fails",
			source: &fakeSource{},
			engine: func() *fakeEngine {
				e := newFakeEngine()
				e.startErr = errors.New("no model")
				return e
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			if tt.engine != nil {
				engine = tt.engine()
			}
			s, l := newTestSession(t, engine, tt.source)

			ok, err := s.StartListening("")
			require.NoError(t, err)
			require.True(t, ok)

			waitWorker(t, s)
			s.Flush()

			assert.Equal(t, []EventKind{EventError}, l.Kinds())
			var fault *FaultError
			require.ErrorAs(t, l.Errors()[0], &fault)
			assert.Equal(t, PhaseStartup, fault.Phase)

			starts, ends, processed := engine.counts()
			assert.Equal(t, 0, starts)
			assert.Equal(t, 0, ends)
			assert.Equal(t, 0, processed)

			_, stops := tt.source.counts()
			assert.GreaterOrEqual(t, stops, 1)
			assert.Equal(t, Idle, s.State())
		})
	}
}

func TestEndOfInput(t *testing.T) {
	engine := newFakeEngine()
	source := &fakeSource{reads: frames(silence(), speech(), speech()), eof: true}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListeningTimeout("", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	waitWorker(t, s)
	s.Flush()
	assert.Equal(t, []EventKind{EventSpeechBegin, EventPartial, EventPartial}, l.Kinds())

	assert.True(t, s.Stop())
	s.Flush()
	assert.Equal(t, EventFinal, l.Kinds()[3])
	assert.Equal(t, "words 2", l.Last().Text)

	starts, ends, _ := engine.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestWorkerPanicBecomesError(t *testing.T) {
	engine := newFakeEngine()
	engine.panicAt = 2
	source := &fakeSource{reads: frames(silence(), speech(), speech(), speech())}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)

	waitWorker(t, s)
	s.Flush()

	kinds := l.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, EventError, kinds[len(kinds)-1])
	assert.ErrorContains(t, l.Errors()[0], "decoder exploded")

	starts, ends, _ := engine.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.False(t, source.IsRecording())
}

func TestSpeechEventsAlternate(t *testing.T) {
	pattern := "SSxSxxSSSxSxxxSxS"
	script := [][]int16{silence()}
	for _, c := range pattern {
		if c == 'S' {
			script = append(script, speech())
		} else {
			script = append(script, silence())
		}
	}
	engine := newFakeEngine()
	s, l := newTestSession(t, engine, &fakeSource{reads: frames(script...), eof: true})

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	waitWorker(t, s)
	assert.True(t, s.Stop())
	s.Flush()

	var boundaries []EventKind
	for _, k := range l.Kinds() {
		if k == EventSpeechBegin || k == EventSpeechEnd {
			boundaries = append(boundaries, k)
		}
	}
	require.NotEmpty(t, boundaries)
	for i, k := range boundaries {
		if i%2 == 0 {
			assert.Equal(t, EventSpeechBegin, k, "boundary %d", i)
		} else {
			assert.Equal(t, EventSpeechEnd, k, "boundary %d", i)
		}
	}
	assert.Equal(t, 6, count(boundaries, EventSpeechBegin))
}

func TestSetSearch(t *testing.T) {
	engine := newFakeEngine()
	engine.searches["digits"] = true
	source := &fakeSource{}
	s, _ := newTestSession(t, engine, source)

	assert.Equal(t, "", s.SearchName())
	require.NoError(t, s.SetSearch("digits"))
	assert.Equal(t, "digits", s.SearchName())

	err := s.SetSearch("nope")
	assert.ErrorIs(t, err, stt.ErrUnknownSearch)
	assert.Equal(t, "digits", s.SearchName())

	ok, err := s.StartListening("nope")
	assert.ErrorIs(t, err, stt.ErrUnknownSearch)
	assert.False(t, ok)
	assert.Equal(t, Idle, s.State())
	starts, _ := source.counts()
	assert.Equal(t, 0, starts)

	ok, err = s.StartListening(stt.DefaultSearch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stt.DefaultSearch, s.SearchName())

	assert.ErrorIs(t, s.SetSearch("digits"), ErrListening)
	assert.Equal(t, stt.DefaultSearch, engine.Search())

	assert.True(t, s.Stop())
	require.NoError(t, s.SetSearch("digits"))
}

func TestSearchInstallers(t *testing.T) {
	engine := newFakeEngine()
	s, _ := newTestSession(t, engine, &fakeSource{})

	require.NoError(t, s.AddKeyphraseSearch("wake", "oh mighty computer"))
	require.NoError(t, s.AddKeywordSearch("kws", "keywords.list"))
	require.NoError(t, s.AddGrammarSearch("menu", "menu.gram"))
	require.NoError(t, s.AddNgramSearch("forecast", "weather.lm"))
	require.NoError(t, s.AddAllphoneSearch("phones", "en-phone.lm"))

	fsg := stt.NewFsgModel("yesno", 2)
	fsg.TransAdd(0, 1, 1, "yes")
	fsg.TransAdd(0, 1, 1, "no")
	require.NoError(t, s.AddFsgSearch("yesno", fsg))

	assert.Error(t, s.AddKeyphraseSearch("empty", ""))

	for _, name := range []string{"wake", "kws", "menu", "forecast", "phones", "yesno"} {
		assert.NoError(t, s.SetSearch(name), name)
	}

	bare, _ := newTestSession(t, bareEngine{newFakeEngine()}, &fakeSource{})
	assert.ErrorIs(t, bare.AddKeyphraseSearch("wake", "hello"), stt.ErrUnsupportedSearch)
}

func TestListenerAddedAndRemovedGetsNothing(t *testing.T) {
	engine := newFakeEngine()
	source := &fakeSource{reads: frames(silence(), speech(), silence())}
	s, l := newTestSession(t, engine, source)

	removed := &recordingListener{}
	s.AddListener(removed)
	s.AddListener(removed)
	s.RemoveListener(removed)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	waitProcessed(t, engine, 2)
	assert.True(t, s.Stop())
	s.Flush()

	assert.NotEmpty(t, l.Kinds())
	assert.Empty(t, removed.Kinds())
}

func TestEventIDs(t *testing.T) {
	engine := newFakeEngine()
	source := &fakeSource{reads: frames(silence(), speech())}
	s, _ := newTestSession(t, engine, source)

	var (
		mu     sync.Mutex
		events []Event
	)
	s.AddListener(NewEventHandler(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}))

	for i := 0; i < 2; i++ {
		ok, err := s.StartListening("")
		require.NoError(t, err)
		require.True(t, ok)
		if i == 0 {
			waitProcessed(t, engine, 1)
		}
		assert.True(t, s.Stop())
	}
	s.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(events), 2)

	first, last := events[0], events[len(events)-1]
	assert.Equal(t, s.ID(), first.SessionID)
	assert.Equal(t, s.ID(), last.SessionID)
	assert.NotEmpty(t, first.UtteranceID)
	assert.NotEqual(t, first.UtteranceID, last.UtteranceID)
	assert.Equal(t, EventFinal, last.Kind)
	assert.False(t, last.Time.IsZero())
}

func TestRawLogDirRecordsUtterance(t *testing.T) {
	dir := t.TempDir()
	engine := newFakeEngine()
	source := &fakeSource{reads: frames(silence(), speech(), speech(), silence()), eof: true}

	s, err := NewSession(engine, source, Config{SampleRate: testRate, RawLogDir: dir})
	require.NoError(t, err)
	defer s.Close()

	var utterance string
	var mu sync.Mutex
	s.AddListener(NewEventHandler(func(ev Event) {
		mu.Lock()
		utterance = ev.UtteranceID
		mu.Unlock()
	}))

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)
	waitWorker(t, s)
	s.Flush()

	mu.Lock()
	path := filepath.Join(dir, utterance+".wav")
	mu.Unlock()
	_, err = os.Stat(path)
	require.NoError(t, err)

	src := audio.NewWAVSource(audio.SourceConfig{SampleRate: testRate, File: path})
	require.NoError(t, src.Start())
	defer src.Close()

	total := 0
	buf := make([]int16, 1024)
	for {
		n, err := src.Read(buf)
		if err != nil {
			break
		}
		total += n
	}
	assert.Equal(t, 3*frameSize, total)
}

func TestWaitWithoutWorker(t *testing.T) {
	s, _ := newTestSession(t, newFakeEngine(), &fakeSource{})
	assert.NoError(t, s.Wait(context.Background()))

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
	assert.True(t, s.Cancel())
}

func TestStopDrainsTailAudio(t *testing.T) {
	engine := newFakeEngine()
	script := [][]int16{silence()}
	script = append(script, repeat(speech, 3)...)
	source := &fakeSource{reads: frames(script...), tail: speech()}
	s, l := newTestSession(t, engine, source)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)

	waitProcessed(t, engine, 3)
	_, _, before := engine.counts()
	require.True(t, s.Stop())
	s.Flush()

	_, _, after := engine.counts()
	assert.Equal(t, before+1, after)

	final := l.Last()
	require.NotNil(t, final)
	assert.Equal(t, "words 4", final.Text)
	assert.Equal(t, EventFinal, l.Kinds()[len(l.Kinds())-1])
}

func TestCloseRacingStartListening(t *testing.T) {
	for i := 0; i < 50; i++ {
		source := &fakeSource{}
		s, err := NewSession(newFakeEngine(), source, Config{SampleRate: testRate})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.StartListening("")
			if err != nil {
				assert.ErrorIs(t, err, ErrClosed)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Close())
		}()
		wg.Wait()

		assert.Equal(t, Idle, s.State())
		waitWorker(t, s)
		starts, stops := source.counts()
		assert.Equal(t, starts, stops, "iteration %d", i)
	}
}

func TestClose(t *testing.T) {
	source := &fakeSource{}
	s, err := NewSession(newFakeEngine(), source, Config{SampleRate: testRate})
	require.NoError(t, err)

	ok, err := s.StartListening("")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, source.closed)

	ok, err = s.StartListening("")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, ok)
}
