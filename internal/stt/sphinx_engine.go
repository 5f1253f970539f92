package stt

import (
	"fmt"
	"sync"

	"github.com/xlab/pocketsphinx-go/pocketsphinx"
	"github.com/xlab/pocketsphinx-go/sphinx"
)

// SphinxEngine implements Engine and SearchInstaller on CMU Pocketsphinx
type SphinxEngine struct {
	mu     sync.Mutex
	dec    *sphinx.Decoder
	inUtt  bool
	search string
}

// NewSphinxEngine builds a decoder from opts.
// The raw log dir is left out; utterance audio is recorded by the session.
func NewSphinxEngine(opts *Options) (*SphinxEngine, error) {
	rate, err := opts.SampleRate()
	if err != nil {
		return nil, err
	}

	cfg := sphinx.NewConfig(sphinx.SampleRateOption(float32(rate)))
	var applyErr error
	opts.Each(func(key string, value any) {
		switch key {
		case KeySampleRate, KeyRawLogDir:
			return
		}
		switch v := value.(type) {
		case string:
			cfg.SetString(sphinx.String(key), sphinx.String(v))
		case float64:
			cfg.SetFloat(sphinx.String(key), v)
		case int64:
			cfg.SetInt(sphinx.String(key), v)
		case bool:
			cfg.SetBool(sphinx.String(key), v)
		default:
			applyErr = fmt.Errorf("sphinx: option %s has unsupported type %T", key, value)
		}
	})
	if applyErr != nil {
		return nil, applyErr
	}

	dec, err := sphinx.NewDecoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pocketsphinx decoder: %w", err)
	}

	e := &SphinxEngine{dec: dec}
	if opts.Has(KeyLanguageModel) {
		e.search = DefaultSearch
	}
	return e, nil
}

func (e *SphinxEngine) StartUtt() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dec.StartUtt() {
		return fmt.Errorf("sphinx: failed to start utterance")
	}
	e.inUtt = true
	return nil
}

func (e *SphinxEngine) ProcessRaw(samples []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inUtt {
		return ErrNoUtterance
	}
	if _, ok := e.dec.ProcessRaw(samples, false, false); !ok {
		return fmt.Errorf("sphinx: failed to process %d samples", len(samples))
	}
	return nil
}

func (e *SphinxEngine) EndUtt() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inUtt {
		return ErrNoUtterance
	}
	e.inUtt = false
	if !e.dec.EndUtt() {
		return fmt.Errorf("sphinx: failed to end utterance")
	}
	return nil
}

func (e *SphinxEngine) Hyp() *Hypothesis {
	e.mu.Lock()
	defer e.mu.Unlock()

	text, score := e.dec.Hypothesis()
	if text == "" {
		return nil
	}
	return &Hypothesis{Text: text, Score: score}
}

func (e *SphinxEngine) InSpeech() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dec.IsInSpeech()
}

func (e *SphinxEngine) SetSearch(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pocketsphinx.SetSearch(e.dec.Decoder(), cstr(name)) < 0 {
		return fmt.Errorf("sphinx: %w: %s", ErrUnknownSearch, name)
	}
	e.search = name
	return nil
}

func (e *SphinxEngine) Search() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.search
}

func (e *SphinxEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dec != nil {
		e.dec.Destroy()
		e.dec = nil
	}
	return nil
}

// AddFsgSearch installs an in-code grammar by rendering it as JSGF
func (e *SphinxEngine) AddFsgSearch(name string, fsg *FsgModel) error {
	jsgf, err := fsg.JSGF()
	if err != nil {
		return err
	}
	return e.install("fsg", name, func(ps *pocketsphinx.Decoder) int32 {
		return pocketsphinx.SetJsgfString(ps, cstr(name), cstr(jsgf))
	})
}

func (e *SphinxEngine) AddGrammarSearch(name, jsgfPath string) error {
	return e.install("jsgf "+jsgfPath, name, func(ps *pocketsphinx.Decoder) int32 {
		return pocketsphinx.SetJsgfFile(ps, cstr(name), cstr(jsgfPath))
	})
}

func (e *SphinxEngine) AddNgramSearch(name, lmPath string) error {
	return e.install("n-gram "+lmPath, name, func(ps *pocketsphinx.Decoder) int32 {
		return pocketsphinx.SetLmFile(ps, cstr(name), cstr(lmPath))
	})
}

func (e *SphinxEngine) AddKeyphraseSearch(name, phrase string) error {
	return e.install("keyphrase", name, func(ps *pocketsphinx.Decoder) int32 {
		return pocketsphinx.SetKeyphrase(ps, cstr(name), cstr(phrase))
	})
}

func (e *SphinxEngine) AddKeywordSearch(name, kwsPath string) error {
	return e.install("keyword file "+kwsPath, name, func(ps *pocketsphinx.Decoder) int32 {
		return pocketsphinx.SetKws(ps, cstr(name), cstr(kwsPath))
	})
}

func (e *SphinxEngine) AddAllphoneSearch(name, path string) error {
	return e.install("allphone "+path, name, func(ps *pocketsphinx.Decoder) int32 {
		return pocketsphinx.SetAllphoneFile(ps, cstr(name), cstr(path))
	})
}

func (e *SphinxEngine) install(what, name string, fn func(ps *pocketsphinx.Decoder) int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rv := fn(e.dec.Decoder()); rv < 0 {
		return fmt.Errorf("sphinx: failed to add %s search %q (code %d)", what, name, rv)
	}
	return nil
}

// cstr terminates a Go string for the raw C bindings
func cstr(s string) string {
	return s + "\x00"
}
