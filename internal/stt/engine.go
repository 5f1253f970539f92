package stt

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidSampleRate is returned when the configured rate is not a positive whole number
	ErrInvalidSampleRate = errors.New("sample rate must be a positive whole number")

	// ErrUnsupportedSearch is returned by engines that cannot install a search type
	ErrUnsupportedSearch = errors.New("search type not supported by engine")

	// ErrUnknownSearch is returned when selecting a search that was never installed
	ErrUnknownSearch = errors.New("unknown search")

	// ErrNoUtterance is returned when feeding audio outside StartUtt/EndUtt
	ErrNoUtterance = errors.New("no utterance in progress")
)

// DefaultSearch is the search backed by the engine's main language model
const DefaultSearch = "default"

// Hypothesis is the decoder's current best guess for an utterance
type Hypothesis struct {
	// Text is the recognized text
	Text string

	// Score is the path score of the hypothesis (engine specific scale)
	Score int32

	// Prob is the posterior probability when the engine reports one
	Prob int32

	// Confidence is the mean word confidence (0.0 to 1.0) when available
	Confidence float64
}

// Engine is the boundary to a speech decoder.
// The recognition worker is the only caller of the utterance methods.
type Engine interface {
	// StartUtt begins a new utterance
	StartUtt() error

	// ProcessRaw feeds 16-bit mono samples into the current utterance
	ProcessRaw(samples []int16) error

	// EndUtt closes the current utterance
	EndUtt() error

	// Hyp returns the current hypothesis, or nil if there is none yet
	Hyp() *Hypothesis

	// InSpeech reports the VAD state after the last ProcessRaw
	InSpeech() bool

	// SetSearch selects the search used by the next utterance
	SetSearch(name string) error

	// Search returns the active search name, or "" if none was selected
	Search() string

	// Close releases native resources
	Close() error
}

// SearchInstaller is implemented by engines that accept named searches.
// Every method fails with a configuration error, never at decode time.
type SearchInstaller interface {
	AddFsgSearch(name string, fsg *FsgModel) error
	AddGrammarSearch(name, jsgfPath string) error
	AddNgramSearch(name, lmPath string) error
	AddKeyphraseSearch(name, phrase string) error
	AddKeywordSearch(name, kwsPath string) error
	AddAllphoneSearch(name, path string) error
}

// IntegralRate converts a configured float rate into samples per second
func IntegralRate(rate float64) (int, error) {
	if rate <= 0 || math.IsInf(rate, 0) || rate != math.Trunc(rate) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidSampleRate, rate)
	}
	return int(rate), nil
}
