package audio

import (
	"math"
	"time"
)

// VADConfig holds configuration for Voice Activity Detection.
// Durations are measured in samples at SampleRate, so the result does not
// depend on how many samples each Read returns.
type VADConfig struct {
	// EnergyThreshold is the minimum RMS level to consider as speech
	// Typical values: 0.001 to 0.1 (lower = more sensitive)
	EnergyThreshold float64

	// SampleRate converts the durations below into sample counts
	SampleRate int

	// SpeechDuration is how much consecutive speech starts an utterance
	SpeechDuration time.Duration

	// SilenceDuration is how much consecutive silence ends it
	SilenceDuration time.Duration
}

// DefaultVADConfig returns a default VAD configuration at 16kHz
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnergyThreshold: 0.01, // Moderate sensitivity
		SampleRate:      16000,
		SpeechDuration:  100 * time.Millisecond,
		SilenceDuration: 800 * time.Millisecond,
	}
}

func (c VADConfig) samples(d time.Duration) int {
	n := int(d * time.Duration(c.SampleRate) / time.Second)
	if n < 1 {
		return 1
	}
	return n
}

// VAD (Voice Activity Detector) detects speech vs silence in audio
type VAD struct {
	config         VADConfig
	speechNeeded   int
	silenceNeeded  int
	silenceSamples int
	speechSamples  int
	isSpeaking     bool
}

// NewVAD creates a new voice activity detector. Durations shorter than one
// sample are rounded up, so a single frame can start or end speech.
func NewVAD(config VADConfig) *VAD {
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultVADConfig().SampleRate
	}
	return &VAD{
		config:        config,
		speechNeeded:  config.samples(config.SpeechDuration),
		silenceNeeded: config.samples(config.SilenceDuration),
	}
}

// ProcessFrame processes an audio frame of any length and returns whether speech is active
// Returns: (isSpeechActive, speechStarted, speechEnded)
func (v *VAD) ProcessFrame(samples []int16) (bool, bool, bool) {
	if len(samples) == 0 {
		return v.isSpeaking, false, false
	}
	frameHasSpeech := Energy(samples) > v.config.EnergyThreshold

	speechStarted := false
	speechEnded := false

	if frameHasSpeech {
		v.speechSamples += len(samples)
		v.silenceSamples = 0

		if !v.isSpeaking && v.speechSamples >= v.speechNeeded {
			v.isSpeaking = true
			speechStarted = true
		}
	} else {
		v.silenceSamples += len(samples)
		v.speechSamples = 0

		if v.isSpeaking && v.silenceSamples >= v.silenceNeeded {
			v.isSpeaking = false
			speechEnded = true
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// IsSpeaking returns whether speech is currently active
func (v *VAD) IsSpeaking() bool {
	return v.isSpeaking
}

// Reset resets the VAD state
func (v *VAD) Reset() {
	v.silenceSamples = 0
	v.speechSamples = 0
	v.isSpeaking = false
}

// Energy returns the RMS of a frame, normalized to 0.0..1.0
func Energy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		normalized := float64(s) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(len(samples)))
}
