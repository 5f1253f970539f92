package stt

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Well-known decoder option keys
const (
	KeyAcousticModel    = "-hmm"
	KeyDictionary       = "-dict"
	KeyLanguageModel    = "-lm"
	KeySampleRate       = "-samprate"
	KeyRawLogDir        = "-rawlogdir"
	KeyKeywordThreshold = "-kws_threshold"
)

// Options is a key-value decoder setup.
// Values are bool, int64, float64 or string; insertion order is kept.
type Options struct {
	values map[string]any
	keys   []string
}

// NewOptions returns an empty option set
func NewOptions() *Options {
	return &Options{values: make(map[string]any)}
}

// DefaultOptions returns the options every engine starts from
func DefaultOptions() *Options {
	return NewOptions().SetSampleRate(16000)
}

// LoadOptionsFile reads a pocketsphinx style file of "-key value" lines.
// Blank lines and lines starting with # are skipped. Values stay strings.
func LoadOptionsFile(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open options file: %w", err)
	}
	defer f.Close()

	opts := DefaultOptions()
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "-") {
			return nil, fmt.Errorf("failed to parse options file %s:%d: expected \"-key value\"", path, line)
		}
		opts.SetString(fields[0], strings.Join(fields[1:], " "))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}
	return opts, nil
}

func (o *Options) set(key string, value any) *Options {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
	return o
}

// SetAcousticModel sets the acoustic model directory
func (o *Options) SetAcousticModel(dir string) *Options {
	return o.SetString(KeyAcousticModel, dir)
}

// SetDictionary sets the pronunciation dictionary
func (o *Options) SetDictionary(path string) *Options {
	return o.SetString(KeyDictionary, path)
}

// SetLanguageModel sets the default n-gram language model
func (o *Options) SetLanguageModel(path string) *Options {
	return o.SetString(KeyLanguageModel, path)
}

// SetSampleRate sets the sample rate. Stored as a float like the native config.
func (o *Options) SetSampleRate(rate int) *Options {
	return o.SetFloat(KeySampleRate, float64(rate))
}

// SetRawLogDir sets the directory that receives per-utterance audio
func (o *Options) SetRawLogDir(dir string) *Options {
	return o.SetString(KeyRawLogDir, dir)
}

// SetKeywordThreshold sets the keyword spotting threshold
func (o *Options) SetKeywordThreshold(threshold float64) *Options {
	return o.SetFloat(KeyKeywordThreshold, threshold)
}

func (o *Options) SetBoolean(key string, value bool) *Options  { return o.set(key, value) }
func (o *Options) SetInteger(key string, value int64) *Options { return o.set(key, value) }
func (o *Options) SetFloat(key string, value float64) *Options { return o.set(key, value) }
func (o *Options) SetString(key string, value string) *Options { return o.set(key, value) }

// Delete removes a key
func (o *Options) Delete(key string) *Options {
	if _, ok := o.values[key]; !ok {
		return o
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return o
}

// Has reports whether key is set
func (o *Options) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// String returns the value of key formatted as a string
func (o *Options) String(key string) (string, bool) {
	v, ok := o.values[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		if val {
			return "yes", true
		}
		return "no", true
	}
	return fmt.Sprint(v), true
}

// Float returns the value of key as a float64
func (o *Options) Float(key string) (float64, error) {
	v, ok := o.values[key]
	if !ok {
		return 0, fmt.Errorf("option %s is not set", key)
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("option %s: %w", key, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("option %s is not numeric", key)
}

// SampleRate returns the configured rate, which must be a whole number
func (o *Options) SampleRate() (int, error) {
	rate, err := o.Float(KeySampleRate)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSampleRate, err)
	}
	return IntegralRate(rate)
}

// Each calls fn for every option in insertion order
func (o *Options) Each(fn func(key string, value any)) {
	for _, k := range o.keys {
		fn(k, o.values[k])
	}
}

// Clone returns an independent copy
func (o *Options) Clone() *Options {
	c := NewOptions()
	o.Each(func(k string, v any) { c.set(k, v) })
	return c
}
