package stt

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
	json "github.com/goccy/go-json"

	"github.com/emmett/sphinxvox/internal/audio"
)

// VoskEngine implements Engine on top of a Vosk model.
// Vosk has no VAD of its own, so InSpeech comes from an energy VAD.
type VoskEngine struct {
	mu         sync.Mutex
	model      *vosk.VoskModel
	recognizer *vosk.VoskRecognizer
	sampleRate float64

	// grammars maps a search name to its Vosk grammar; "" means the full model
	grammars map[string]string
	search   string

	vad      *audio.VAD
	inSpeech bool

	inUtt      bool
	committed  []string
	partial    string
	confidence float64
}

// VoskResult represents the JSON result from Vosk
type VoskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Conf  float64 `json:"conf"`
		End   float64 `json:"end"`
		Start float64 `json:"start"`
		Word  string  `json:"word"`
	} `json:"result,omitempty"`
	Partial string `json:"partial,omitempty"`
}

// NewVoskEngine loads the model named by the -hmm option
func NewVoskEngine(opts *Options, vadConfig audio.VADConfig) (*VoskEngine, error) {
	modelPath, ok := opts.String(KeyAcousticModel)
	if !ok || modelPath == "" {
		return nil, fmt.Errorf("vosk: option %s (model directory) is required", KeyAcousticModel)
	}
	rate, err := opts.SampleRate()
	if err != nil {
		return nil, err
	}

	vadConfig.SampleRate = rate
	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model from %s: %w", modelPath, err)
	}
	if model == nil {
		return nil, fmt.Errorf("failed to load model from %s: model returned nil", modelPath)
	}

	return &VoskEngine{
		model:      model,
		sampleRate: float64(rate),
		grammars:   map[string]string{DefaultSearch: ""},
		vad:        audio.NewVAD(vadConfig),
	}, nil
}

// StartUtt creates a recognizer for the active search
func (v *VoskEngine) StartUtt() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.inUtt {
		return fmt.Errorf("vosk: utterance already started")
	}

	var (
		rec *vosk.VoskRecognizer
		err error
	)
	if grammar := v.grammars[v.search]; grammar != "" {
		rec, err = vosk.NewRecognizerGrm(v.model, v.sampleRate, grammar)
	} else {
		rec, err = vosk.NewRecognizer(v.model, v.sampleRate)
	}
	if err != nil {
		return fmt.Errorf("failed to create recognizer: %w", err)
	}
	rec.SetWords(1)

	v.recognizer = rec
	v.vad.Reset()
	v.inSpeech = false
	v.committed = v.committed[:0]
	v.partial = ""
	v.confidence = 0
	v.inUtt = true
	return nil
}

// ProcessRaw feeds samples to the recognizer and updates the VAD state
func (v *VoskEngine) ProcessRaw(samples []int16) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.inUtt {
		return ErrNoUtterance
	}

	v.inSpeech, _, _ = v.vad.ProcessFrame(samples)

	if v.recognizer.AcceptWaveform(samplesToBytes(samples)) > 0 {
		return v.commit(v.recognizer.Result())
	}

	var partial VoskResult
	if err := json.Unmarshal([]byte(v.recognizer.PartialResult()), &partial); err != nil {
		return fmt.Errorf("failed to parse partial result: %w", err)
	}
	v.partial = partial.Partial
	return nil
}

// commit appends a completed phrase to the utterance text
func (v *VoskEngine) commit(resultJSON string) error {
	var result VoskResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}
	if result.Text != "" {
		v.committed = append(v.committed, result.Text)
		v.confidence = calculateAverageConfidence(result)
	}
	v.partial = ""
	return nil
}

// EndUtt flushes the recognizer and releases it
func (v *VoskEngine) EndUtt() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.inUtt {
		return ErrNoUtterance
	}

	err := v.commit(v.recognizer.FinalResult())
	v.recognizer.Free()
	v.recognizer = nil
	v.inUtt = false
	return err
}

// Hyp returns committed phrases plus the running partial
func (v *VoskEngine) Hyp() *Hypothesis {
	v.mu.Lock()
	defer v.mu.Unlock()

	parts := append([]string(nil), v.committed...)
	if v.partial != "" {
		parts = append(parts, v.partial)
	}
	if len(parts) == 0 {
		return nil
	}
	return &Hypothesis{Text: strings.Join(parts, " "), Confidence: v.confidence}
}

func (v *VoskEngine) InSpeech() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inSpeech
}

// SetSearch selects a search; it applies from the next StartUtt
func (v *VoskEngine) SetSearch(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.grammars[name]; !ok {
		return fmt.Errorf("vosk: %w: %s", ErrUnknownSearch, name)
	}
	v.search = name
	return nil
}

func (v *VoskEngine) Search() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.search
}

// Close releases resources
func (v *VoskEngine) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.recognizer != nil {
		v.recognizer.Free()
		v.recognizer = nil
	}
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
	return nil
}

// AddKeyphraseSearch restricts recognition to one phrase
func (v *VoskEngine) AddKeyphraseSearch(name, phrase string) error {
	return v.addGrammar(name, []string{strings.ToLower(strings.TrimSpace(phrase))})
}

// AddKeywordSearch restricts recognition to the phrases of a keyword file
func (v *VoskEngine) AddKeywordSearch(name, kwsPath string) error {
	phrases, err := ReadKeywordFile(kwsPath)
	if err != nil {
		return err
	}
	return v.addGrammar(name, phrases)
}

// AddFsgSearch restricts recognition to the grammar's vocabulary
func (v *VoskEngine) AddFsgSearch(name string, fsg *FsgModel) error {
	if err := fsg.Validate(); err != nil {
		return err
	}
	return v.addGrammar(name, fsg.Words())
}

func (v *VoskEngine) AddGrammarSearch(name, jsgfPath string) error {
	return fmt.Errorf("vosk: %w: jsgf grammar %s", ErrUnsupportedSearch, jsgfPath)
}

func (v *VoskEngine) AddNgramSearch(name, lmPath string) error {
	return fmt.Errorf("vosk: %w: n-gram model %s", ErrUnsupportedSearch, lmPath)
}

func (v *VoskEngine) AddAllphoneSearch(name, path string) error {
	return fmt.Errorf("vosk: %w: allphone model %s", ErrUnsupportedSearch, path)
}

func (v *VoskEngine) addGrammar(name string, phrases []string) error {
	grammar, err := voskGrammar(phrases)
	if err != nil {
		return fmt.Errorf("vosk: search %s: %w", name, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.grammars[name] = grammar
	return nil
}

// voskGrammar renders phrases as the JSON list Vosk expects, plus [unk]
func voskGrammar(phrases []string) (string, error) {
	var list []string
	for _, p := range phrases {
		if p != "" {
			list = append(list, p)
		}
	}
	if len(list) == 0 {
		return "", fmt.Errorf("empty phrase list")
	}
	list = append(list, "[unk]")

	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadKeywordFile reads one phrase per line, dropping a trailing /threshold/
func ReadKeywordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword file: %w", err)
	}
	defer f.Close()

	var phrases []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "/"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line != "" {
			phrases = append(phrases, strings.ToLower(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}
	return phrases, nil
}

func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// calculateAverageConfidence calculates the average confidence from word results
func calculateAverageConfidence(result VoskResult) float64 {
	if len(result.Result) == 0 {
		return 0.0
	}

	var sum float64
	for _, word := range result.Result {
		sum += word.Conf
	}

	return sum / float64(len(result.Result))
}
