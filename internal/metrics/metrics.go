// Package metrics exposes recognition activity as Prometheus metrics.
package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/emmett/sphinxvox/internal/recognizer"
	"github.com/emmett/sphinxvox/internal/stt"
)

const namespace = "sphinxvox"

// Collector is a recognizer listener that records event metrics
type Collector struct {
	events      *prometheus.CounterVec
	faults      *prometheus.CounterVec
	inSpeech    prometheus.Gauge
	resultWords prometheus.Histogram
	confidence  prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Recognition events delivered, by kind.",
		}, []string{"kind"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Recognition faults, by phase.",
		}, []string{"phase"}),
		inSpeech: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_speech",
			Help:      "1 while the decoder reports speech.",
		}),
		resultWords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "result_words",
			Help:      "Words per final result.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_result_confidence",
			Help:      "Confidence of the most recent final result, when the engine reports one.",
		}),
	}

	for _, col := range []prometheus.Collector{c.events, c.faults, c.inSpeech, c.resultWords, c.confidence} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OnEvent implements recognizer.EventListener
func (c *Collector) OnEvent(ev recognizer.Event) {
	c.events.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case recognizer.EventSpeechBegin:
		c.inSpeech.Set(1)
	case recognizer.EventSpeechEnd, recognizer.EventTimeout:
		c.inSpeech.Set(0)
	case recognizer.EventFinal:
		c.inSpeech.Set(0)
		c.resultWords.Observe(float64(len(strings.Fields(ev.Text()))))
		if ev.Hypothesis != nil && ev.Hypothesis.Confidence > 0 {
			c.confidence.Set(ev.Hypothesis.Confidence)
		}
	case recognizer.EventError:
		c.inSpeech.Set(0)
		phase := "unknown"
		var fault *recognizer.FaultError
		if errors.As(ev.Err, &fault) {
			phase = fault.Phase
		}
		c.faults.WithLabelValues(phase).Inc()
	}
}

func (c *Collector) OnBeginningOfSpeech()            {}
func (c *Collector) OnEndOfSpeech()                  {}
func (c *Collector) OnPartialResult(*stt.Hypothesis) {}
func (c *Collector) OnResult(*stt.Hypothesis)        {}
func (c *Collector) OnTimeout()                      {}
func (c *Collector) OnError(error)                   {}
