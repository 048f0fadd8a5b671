package realtime

import (
	"math"
	"time"

	"interview-coach/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Landmark is one point of the face mesh in normalized image coordinates
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Blendshapes maps a named blendshape coefficient to its score in [0,1]
type Blendshapes map[string]float64

// TranscriptEvent is one incremental result from a speech-to-text stream
type TranscriptEvent struct {
	IsFinal     bool   `json:"is_final"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Clock returns the current time. Analyzers take one so tests can drive time.
type Clock func() time.Time

type analyzerOptions struct {
	clock Clock
}

// Option configures an analyzer
type Option func(*analyzerOptions)

// WithClock overrides the analyzer's time source
func WithClock(clock Clock) Option {
	return func(o *analyzerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func applyOptions(opts []Option) analyzerOptions {
	o := analyzerOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func componentLogger(logger *logrus.Logger, name string) *logrus.Entry {
	if logger == nil {
		logger = logrus.New()
	}
	return logger.WithField("component", name)
}

// absorb logs and counts an input the analyzer refused
func absorb(logger *logrus.Entry, analyzer string, err error) {
	logger.WithError(err).Debug("Ignoring malformed input, keeping last known output")
	metrics.RecordMalformedInput(analyzer)
}

func distance2D(a, b Landmark) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

func clamp01(value float64) float64 {
	return math.Max(0, math.Min(1, value))
}
