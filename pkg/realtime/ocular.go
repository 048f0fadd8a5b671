package realtime

import (
	"fmt"
	"time"

	"interview-coach/pkg/errors"

	"github.com/sirupsen/logrus"
)

// Face mesh indices for the eye-aspect-ratio of one eye
const (
	upperLidIndex   = 159
	lowerLidIndex   = 145
	outerEyeIndex   = 33
	innerEyeIndex   = 133
	maxOcularIndex  = upperLidIndex
	blinkCloseEAR   = 0.18
	blinkOpenEAR    = 0.20
	blinkDebounce   = 300 * time.Millisecond
	ocularComponent = "ocular"
)

// OcularResult is the blink state after one frame
type OcularResult struct {
	BlinkCount int     `json:"blink_count"`
	EAR        float64 `json:"ear"`
}

// OcularAnalyzer counts debounced blinks from the eye-aspect-ratio
type OcularAnalyzer struct {
	logger *logrus.Entry
	clock  Clock

	blinkCount int
	lastBlink  time.Time
	closing    bool
	last       OcularResult
	valid      bool
}

// NewOcularAnalyzer creates a blink detector
func NewOcularAnalyzer(logger *logrus.Logger, opts ...Option) *OcularAnalyzer {
	o := applyOptions(opts)
	return &OcularAnalyzer{
		logger: componentLogger(logger, "ocular-analyzer"),
		clock:  o.clock,
	}
}

// EyeAspectRatio returns lid distance over eye width
func EyeAspectRatio(landmarks []Landmark) (float64, error) {
	if len(landmarks) <= maxOcularIndex {
		return 0, errors.NewMalformedInput(ocularComponent, fmt.Sprintf("need %d landmarks, got %d", maxOcularIndex+1, len(landmarks)))
	}

	vertical := distance2D(landmarks[upperLidIndex], landmarks[lowerLidIndex])
	horizontal := distance2D(landmarks[outerEyeIndex], landmarks[innerEyeIndex])
	if horizontal == 0 {
		return 0, errors.NewMalformedInput(ocularComponent, "eye corners coincide")
	}

	return vertical / horizontal, nil
}

// Update feeds one frame of landmarks. Malformed frames leave the state untouched.
func (o *OcularAnalyzer) Update(landmarks []Landmark) OcularResult {
	ear, err := EyeAspectRatio(landmarks)
	if err != nil {
		absorb(o.logger, ocularComponent, err)
		return o.last
	}
	return o.observe(ear)
}

func (o *OcularAnalyzer) observe(ear float64) OcularResult {
	switch {
	case ear < blinkCloseEAR:
		o.closing = true
	case o.closing && ear > blinkOpenEAR:
		now := o.clock()
		if o.lastBlink.IsZero() || now.Sub(o.lastBlink) > blinkDebounce {
			o.blinkCount++
			o.lastBlink = now
		}
		o.closing = false
	}

	o.last = OcularResult{BlinkCount: o.blinkCount, EAR: ear}
	o.valid = true
	return o.last
}

// HasResult reports whether a frame has been measured since the last reset
func (o *OcularAnalyzer) HasResult() bool {
	return o.valid
}

// BlinkCount returns the blinks registered since the last reset
func (o *OcularAnalyzer) BlinkCount() int {
	return o.blinkCount
}

// Reset clears the blink count and the latch
func (o *OcularAnalyzer) Reset() {
	o.blinkCount = 0
	o.lastBlink = time.Time{}
	o.closing = false
	o.last = OcularResult{}
	o.valid = false
}
