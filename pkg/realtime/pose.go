package realtime

import (
	"fmt"
	"math"

	"interview-coach/pkg/errors"

	"github.com/sirupsen/logrus"
)

const (
	noseTipIndex      = 1
	leftEyeIndex      = 33
	rightEyeIndex     = 263
	maxPoseIndex      = rightEyeIndex
	stableYawLimit    = 0.3
	stableRollLimit   = 0.2
	poseHistoryLength = 30
	poseComponent     = "pose"
)

// PoseResult is the head orientation for one frame
type PoseResult struct {
	// Yaw is |yaw| rounded to two decimals
	Yaw float64 `json:"yaw"`

	RollDegrees int  `json:"roll_degrees"`
	IsStable    bool `json:"is_stable"`
}

// PoseSample is one raw history entry, roll in radians
type PoseSample struct {
	Yaw  float64 `json:"yaw"`
	Roll float64 `json:"roll"`
}

// PoseAnalyzer classifies head stability from yaw and roll
type PoseAnalyzer struct {
	logger  *logrus.Entry
	history []PoseSample
	last    PoseResult
	valid   bool
}

// NewPoseAnalyzer creates a head stability tracker
func NewPoseAnalyzer(logger *logrus.Logger) *PoseAnalyzer {
	return &PoseAnalyzer{
		logger:  componentLogger(logger, "pose-analyzer"),
		history: make([]PoseSample, 0, poseHistoryLength),
	}
}

// HeadPose computes raw yaw and roll (radians)
func HeadPose(landmarks []Landmark) (PoseSample, error) {
	if len(landmarks) <= maxPoseIndex {
		return PoseSample{}, errors.NewMalformedInput(poseComponent, fmt.Sprintf("need %d landmarks, got %d", maxPoseIndex+1, len(landmarks)))
	}

	nose := landmarks[noseTipIndex]
	left := landmarks[leftEyeIndex]
	right := landmarks[rightEyeIndex]

	distRight := math.Abs(nose.X - right.X)
	if distRight == 0 {
		return PoseSample{}, errors.NewMalformedInput(poseComponent, "nose tip aligned with right eye corner")
	}

	return PoseSample{
		Yaw:  math.Abs(nose.X-left.X)/distRight - 1,
		Roll: math.Atan2(right.Y-left.Y, right.X-left.X),
	}, nil
}

// Update feeds one frame of landmarks. Stability is per frame, the history is not used for it.
func (p *PoseAnalyzer) Update(landmarks []Landmark) PoseResult {
	sample, err := HeadPose(landmarks)
	if err != nil {
		absorb(p.logger, poseComponent, err)
		return p.last
	}

	if len(p.history) == poseHistoryLength {
		copy(p.history, p.history[1:])
		p.history = p.history[:poseHistoryLength-1]
	}
	p.history = append(p.history, sample)

	p.last = PoseResult{
		Yaw:         roundTo(math.Abs(sample.Yaw), 2),
		RollDegrees: int(math.Round(sample.Roll * 180 / math.Pi)),
		IsStable:    math.Abs(sample.Yaw) < stableYawLimit && math.Abs(sample.Roll) < stableRollLimit,
	}
	p.valid = true
	return p.last
}

// HasResult reports whether any frame has produced a pose yet
func (p *PoseAnalyzer) HasResult() bool {
	return p.valid
}

// History returns a copy of the most recent samples, oldest first
func (p *PoseAnalyzer) History() []PoseSample {
	out := make([]PoseSample, len(p.history))
	copy(out, p.history)
	return out
}

// Reset clears the history only
func (p *PoseAnalyzer) Reset() {
	p.history = p.history[:0]
}
