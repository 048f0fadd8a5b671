package realtime

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"interview-coach/pkg/errors"

	"github.com/sirupsen/logrus"
)

// ExpressionSource tags which collaborator produced an expression input
type ExpressionSource int

const (
	// SourceBlendshapes is the on-device face mesh coefficients
	SourceBlendshapes ExpressionSource = iota
	// SourceClassifier is the slower external label classifier
	SourceClassifier
)

func (s ExpressionSource) String() string {
	switch s {
	case SourceBlendshapes:
		return "blendshapes"
	case SourceClassifier:
		return "classifier"
	default:
		return fmt.Sprintf("ExpressionSource(%d)", int(s))
	}
}

// ExpressionInput carries exactly one of the two input payloads, selected by Source
type ExpressionInput struct {
	Source        ExpressionSource
	Blendshapes   Blendshapes
	Probabilities map[string]float64
}

// BlendshapeInput wraps face mesh coefficients
func BlendshapeInput(shapes Blendshapes) ExpressionInput {
	return ExpressionInput{Source: SourceBlendshapes, Blendshapes: shapes}
}

// ClassifierInput wraps label probabilities from the external classifier
func ClassifierInput(probabilities map[string]float64) ExpressionInput {
	return ExpressionInput{Source: SourceClassifier, Probabilities: probabilities}
}

// Mood labels
const (
	MoodConfidentEngaging = "Confident & Engaging"
	MoodSurprised         = "Surprised / Caught Off-guard"
	MoodFocusedTense      = "Deeply Focused / Tense"
	MoodPensive           = "Pensive / Uncertain"
	MoodNeutralPro        = "Neutral / Professional"

	MoodConfidentPositive = "Confident/Positive"
	MoodConfusedThinking  = "Confused/Thinking"
	MoodAnxiousTense      = "Anxious/Tense"
	MoodNeutral           = "Neutral"
)

const (
	neutralExpressionScore = 0.75
	expressionSmoothing    = 0.15
	classifierInterval     = 200 * time.Millisecond
	expressionComponent    = "expression"
)

var requiredBlendshapes = []string{
	"mouthSmileLeft", "mouthSmileRight",
	"mouthPucker",
	"mouthPressLeft", "mouthPressRight",
	"browDownLeft", "browDownRight",
	"browInnerUp",
	"eyeWideLeft", "eyeWideRight",
	"jawOpen",
}

// ExpressionResult is the mood and confidence sub-score for one evaluation
type ExpressionResult struct {
	Mood   string           `json:"mood"`
	Score  float64          `json:"score"`
	Source ExpressionSource `json:"-"`

	Smile    float64 `json:"smile"`
	Tension  float64 `json:"tension"`
	Focus    float64 `json:"focus"`
	Surprise float64 `json:"surprise"`

	// Dominant is the winning classifier label, empty for blendshape input
	Dominant string `json:"dominant,omitempty"`
}

// ExpressionAnalyzer turns either input variant into a mood and score.
// The EMA state belongs to the analyzer whichever variant is fed.
type ExpressionAnalyzer struct {
	logger *logrus.Entry
	clock  Clock

	mu               sync.Mutex
	smoothed         float64
	last             ExpressionResult
	lastClassifierAt time.Time
	lastClassifier   ExpressionResult
}

// NewExpressionAnalyzer creates an expression analyzer with a neutral starting state
func NewExpressionAnalyzer(logger *logrus.Logger, opts ...Option) *ExpressionAnalyzer {
	o := applyOptions(opts)
	neutral := ExpressionResult{Mood: MoodNeutral, Score: neutralExpressionScore}
	return &ExpressionAnalyzer{
		logger:         componentLogger(logger, "expression-analyzer"),
		clock:          o.clock,
		smoothed:       neutralExpressionScore,
		last:           neutral,
		lastClassifier: ExpressionResult{Mood: MoodNeutral, Score: neutralExpressionScore, Source: SourceClassifier},
	}
}

// Analyze scores one input
func (e *ExpressionAnalyzer) Analyze(input ExpressionInput) ExpressionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch input.Source {
	case SourceClassifier:
		return e.analyzeClassifier(input.Probabilities)
	case SourceBlendshapes:
		result, err := e.analyzeBlendshapes(input.Blendshapes)
		if err != nil {
			absorb(e.logger, expressionComponent, err)
			return e.last
		}
		return result
	default:
		absorb(e.logger, expressionComponent, errors.NewMalformedInput(expressionComponent, fmt.Sprintf("unknown source %v", input.Source)))
		return e.last
	}
}

func (e *ExpressionAnalyzer) analyzeBlendshapes(shapes Blendshapes) (ExpressionResult, error) {
	var missing []string
	for _, key := range requiredBlendshapes {
		if _, ok := shapes[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return ExpressionResult{}, errors.NewMalformedInput(expressionComponent, "missing blendshapes", map[string]interface{}{
			"missing": missing,
		})
	}

	smile := (shapes["mouthSmileLeft"] + shapes["mouthSmileRight"]) / 2
	pucker := shapes["mouthPucker"]
	press := (shapes["mouthPressLeft"] + shapes["mouthPressRight"]) / 2
	browDown := (shapes["browDownLeft"] + shapes["browDownRight"]) / 2
	browInnerUp := shapes["browInnerUp"]
	eyesWide := (shapes["eyeWideLeft"] + shapes["eyeWideRight"]) / 2
	jawOpen := shapes["jawOpen"]

	raw := 0.70 + smile*0.35 - pucker*0.25 - press*0.20 - browInnerUp*0.15
	if eyesWide > 0.4 {
		raw -= 0.10
	}
	if jawOpen > 0.3 {
		raw -= 0.15
	}
	raw = clamp01(raw)

	e.smoothed = e.smoothed*(1-expressionSmoothing) + raw*expressionSmoothing

	var mood string
	switch {
	case smile > 0.4:
		mood = MoodConfidentEngaging
	case eyesWide > 0.5 || jawOpen > 0.4:
		mood = MoodSurprised
	case browDown > 0.4 || press > 0.4:
		mood = MoodFocusedTense
	case pucker > 0.3:
		mood = MoodPensive
	default:
		mood = MoodNeutralPro
	}

	e.last = ExpressionResult{
		Mood:     mood,
		Score:    e.smoothed,
		Source:   SourceBlendshapes,
		Smile:    smile,
		Tension:  (pucker + press) / 2,
		Focus:    browDown,
		Surprise: (eyesWide + jawOpen) / 2,
	}
	return e.last, nil
}

// analyzeClassifier is throttled: calls inside the window return the cached result
func (e *ExpressionAnalyzer) analyzeClassifier(probabilities map[string]float64) ExpressionResult {
	now := e.clock()
	if !e.lastClassifierAt.IsZero() && now.Sub(e.lastClassifierAt) < classifierInterval {
		return e.lastClassifier
	}
	e.lastClassifierAt = now

	result := ExpressionResult{Mood: MoodNeutral, Score: neutralExpressionScore, Source: SourceClassifier}
	if len(probabilities) == 0 {
		e.lastClassifier = result
		e.last = result
		return result
	}

	// Sorted so ties resolve the same way every run
	labels := make([]string, 0, len(probabilities))
	for label := range probabilities {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best, bestValue := "neutral", 0.0
	for _, label := range labels {
		if probabilities[label] > bestValue {
			best, bestValue = label, probabilities[label]
		}
	}

	result.Dominant = best
	result.Smile = probabilities["happy"]
	result.Surprise = probabilities["surprised"]

	switch best {
	case "happy":
		result.Mood = MoodConfidentPositive
		result.Score = 0.9 + probabilities["happy"]*0.1
	case "surprised":
		result.Mood = MoodConfusedThinking
		result.Score = 0.6 + probabilities["surprised"]*0.1
	case "angry", "sad", "fearful", "disgusted":
		result.Mood = MoodAnxiousTense
		result.Score = 0.4 + bestValue*0.2
	}

	e.lastClassifier = result
	e.last = result
	return result
}

// Smoothed returns the current EMA state
func (e *ExpressionAnalyzer) Smoothed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.smoothed
}
