package realtime

import (
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// meshWithEAR builds a 468 point mesh whose eye-aspect-ratio equals ear
func meshWithEAR(ear float64) []Landmark {
	mesh := make([]Landmark, 468)
	mesh[outerEyeIndex] = Landmark{X: 0.40, Y: 0.40}
	mesh[innerEyeIndex] = Landmark{X: 0.50, Y: 0.40}
	mesh[upperLidIndex] = Landmark{X: 0.45, Y: 0.40}
	mesh[lowerLidIndex] = Landmark{X: 0.45, Y: 0.40 + ear*0.10}
	return mesh
}

// meshWithPose places nose and eye corners for the given yaw and roll
func meshWithPose(nose, left, right Landmark) []Landmark {
	mesh := make([]Landmark, 468)
	mesh[noseTipIndex] = nose
	mesh[leftEyeIndex] = left
	mesh[rightEyeIndex] = right
	return mesh
}

func TestEyeAspectRatio(t *testing.T) {
	ear, err := EyeAspectRatio(meshWithEAR(0.25))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, ear, 1e-9)

	_, err = EyeAspectRatio(make([]Landmark, 100))
	assert.Error(t, err)
}

func TestBlinkLatchOscillationCountsOnce(t *testing.T) {
	clock := newFakeClock()
	ocular := NewOcularAnalyzer(quietLogger(), WithClock(clock.Now))

	// 0.25 / 0.15 oscillation every 30ms, all inside one 300ms window
	for i := 0; i < 10; i++ {
		ear := 0.15
		if i%2 == 1 {
			ear = 0.25
		}
		ocular.Update(meshWithEAR(ear))
		clock.Advance(30 * time.Millisecond)
	}

	assert.Equal(t, 1, ocular.BlinkCount())
}

func TestBlinkHysteresis(t *testing.T) {
	clock := newFakeClock()
	ocular := NewOcularAnalyzer(quietLogger(), WithClock(clock.Now))

	// between the thresholds nothing happens
	for _, ear := range []float64{0.19, 0.185, 0.195} {
		assert.Equal(t, 0, ocular.Update(meshWithEAR(ear)).BlinkCount)
	}

	ocular.Update(meshWithEAR(0.17))
	assert.Equal(t, 0, ocular.Update(meshWithEAR(0.19)).BlinkCount, "still latched below reopen threshold")
	assert.Equal(t, 1, ocular.Update(meshWithEAR(0.21)).BlinkCount)

	clock.Advance(400 * time.Millisecond)
	ocular.Update(meshWithEAR(0.10))
	result := ocular.Update(meshWithEAR(0.30))
	assert.Equal(t, 2, result.BlinkCount)
	assert.InDelta(t, 0.30, result.EAR, 1e-9)
}

func TestOcularMalformedKeepsLastState(t *testing.T) {
	ocular := NewOcularAnalyzer(quietLogger())
	ocular.Update(meshWithEAR(0.10))
	before := ocular.Update(meshWithEAR(0.30))

	after := ocular.Update(make([]Landmark, 12))
	assert.Equal(t, before, after)

	ocular.Reset()
	assert.Equal(t, 0, ocular.BlinkCount())
}

func TestPoseStability(t *testing.T) {
	testCases := []struct {
		name       string
		nose       Landmark
		left       Landmark
		right      Landmark
		wantYaw    float64
		wantRoll   int
		wantStable bool
	}{
		{
			name:       "Centered",
			nose:       Landmark{X: 0.5, Y: 0.5},
			left:       Landmark{X: 0.4, Y: 0.4},
			right:      Landmark{X: 0.6, Y: 0.4},
			wantYaw:    0,
			wantRoll:   0,
			wantStable: true,
		},
		{
			name:       "TurnedAway",
			nose:       Landmark{X: 0.55, Y: 0.5},
			left:       Landmark{X: 0.4, Y: 0.4},
			right:      Landmark{X: 0.6, Y: 0.4},
			wantYaw:    2,
			wantRoll:   0,
			wantStable: false,
		},
		{
			name:       "Tilted",
			nose:       Landmark{X: 0.5, Y: 0.5},
			left:       Landmark{X: 0.4, Y: 0.4},
			right:      Landmark{X: 0.6, Y: 0.5},
			wantYaw:    0,
			wantRoll:   27,
			wantStable: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pose := NewPoseAnalyzer(quietLogger())
			result := pose.Update(meshWithPose(tc.nose, tc.left, tc.right))
			assert.InDelta(t, tc.wantYaw, result.Yaw, 1e-9)
			assert.Equal(t, tc.wantRoll, result.RollDegrees)
			assert.Equal(t, tc.wantStable, result.IsStable)
		})
	}
}

func TestPoseHistoryBounded(t *testing.T) {
	pose := NewPoseAnalyzer(quietLogger())
	mesh := meshWithPose(Landmark{X: 0.5}, Landmark{X: 0.4}, Landmark{X: 0.6})
	for i := 0; i < 45; i++ {
		pose.Update(mesh)
	}
	assert.Len(t, pose.History(), poseHistoryLength)

	pose.Reset()
	assert.Empty(t, pose.History())
	assert.True(t, pose.Update(mesh).IsStable, "reset does not change the next computation")
}

func TestPoseDivisionByZeroIsMalformed(t *testing.T) {
	_, err := HeadPose(meshWithPose(Landmark{X: 0.6}, Landmark{X: 0.4}, Landmark{X: 0.6}))
	assert.Error(t, err)

	pose := NewPoseAnalyzer(quietLogger())
	stable := pose.Update(meshWithPose(Landmark{X: 0.5}, Landmark{X: 0.4}, Landmark{X: 0.6}))
	assert.Equal(t, stable, pose.Update(meshWithPose(Landmark{X: 0.6}, Landmark{X: 0.4}, Landmark{X: 0.6})))
}

func TestVocalClassification(t *testing.T) {
	vocal := NewVocalAnalyzer()

	testCases := []struct {
		volume int
		active bool
		want   VocalStatus
	}{
		{50, true, VocalSpeaking},
		{31, true, VocalSpeaking},
		{30, true, VocalLow},
		{11, true, VocalLow},
		{10, true, VocalQuiet},
		{0, true, VocalQuiet},
		{80, false, VocalOff},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, vocal.Analyze(tc.volume, tc.active).Status, "volume %d active %v", tc.volume, tc.active)
	}
	assert.Equal(t, 0, vocal.Analyze(80, false).Volume)
	assert.Equal(t, 100, vocal.Analyze(140, true).Volume)
}

func TestFluencyWordsAndPace(t *testing.T) {
	clock := newFakeClock()
	fluency := NewFluencyAnalyzer(quietLogger(), WithClock(clock.Now))

	assert.Equal(t, PaceSilent, fluency.Metrics().Status)

	fluency.HandleEvent(TranscriptEvent{Text: "I think", IsFinal: false})
	assert.Equal(t, 0, fluency.Metrics().WordCount, "interim events do not count")

	clock.Advance(2 * time.Second)
	fluency.HandleEvent(TranscriptEvent{Text: "I think the answer is", IsFinal: true})
	clock.Advance(1 * time.Second)

	result := fluency.Metrics()
	assert.Equal(t, 5, result.WordCount)
	assert.Equal(t, 100, result.WPM)
	assert.Equal(t, PacePerfect, result.Status)

	clock.Advance(1 * time.Second)
	fluency.HandleEvent(TranscriptEvent{Text: "distributed consensus with raft and leader election", IsFinal: true})
	assert.Equal(t, PaceTooFast, fluency.Metrics().Status)
}

func TestFluencySlowPace(t *testing.T) {
	clock := newFakeClock()
	fluency := NewFluencyAnalyzer(quietLogger(), WithClock(clock.Now))

	clock.Advance(time.Minute)
	fluency.HandleEvent(TranscriptEvent{Text: "well", IsFinal: true})
	result := fluency.Metrics()
	assert.Equal(t, 1, result.WPM)
	assert.Equal(t, PaceTooSlow, result.Status)
}

func TestHesitationWatchdog(t *testing.T) {
	clock := newFakeClock()
	fluency := NewFluencyAnalyzer(quietLogger(), WithClock(clock.Now))

	clock.Advance(2900 * time.Millisecond)
	assert.Equal(t, 0, fluency.Metrics().Hesitations)

	// one poll after 10s of silence registers floor(10/3)
	clock.Advance(7100 * time.Millisecond)
	assert.Equal(t, 3, fluency.Metrics().Hesitations)

	// repeated polls do not double count
	assert.Equal(t, 3, fluency.Metrics().Hesitations)

	fluency.HandleEvent(TranscriptEvent{Text: "ok", IsFinal: true})
	clock.Advance(2 * time.Second)
	assert.Equal(t, 3, fluency.Metrics().Hesitations)
}

func TestTranscriptPeekPop(t *testing.T) {
	fluency := NewFluencyAnalyzer(quietLogger())

	fluency.HandleEvent(TranscriptEvent{Text: "first answer", IsFinal: true})
	fluency.HandleEvent(TranscriptEvent{Text: "and then", IsFinal: false})

	assert.Equal(t, "first answer and then", fluency.PeekTranscript())
	assert.Equal(t, "first answer and then", fluency.PeekTranscript(), "peek does not clear")

	assert.Equal(t, "first answer", fluency.PopTranscript())
	assert.Equal(t, "", fluency.PeekTranscript())
}

func TestFluencyResetKeepsText(t *testing.T) {
	clock := newFakeClock()
	fluency := NewFluencyAnalyzer(quietLogger(), WithClock(clock.Now))

	fluency.HandleEvent(TranscriptEvent{Text: "some words here", IsFinal: true})
	clock.Advance(10 * time.Second)
	fluency.Metrics()

	fluency.Reset()
	result := fluency.Metrics()
	assert.Equal(t, 0, result.WPM)
	assert.Equal(t, 0, result.Hesitations)
	assert.Equal(t, PaceSilent, result.Status)
	assert.Equal(t, "some words here", fluency.PeekTranscript())
}

func TestFluencyConcurrentEvents(t *testing.T) {
	fluency := NewFluencyAnalyzer(quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				fluency.HandleEvent(TranscriptEvent{Text: "one two", IsFinal: j%2 == 0})
				fluency.Metrics()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*25*2, fluency.Metrics().WordCount)
}

func fullBlendshapes(overrides map[string]float64) Blendshapes {
	shapes := Blendshapes{}
	for _, key := range requiredBlendshapes {
		shapes[key] = 0
	}
	for k, v := range overrides {
		shapes[k] = v
	}
	return shapes
}

func TestExpressionBlendshapeSmoothing(t *testing.T) {
	expr := NewExpressionAnalyzer(quietLogger())
	input := BlendshapeInput(fullBlendshapes(map[string]float64{
		"mouthSmileLeft":  0.5,
		"mouthSmileRight": 0.5,
	}))

	first := expr.Analyze(input)
	assert.Equal(t, MoodConfidentEngaging, first.Mood)
	assert.InDelta(t, 0.75*0.85+0.875*0.15, first.Score, 1e-9)

	var result ExpressionResult
	for i := 0; i < 200; i++ {
		result = expr.Analyze(input)
	}
	assert.InDelta(t, 0.875, result.Score, 1e-6)
}

func TestExpressionMoodPriority(t *testing.T) {
	testCases := []struct {
		name   string
		shapes map[string]float64
		want   string
	}{
		{"SmileWins", map[string]float64{"mouthSmileLeft": 0.6, "mouthSmileRight": 0.6, "jawOpen": 0.9}, MoodConfidentEngaging},
		{"Surprised", map[string]float64{"eyeWideLeft": 0.6, "eyeWideRight": 0.6}, MoodSurprised},
		{"JawOpen", map[string]float64{"jawOpen": 0.5}, MoodSurprised},
		{"Tense", map[string]float64{"browDownLeft": 0.5, "browDownRight": 0.5}, MoodFocusedTense},
		{"Pressed", map[string]float64{"mouthPressLeft": 0.5, "mouthPressRight": 0.5}, MoodFocusedTense},
		{"Pensive", map[string]float64{"mouthPucker": 0.35}, MoodPensive},
		{"Neutral", nil, MoodNeutralPro},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expr := NewExpressionAnalyzer(quietLogger())
			assert.Equal(t, tc.want, expr.Analyze(BlendshapeInput(fullBlendshapes(tc.shapes))).Mood)
		})
	}
}

func TestExpressionRawScoreClamped(t *testing.T) {
	expr := NewExpressionAnalyzer(quietLogger())
	worst := BlendshapeInput(fullBlendshapes(map[string]float64{
		"mouthPucker":     1,
		"mouthPressLeft":  1,
		"mouthPressRight": 1,
		"browInnerUp":     1,
		"eyeWideLeft":     1,
		"eyeWideRight":    1,
		"jawOpen":         1,
	}))

	var result ExpressionResult
	for i := 0; i < 300; i++ {
		result = expr.Analyze(worst)
	}
	assert.InDelta(t, 0, result.Score, 1e-6)
	assert.False(t, math.Signbit(result.Score))
}

func TestExpressionMissingBlendshapes(t *testing.T) {
	expr := NewExpressionAnalyzer(quietLogger())
	good := expr.Analyze(BlendshapeInput(fullBlendshapes(nil)))

	bad := expr.Analyze(BlendshapeInput(Blendshapes{"mouthSmileLeft": 0.9}))
	assert.Equal(t, good, bad)
	assert.InDelta(t, good.Score, expr.Smoothed(), 1e-9)
}

func TestExpressionClassifierBands(t *testing.T) {
	testCases := []struct {
		name      string
		probs     map[string]float64
		wantMood  string
		wantScore float64
	}{
		{"Happy", map[string]float64{"happy": 0.8, "neutral": 0.2}, MoodConfidentPositive, 0.98},
		{"Surprised", map[string]float64{"surprised": 0.5, "happy": 0.1}, MoodConfusedThinking, 0.65},
		{"Fearful", map[string]float64{"fearful": 0.7}, MoodAnxiousTense, 0.54},
		{"Neutral", map[string]float64{"neutral": 0.9}, MoodNeutral, 0.75},
		{"Empty", map[string]float64{}, MoodNeutral, 0.75},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expr := NewExpressionAnalyzer(quietLogger())
			result := expr.Analyze(ClassifierInput(tc.probs))
			assert.Equal(t, tc.wantMood, result.Mood)
			assert.InDelta(t, tc.wantScore, result.Score, 1e-9)
		})
	}
}

func TestExpressionClassifierThrottle(t *testing.T) {
	clock := newFakeClock()
	expr := NewExpressionAnalyzer(quietLogger(), WithClock(clock.Now))

	first := expr.Analyze(ClassifierInput(map[string]float64{"happy": 1}))
	assert.Equal(t, MoodConfidentPositive, first.Mood)

	clock.Advance(150 * time.Millisecond)
	throttled := expr.Analyze(ClassifierInput(map[string]float64{"sad": 1}))
	assert.Equal(t, first, throttled)

	clock.Advance(60 * time.Millisecond)
	fresh := expr.Analyze(ClassifierInput(map[string]float64{"sad": 1}))
	assert.Equal(t, MoodAnxiousTense, fresh.Mood)
	assert.Equal(t, "sad", fresh.Dominant)

	assert.InDelta(t, neutralExpressionScore, expr.Smoothed(), 1e-9, "classifier input does not touch the EMA")
}
