package scoring

import (
	"testing"

	"interview-coach/pkg/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeutralScoreForYoungRounds(t *testing.T) {
	busy := RoundMetrics{
		TotalBlinks:      40,
		ExpressionScores: []float64{0.1, 0.2},
		HeadStability:    HeadStabilityFrames{Stable: 1, Unstable: 9},
		VolumeSamples:    []int{95},
		TotalWords:       400,
	}

	for _, elapsed := range []int{0, 1} {
		score := CalculateRoundScore(busy, elapsed)
		assert.Equal(t, 75, score.Final)
		assert.Equal(t, Breakdown{75, 75, 75, 75, 75}, score.Breakdown)
	}
}

func TestOcularBands(t *testing.T) {
	testCases := []struct {
		blinksPerMinute int
		want            int
	}{
		{30, 60},
		{25, 70},
		{21, 70},
		{16, 80},
		{9, 90},
		{8, 100},
		{0, 100},
	}

	for _, tc := range testCases {
		score := CalculateRoundScore(RoundMetrics{TotalBlinks: tc.blinksPerMinute}, 60)
		assert.Equal(t, tc.want, score.Breakdown.Ocular, "blinks/min %d", tc.blinksPerMinute)
	}
}

func TestFluencyBands(t *testing.T) {
	testCases := []struct {
		name        string
		words       int
		hesitations int
		want        int
	}{
		{"Ideal", 130, 0, 100},
		{"IdealButHesitant", 130, 3, 50},
		{"Slow", 50, 0, 60},
		{"Gap", 110, 0, 50},
		{"SlightlyFast", 170, 0, 50},
		{"Racing", 200, 0, 70},
		{"Silent", 0, 0, 50},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			score := CalculateRoundScore(RoundMetrics{TotalWords: tc.words, TotalHesitations: tc.hesitations}, 60)
			assert.Equal(t, tc.want, score.Breakdown.Fluency)
		})
	}
}

func TestDefaultsWithoutSamples(t *testing.T) {
	score := CalculateRoundScore(RoundMetrics{}, 30)

	assert.Equal(t, 75, score.Breakdown.Expression)
	assert.Equal(t, 100, score.Breakdown.Pose, "default stability 75 is above the cutoff")
	assert.Equal(t, 0, score.Breakdown.Vocal)
	assert.Equal(t, 75.0, score.Stats.StabilityPercent)
	assert.Equal(t, 0, score.Stats.AvgVolume)
}

func TestPoseBelowCutoffUsesPercent(t *testing.T) {
	score := CalculateRoundScore(RoundMetrics{HeadStability: HeadStabilityFrames{Stable: 2, Unstable: 1}}, 30)
	assert.Equal(t, 67, score.Breakdown.Pose)
	assert.Equal(t, 66.7, score.Stats.StabilityPercent)
}

func TestVocalIsBinary(t *testing.T) {
	assert.Equal(t, 100, CalculateRoundScore(RoundMetrics{VolumeSamples: []int{40, 60}}, 30).Breakdown.Vocal)
	assert.Equal(t, 50, CalculateRoundScore(RoundMetrics{VolumeSamples: []int{5, 10}}, 30).Breakdown.Vocal)
	assert.Equal(t, 50, CalculateRoundScore(RoundMetrics{VolumeSamples: []int{90}}, 30).Breakdown.Vocal)
}

func TestFinalRoundedFromUnroundedSum(t *testing.T) {
	metrics := RoundMetrics{
		ExpressionScores: []float64{0.7475},
		HeadStability:    HeadStabilityFrames{Stable: 1, Unstable: 1},
		VolumeSamples:    []int{50},
		TotalWords:       130,
	}
	score := CalculateRoundScore(metrics, 60)

	// 100*.20 + 50*.15 + 100*.25 + 100*.20 + 74.75*.20 = 87.45, rounded sub-scores would give 87.5
	assert.Equal(t, 87, score.Final)
	assert.Equal(t, 75, score.Breakdown.Expression)
	assert.Equal(t, BandHigh, score.Band)
}

func TestShortRoundMinimumMinutes(t *testing.T) {
	// 2s is 0.033 minutes, clamped to 0.05
	score := CalculateRoundScore(RoundMetrics{TotalWords: 6}, 2)
	assert.Equal(t, 120, score.Stats.WordsPerMin)
}

func TestRecordIsMonotonic(t *testing.T) {
	var metrics RoundMetrics
	visual := Visual{
		FaceDetected: true,
		Ocular:       realtime.OcularResult{BlinkCount: 4},
		OcularValid:  true,
		Pose:         realtime.PoseResult{IsStable: true},
		PoseValid:    true,
		Expression:   realtime.ExpressionResult{Score: 0.8},
	}
	metrics.Record(visual, &realtime.VocalResult{Volume: 40}, &realtime.FluencyResult{WordCount: 20, Hesitations: 2})

	visual.Ocular.BlinkCount = 1
	visual.Pose.IsStable = false
	metrics.Record(visual, &realtime.VocalResult{Volume: 20}, &realtime.FluencyResult{WordCount: 5, Hesitations: 0})

	assert.Equal(t, 4, metrics.TotalBlinks)
	assert.Equal(t, 20, metrics.TotalWords)
	assert.Equal(t, 2, metrics.TotalHesitations)
	assert.Equal(t, HeadStabilityFrames{Stable: 1, Unstable: 1}, metrics.HeadStability)
	assert.Equal(t, []int{40, 20}, metrics.VolumeSamples)
	assert.Len(t, metrics.ExpressionScores, 2)
}

func TestRecordWithoutFace(t *testing.T) {
	var metrics RoundMetrics
	metrics.Record(Visual{Ocular: realtime.OcularResult{BlinkCount: 9}}, &realtime.VocalResult{Volume: 33}, nil)

	assert.Equal(t, 0, metrics.TotalBlinks)
	assert.Empty(t, metrics.ExpressionScores)
	assert.Zero(t, metrics.HeadStability.Stable+metrics.HeadStability.Unstable)
	assert.Equal(t, []int{33}, metrics.VolumeSamples)
}

func TestRecordSkipsAnalyzersWithoutResult(t *testing.T) {
	var metrics RoundMetrics
	visual := Visual{
		FaceDetected: true,
		Ocular:       realtime.OcularResult{BlinkCount: 3},
		Expression:   realtime.ExpressionResult{Score: 0.75},
	}
	metrics.Record(visual, nil, nil)

	assert.Equal(t, 0, metrics.TotalBlinks)
	assert.Equal(t, HeadStabilityFrames{}, metrics.HeadStability)
	assert.Equal(t, []float64{0.75}, metrics.ExpressionScores)
}

func TestSnapshotIsIndependent(t *testing.T) {
	metrics := RoundMetrics{VolumeSamples: []int{1}}
	snap := metrics.Snapshot()
	metrics.VolumeSamples[0] = 99
	assert.Equal(t, 1, snap.VolumeSamples[0])
}

func TestSummarizeExcludesSkipped(t *testing.T) {
	a := Score{Final: 80, Breakdown: Breakdown{100, 100, 100, 50, 70}, Stats: Stats{BlinkRatePerMin: 10.2, WordsPerMin: 130, StabilityPercent: 90.2, AvgVolume: 40}}
	b := Score{Final: 91, Breakdown: Breakdown{90, 100, 50, 100, 85}, Stats: Stats{BlinkRatePerMin: 5.2, WordsPerMin: 141, StabilityPercent: 80.0, AvgVolume: 45}}

	rounds := []RoundResult{
		{Index: 0, Question: "q1", Score: &a, DurationSeconds: 60},
		{Index: 1, Question: "q2"},
		{Index: 2, Question: "q3", Score: &b, DurationSeconds: 45},
	}

	summary := Summarize("technical", 200, rounds)
	require.Len(t, summary.Rounds, 3)
	assert.Equal(t, 2, summary.QuestionsCompleted)
	assert.Equal(t, 86, summary.AverageScore)
	assert.Equal(t, Breakdown{95, 100, 75, 75, 78}, summary.AverageBreakdown)
	assert.Equal(t, 7.7, summary.AverageStats.BlinkRatePerMin)
	assert.Equal(t, 136, summary.AverageStats.WordsPerMin)
	assert.Equal(t, 85.1, summary.AverageStats.StabilityPercent)
	assert.Equal(t, 43, summary.AverageStats.AvgVolume)
	assert.Equal(t, BandHigh, summary.AverageBand)
}

func TestSummarizeZeroRounds(t *testing.T) {
	summary := Summarize("behavioral", 12, []RoundResult{{Question: "skipped"}})

	assert.Equal(t, 0, summary.QuestionsCompleted)
	assert.Equal(t, 0, summary.AverageScore)
	assert.Equal(t, Breakdown{}, summary.AverageBreakdown)
	assert.Equal(t, Stats{}, summary.AverageStats)
	assert.Equal(t, 12, summary.TotalTimeSeconds)
}
