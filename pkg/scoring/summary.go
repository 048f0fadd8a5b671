package scoring

import (
	"math"
)

// RoundResult is the immutable record of one question. A nil Score marks a skipped round.
type RoundResult struct {
	Index           int    `json:"index"`
	Question        string `json:"question"`
	Transcript      string `json:"transcript"`
	Score           *Score `json:"score"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Skipped reports whether the round was skipped
func (r RoundResult) Skipped() bool {
	return r.Score == nil
}

// SessionSummary aggregates every scored round of a session
type SessionSummary struct {
	InterviewType      string        `json:"interview_type"`
	TotalTimeSeconds   int           `json:"total_time_seconds"`
	QuestionsCompleted int           `json:"questions_completed"`
	AverageScore       int           `json:"average_score"`
	AverageBand        Band          `json:"average_band"`
	AverageBreakdown   Breakdown     `json:"average_breakdown"`
	AverageStats       Stats         `json:"average_stats"`
	Rounds             []RoundResult `json:"rounds"`
}

// Summarize averages the scored rounds. Skipped rounds are excluded; no scored
// rounds yields zeroed averages.
func Summarize(interviewType string, totalTimeSeconds int, rounds []RoundResult) SessionSummary {
	summary := SessionSummary{
		InterviewType:    interviewType,
		TotalTimeSeconds: totalTimeSeconds,
		Rounds:           append([]RoundResult{}, rounds...),
	}

	var (
		count                                     int
		final, ocular, pose, vocal, fluency, expr float64
		blinkRate, wpm, stability, volume         float64
	)
	for _, round := range rounds {
		if round.Skipped() {
			continue
		}
		count++
		s := round.Score
		final += float64(s.Final)
		ocular += float64(s.Breakdown.Ocular)
		pose += float64(s.Breakdown.Pose)
		vocal += float64(s.Breakdown.Vocal)
		fluency += float64(s.Breakdown.Fluency)
		expr += float64(s.Breakdown.Expression)
		blinkRate += s.Stats.BlinkRatePerMin
		wpm += float64(s.Stats.WordsPerMin)
		stability += s.Stats.StabilityPercent
		volume += float64(s.Stats.AvgVolume)
	}

	summary.QuestionsCompleted = count
	if count == 0 {
		summary.AverageBand = BandLow
		return summary
	}

	n := float64(count)
	avg := func(total float64) int { return int(math.Round(total / n)) }

	summary.AverageScore = avg(final)
	summary.AverageBand = BandFor(summary.AverageScore)
	summary.AverageBreakdown = Breakdown{
		Ocular:     avg(ocular),
		Pose:       avg(pose),
		Vocal:      avg(vocal),
		Fluency:    avg(fluency),
		Expression: avg(expr),
	}
	summary.AverageStats = Stats{
		BlinkRatePerMin:  round1(blinkRate / n),
		WordsPerMin:      avg(wpm),
		StabilityPercent: round1(stability / n),
		AvgVolume:        avg(volume),
	}

	return summary
}
