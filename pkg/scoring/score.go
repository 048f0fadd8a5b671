package scoring

import (
	"math"
)

// Weights of each dimension in the final score
const (
	OcularWeight     = 0.20
	PoseWeight       = 0.15
	VocalWeight      = 0.25
	FluencyWeight    = 0.20
	ExpressionWeight = 0.20
)

const (
	neutralScore       = 75
	minScoringSeconds  = 2
	minScoringMinutes  = 0.05
	defaultStability   = 75.0
	defaultExpression  = 75.0
	stablePoseCutoff   = 70.0
	maxHesitationsRate = 3.0
)

// Band is a coarse classification of a final score
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandFor classifies a final score
func BandFor(final int) Band {
	switch {
	case final > 80:
		return BandHigh
	case final > 60:
		return BandMedium
	default:
		return BandLow
	}
}

// Breakdown holds the five sub-scores, each 0-100
type Breakdown struct {
	Ocular     int `json:"ocular"`
	Pose       int `json:"pose"`
	Vocal      int `json:"vocal"`
	Fluency    int `json:"fluency"`
	Expression int `json:"expression"`
}

// AsMap returns the breakdown keyed by dimension name
func (b Breakdown) AsMap() map[string]int {
	return map[string]int{
		"ocular":     b.Ocular,
		"pose":       b.Pose,
		"vocal":      b.Vocal,
		"fluency":    b.Fluency,
		"expression": b.Expression,
	}
}

// Stats are the raw rates behind the breakdown
type Stats struct {
	BlinkRatePerMin  float64 `json:"blink_rate_per_min"`
	WordsPerMin      int     `json:"words_per_min"`
	StabilityPercent float64 `json:"stability_percent"`
	AvgVolume        int     `json:"avg_volume"`
}

// Score is the weighted composite for a round
type Score struct {
	Final     int       `json:"final"`
	Band      Band      `json:"band"`
	Breakdown Breakdown `json:"breakdown"`
	Stats     Stats     `json:"stats"`
}

// NeutralScore is returned while a round is too young to judge
func NeutralScore() Score {
	return Score{
		Final: neutralScore,
		Band:  BandFor(neutralScore),
		Breakdown: Breakdown{
			Ocular:     neutralScore,
			Pose:       neutralScore,
			Vocal:      neutralScore,
			Fluency:    neutralScore,
			Expression: neutralScore,
		},
	}
}

// CalculateRoundScore fuses a metrics snapshot into a score. The final value
// is rounded from the unrounded weighted sum, not from the rounded breakdown.
func CalculateRoundScore(metrics RoundMetrics, elapsedSeconds int) Score {
	if elapsedSeconds < minScoringSeconds {
		return NeutralScore()
	}

	minutes := math.Max(minScoringMinutes, float64(elapsedSeconds)/60)

	expression := defaultExpression
	if len(metrics.ExpressionScores) > 0 {
		expression = mean(metrics.ExpressionScores) * 100
	}

	blinkRate := float64(metrics.TotalBlinks) / minutes
	ocular := ocularScore(blinkRate)

	stability := defaultStability
	if frames := metrics.HeadStability.Stable + metrics.HeadStability.Unstable; frames > 0 {
		stability = float64(metrics.HeadStability.Stable) / float64(frames) * 100
	}
	pose := stability
	if stability > stablePoseCutoff {
		pose = 100
	}

	var vocal, avgVolume float64
	if len(metrics.VolumeSamples) > 0 {
		avgVolume = meanInt(metrics.VolumeSamples)
		vocal = 50
		if avgVolume > 15 && avgVolume < 80 {
			vocal = 100
		}
	}

	wpm := float64(metrics.TotalWords) / minutes
	hesitationRate := float64(metrics.TotalHesitations) / minutes
	fluency := fluencyScore(wpm, hesitationRate)

	final := ocular*OcularWeight +
		pose*PoseWeight +
		vocal*VocalWeight +
		fluency*FluencyWeight +
		expression*ExpressionWeight

	rounded := int(math.Round(final))
	return Score{
		Final: rounded,
		Band:  BandFor(rounded),
		Breakdown: Breakdown{
			Ocular:     int(math.Round(ocular)),
			Pose:       int(math.Round(pose)),
			Vocal:      int(math.Round(vocal)),
			Fluency:    int(math.Round(fluency)),
			Expression: int(math.Round(expression)),
		},
		Stats: Stats{
			BlinkRatePerMin:  round1(blinkRate),
			WordsPerMin:      int(math.Round(wpm)),
			StabilityPercent: round1(stability),
			AvgVolume:        int(math.Round(avgVolume)),
		},
	}
}

// ocularScore rewards lower blink rates
func ocularScore(blinkRate float64) float64 {
	switch {
	case blinkRate > 25:
		return 60
	case blinkRate > 20:
		return 70
	case blinkRate > 15:
		return 80
	case blinkRate > 8:
		return 90
	default:
		return 100
	}
}

func fluencyScore(wpm, hesitationRate float64) float64 {
	switch {
	case wpm >= 120 && wpm <= 160 && hesitationRate < maxHesitationsRate:
		return 100
	case wpm > 0 && wpm < 100:
		return 60
	case wpm > 180:
		return 70
	default:
		return 50
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanInt(values []int) float64 {
	var sum int
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}
