package scoring

import (
	"interview-coach/pkg/realtime"
)

// HeadStabilityFrames counts frames by pose classification
type HeadStabilityFrames struct {
	Stable   int `json:"stable"`
	Unstable int `json:"unstable"`
}

// RoundMetrics accumulates analyzer outputs for one round. A new value is
// created for every round; nothing is reset field by field.
type RoundMetrics struct {
	TotalBlinks      int                 `json:"total_blinks"`
	ExpressionScores []float64           `json:"expression_scores"`
	HeadStability    HeadStabilityFrames `json:"head_stability_frames"`
	VolumeSamples    []int               `json:"volume_samples"`
	TotalWords       int                 `json:"total_words"`
	TotalHesitations int                 `json:"total_hesitations"`
	ElapsedSeconds   int                 `json:"elapsed_seconds"`
}

// Visual is the face-derived part of one frame. OcularValid and PoseValid are
// false until the analyzer has measured a well-formed frame; until then its
// result carries no information and is not recorded.
type Visual struct {
	FaceDetected bool
	Ocular       realtime.OcularResult
	OcularValid  bool
	Pose         realtime.PoseResult
	PoseValid    bool
	Expression   realtime.ExpressionResult
}

// Record merges one frame's analyzer outputs. Counters reported by analyzers
// are cumulative, so they only ever raise the recorded value. Nil vocal or
// fluency means that collaborator produced nothing this frame.
func (m *RoundMetrics) Record(visual Visual, vocal *realtime.VocalResult, fluency *realtime.FluencyResult) {
	if visual.FaceDetected {
		m.ExpressionScores = append(m.ExpressionScores, visual.Expression.Score)

		if visual.OcularValid && visual.Ocular.BlinkCount > m.TotalBlinks {
			m.TotalBlinks = visual.Ocular.BlinkCount
		}

		switch {
		case !visual.PoseValid:
		case visual.Pose.IsStable:
			m.HeadStability.Stable++
		default:
			m.HeadStability.Unstable++
		}
	}

	if vocal != nil {
		m.VolumeSamples = append(m.VolumeSamples, vocal.Volume)
	}

	if fluency != nil {
		if fluency.WordCount > m.TotalWords {
			m.TotalWords = fluency.WordCount
		}
		if fluency.Hesitations > m.TotalHesitations {
			m.TotalHesitations = fluency.Hesitations
		}
	}
}

// Snapshot returns a copy that shares no slices with m
func (m RoundMetrics) Snapshot() RoundMetrics {
	out := m
	out.ExpressionScores = append([]float64(nil), m.ExpressionScores...)
	out.VolumeSamples = append([]int(nil), m.VolumeSamples...)
	return out
}
