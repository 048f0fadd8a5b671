package realtime

// VocalStatus classifies the speaker's volume
type VocalStatus string

const (
	VocalSpeaking VocalStatus = "Speaking"
	VocalLow      VocalStatus = "Low"
	VocalQuiet    VocalStatus = "Quiet"
	VocalOff      VocalStatus = "Off"
)

// VocalResult is the classified volume sample
type VocalResult struct {
	Volume int         `json:"volume"`
	Status VocalStatus `json:"status"`
}

// VocalAnalyzer classifies RMS volume samples. It holds no state.
type VocalAnalyzer struct{}

// NewVocalAnalyzer creates a vocal level classifier
func NewVocalAnalyzer() *VocalAnalyzer {
	return &VocalAnalyzer{}
}

// Analyze classifies a 0-100 volume sample; an inactive source reports Off
func (VocalAnalyzer) Analyze(volume int, active bool) VocalResult {
	if !active {
		return VocalResult{Volume: 0, Status: VocalOff}
	}

	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}

	switch {
	case volume > 30:
		return VocalResult{Volume: volume, Status: VocalSpeaking}
	case volume > 10:
		return VocalResult{Volume: volume, Status: VocalLow}
	default:
		return VocalResult{Volume: volume, Status: VocalQuiet}
	}
}
