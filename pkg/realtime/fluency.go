package realtime

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PaceStatus classifies speaking rate
type PaceStatus string

const (
	PaceTooFast PaceStatus = "Too Fast"
	PaceTooSlow PaceStatus = "Too Slow"
	PaceSilent  PaceStatus = "Silent"
	PacePerfect PaceStatus = "Perfect Pace"
)

// HesitationWindow is the silence that counts as one hesitation
const HesitationWindow = 3 * time.Second

// FluencyResult is a snapshot of the speaking metrics
type FluencyResult struct {
	WPM         int        `json:"wpm"`
	Hesitations int        `json:"hesitations"`
	WordCount   int        `json:"word_count"`
	Status      PaceStatus `json:"status"`
}

// FluencyAnalyzer tracks words, pace and hesitations from transcription events.
// Events arrive on the provider's goroutine, so all state sits behind mu.
type FluencyAnalyzer struct {
	logger *logrus.Entry
	clock  Clock

	mu          sync.Mutex
	startedAt   time.Time
	lastSpeech  time.Time
	wordCount   int
	hesitations int
	committed   strings.Builder
	interim     string
}

// NewFluencyAnalyzer creates a fluency tracker whose clock starts now
func NewFluencyAnalyzer(logger *logrus.Logger, opts ...Option) *FluencyAnalyzer {
	o := applyOptions(opts)
	f := &FluencyAnalyzer{
		logger: componentLogger(logger, "fluency-analyzer"),
		clock:  o.clock,
	}
	now := f.clock()
	f.startedAt = now
	f.lastSpeech = now
	return f
}

// HandleEvent applies one transcription event. Only final events move the counters.
func (f *FluencyAnalyzer) HandleEvent(event TranscriptEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !event.IsFinal {
		f.interim = event.Text
		return
	}

	words := strings.Fields(event.Text)
	f.wordCount += len(words)
	if len(words) > 0 {
		f.committed.WriteString(event.Text)
		f.committed.WriteString(" ")
	}
	f.interim = ""
	f.lastSpeech = f.clock()

	f.logger.WithFields(logrus.Fields{
		"words":       len(words),
		"total_words": f.wordCount,
	}).Trace("Final transcript segment")
}

// Metrics pulls the current snapshot and runs the silence watchdog
func (f *FluencyAnalyzer) Metrics() FluencyResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock()
	for now.Sub(f.lastSpeech) > HesitationWindow {
		f.hesitations++
		f.lastSpeech = f.lastSpeech.Add(HesitationWindow)
	}

	var wpm float64
	if elapsed := now.Sub(f.startedAt).Minutes(); elapsed > 0 {
		wpm = float64(f.wordCount) / elapsed
	}

	return FluencyResult{
		WPM:         int(math.Round(wpm)),
		Hesitations: f.hesitations,
		WordCount:   f.wordCount,
		Status:      classifyPace(wpm),
	}
}

func classifyPace(wpm float64) PaceStatus {
	switch {
	case wpm > 160:
		return PaceTooFast
	case wpm > 0 && wpm < 100:
		return PaceTooSlow
	case wpm == 0:
		return PaceSilent
	default:
		return PacePerfect
	}
}

// PeekTranscript returns committed and in-progress text without clearing it
func (f *FluencyAnalyzer) PeekTranscript() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	committed := strings.TrimSpace(f.committed.String())
	interim := strings.TrimSpace(f.interim)
	if committed == "" || interim == "" {
		return committed + interim
	}
	return committed + " " + interim
}

// PopTranscript returns the committed text and clears both text buffers
func (f *FluencyAnalyzer) PopTranscript() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	text := strings.TrimSpace(f.committed.String())
	f.committed.Reset()
	f.interim = ""
	return text
}

// Reset re-zeroes counters and timestamps. Transcript text is left for PopTranscript.
func (f *FluencyAnalyzer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock()
	f.startedAt = now
	f.lastSpeech = now
	f.wordCount = 0
	f.hesitations = 0
}
