package session

import (
	"fmt"

	"interview-coach/pkg/errors"
	"interview-coach/pkg/realtime"
	"interview-coach/pkg/scoring"

	"github.com/sirupsen/logrus"
)

// State is the engine's position in the round state machine
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateReviewing State = "reviewing"
	StateEnded     State = "ended"
)

// Question is one timed prompt of a session
type Question struct {
	Text             string `json:"text"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
}

// Resetter is an analyzer with per-round state
type Resetter interface {
	Reset()
}

// TranscriptBuffer is the fluency side of the engine: per-round counters plus
// the round transcript
type TranscriptBuffer interface {
	Resetter
	PopTranscript() string
}

// Engine owns the round state machine and the single live RoundMetrics value.
// It is not safe for concurrent use; Runner serializes access to it.
type Engine struct {
	logger *logrus.Entry

	ocular  Resetter
	pose    Resetter
	fluency TranscriptBuffer

	state          State
	interviewType  string
	questions      []Question
	roundIndex     int
	sessionElapsed int
	round          scoring.RoundMetrics
	results        []scoring.RoundResult

	reviewTranscript string
	summary          *scoring.SessionSummary
}

// NewEngine creates an idle engine. Any analyzer may be nil.
func NewEngine(logger *logrus.Logger, ocular, pose Resetter, fluency TranscriptBuffer) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		logger:  logger.WithField("component", "session-engine"),
		ocular:  ocular,
		pose:    pose,
		fluency: fluency,
		state:   StateIdle,
	}
}

// StartSession begins round 0. A live session must be ended first.
func (e *Engine) StartSession(interviewType string, questions []Question) error {
	if e.state == StateRunning || e.state == StateReviewing {
		return errors.NewInvalidArgument("session already in progress", map[string]interface{}{"state": string(e.state)})
	}
	if len(questions) == 0 {
		return errors.NewInvalidArgument("at least one question is required")
	}
	for i, q := range questions {
		if q.TimeLimitSeconds <= 0 {
			return errors.NewInvalidArgument(fmt.Sprintf("question %d has no time limit", i), map[string]interface{}{
				"index":              i,
				"time_limit_seconds": q.TimeLimitSeconds,
			})
		}
	}

	e.interviewType = interviewType
	e.questions = append([]Question(nil), questions...)
	e.sessionElapsed = 0
	e.results = nil
	e.summary = nil

	e.logger.WithFields(logrus.Fields{
		"interview_type": interviewType,
		"questions":      len(questions),
	}).Info("Session started")

	e.enterRound(0)
	return nil
}

func (e *Engine) enterRound(index int) {
	e.roundIndex = index
	e.round = scoring.RoundMetrics{}
	e.reviewTranscript = ""
	e.state = StateRunning

	for _, r := range []Resetter{e.ocular, e.pose, e.fluency} {
		if r != nil {
			r.Reset()
		}
	}
	if e.fluency != nil {
		// text left over from a skipped round must not leak into this one
		e.fluency.PopTranscript()
	}

	e.logger.WithFields(logrus.Fields{
		"round":      index,
		"time_limit": e.questions[index].TimeLimitSeconds,
	}).Debug("Round started")
}

// Tick advances session time by one second. It reports whether the round
// reached its limit and moved to review.
func (e *Engine) Tick() bool {
	switch e.state {
	case StateIdle, StateEnded:
		return false
	case StateReviewing:
		e.sessionElapsed++
		return false
	}

	e.sessionElapsed++
	e.round.ElapsedSeconds++
	if e.round.ElapsedSeconds < e.questions[e.roundIndex].TimeLimitSeconds {
		return false
	}

	e.state = StateReviewing
	if e.fluency != nil {
		e.reviewTranscript = e.fluency.PopTranscript()
	}
	e.logger.WithField("round", e.roundIndex).Debug("Round time limit reached, reviewing")
	return true
}

// RecordMetrics merges one frame into the live round. Outside a running round it does nothing.
func (e *Engine) RecordMetrics(visual scoring.Visual, vocal *realtime.VocalResult, fluency *realtime.FluencyResult) {
	if e.state != StateRunning {
		return
	}
	e.round.Record(visual, vocal, fluency)
}

// LiveScore scores the round in progress
func (e *Engine) LiveScore() scoring.Score {
	return scoring.CalculateRoundScore(e.round, e.round.ElapsedSeconds)
}

// SaveRound scores the reviewed round and advances
func (e *Engine) SaveRound(transcript string) (scoring.RoundResult, error) {
	if e.state != StateReviewing {
		return scoring.RoundResult{}, errors.NewInvalidArgument("no round is awaiting review", map[string]interface{}{"state": string(e.state)})
	}

	score := scoring.CalculateRoundScore(e.round.Snapshot(), e.round.ElapsedSeconds)
	result := scoring.RoundResult{
		Index:           e.roundIndex,
		Question:        e.questions[e.roundIndex].Text,
		Transcript:      transcript,
		Score:           &score,
		DurationSeconds: e.round.ElapsedSeconds,
	}
	e.results = append(e.results, result)

	e.logger.WithFields(logrus.Fields{
		"round": e.roundIndex,
		"final": score.Final,
	}).Info("Round saved")

	e.advance()
	return result, nil
}

// SkipQuestion records an unscored round and advances
func (e *Engine) SkipQuestion() (scoring.RoundResult, error) {
	if e.state != StateRunning && e.state != StateReviewing {
		return scoring.RoundResult{}, errors.NewInvalidArgument("no round to skip", map[string]interface{}{"state": string(e.state)})
	}

	if e.fluency != nil {
		e.fluency.PopTranscript()
	}
	result := scoring.RoundResult{
		Index:    e.roundIndex,
		Question: e.questions[e.roundIndex].Text,
	}
	e.results = append(e.results, result)

	e.logger.WithField("round", e.roundIndex).Info("Round skipped")

	e.advance()
	return result, nil
}

func (e *Engine) advance() {
	if e.roundIndex+1 < len(e.questions) {
		e.enterRound(e.roundIndex + 1)
		return
	}
	e.end()
}

// EndSession freezes the summary. Ending twice returns the frozen summary.
// The round in progress, if any, is not recorded.
func (e *Engine) EndSession() (scoring.SessionSummary, error) {
	switch e.state {
	case StateIdle:
		return scoring.SessionSummary{}, errors.NewInvalidArgument("no session to end")
	case StateEnded:
		return *e.summary, nil
	}
	e.end()
	return *e.summary, nil
}

func (e *Engine) end() {
	summary := scoring.Summarize(e.interviewType, e.sessionElapsed, e.results)
	e.summary = &summary
	e.state = StateEnded

	e.logger.WithFields(logrus.Fields{
		"total_seconds":       summary.TotalTimeSeconds,
		"questions_completed": summary.QuestionsCompleted,
		"average_score":       summary.AverageScore,
	}).Info("Session ended")
}

// SessionSummary returns the frozen summary once ended, or a live one before
func (e *Engine) SessionSummary() (scoring.SessionSummary, error) {
	switch e.state {
	case StateIdle:
		return scoring.SessionSummary{}, errors.NewInvalidArgument("session has not started")
	case StateEnded:
		return *e.summary, nil
	}
	return scoring.Summarize(e.interviewType, e.sessionElapsed, e.results), nil
}

// State returns the current state
func (e *Engine) State() State {
	return e.state
}

// InterviewType returns the tag passed to StartSession
func (e *Engine) InterviewType() string {
	return e.interviewType
}

// CurrentRound returns the index of the active or reviewed round
func (e *Engine) CurrentRound() int {
	return e.roundIndex
}

// CurrentQuestion returns the active question, false when no round is live
func (e *Engine) CurrentQuestion() (Question, bool) {
	if e.state != StateRunning && e.state != StateReviewing {
		return Question{}, false
	}
	return e.questions[e.roundIndex], true
}

// QuestionCount returns the number of questions in the session
func (e *Engine) QuestionCount() int {
	return len(e.questions)
}

// RoundElapsed returns the seconds spent in the current round
func (e *Engine) RoundElapsed() int {
	return e.round.ElapsedSeconds
}

// SessionElapsed returns the seconds since StartSession
func (e *Engine) SessionElapsed() int {
	return e.sessionElapsed
}

// ElapsedClock formats session time as MM:SS
func (e *Engine) ElapsedClock() string {
	return fmt.Sprintf("%02d:%02d", e.sessionElapsed/60, e.sessionElapsed%60)
}

// ReviewTranscript is the draft transcript captured when the round timed out
func (e *Engine) ReviewTranscript() string {
	return e.reviewTranscript
}

// RoundMetrics returns a copy of the live round accumulators
func (e *Engine) RoundMetrics() scoring.RoundMetrics {
	return e.round.Snapshot()
}

// Results returns the rounds completed so far
func (e *Engine) Results() []scoring.RoundResult {
	return append([]scoring.RoundResult(nil), e.results...)
}
