package session

import (
	"context"
	"sync"
	"time"

	"interview-coach/pkg/errors"
	"interview-coach/pkg/metrics"
	"interview-coach/pkg/realtime"
	"interview-coach/pkg/scoring"

	"github.com/sirupsen/logrus"
)

// Frame is one camera and microphone sample from the client
type Frame struct {
	Landmarks    []realtime.Landmark  `json:"landmarks"`
	Blendshapes  realtime.Blendshapes `json:"blendshapes,omitempty"`
	Expressions  map[string]float64   `json:"expressions,omitempty"`
	Volume       int                  `json:"volume"`
	VolumeActive bool                 `json:"volume_active"`
}

// LiveUpdate is pushed to sinks after every processed frame
type LiveUpdate struct {
	SessionID    string                    `json:"session_id"`
	State        State                     `json:"state"`
	Round        int                       `json:"round"`
	RoundElapsed int                       `json:"round_elapsed"`
	ElapsedClock string                    `json:"elapsed_clock"`
	Score        *scoring.Score            `json:"score,omitempty"`
	Ocular       realtime.OcularResult     `json:"ocular"`
	Pose         realtime.PoseResult       `json:"pose"`
	Expression   realtime.ExpressionResult `json:"expression"`
	Vocal        realtime.VocalResult      `json:"vocal"`
	Fluency      realtime.FluencyResult    `json:"fluency"`
	Transcript   string                    `json:"transcript"`
}

// Status describes the engine position after a state change
type Status struct {
	SessionID        string   `json:"session_id"`
	State            State    `json:"state"`
	Round            int      `json:"round"`
	Rounds           int      `json:"rounds"`
	Question         Question `json:"question"`
	RoundElapsed     int      `json:"round_elapsed"`
	ElapsedClock     string   `json:"elapsed_clock"`
	ReviewTranscript string   `json:"review_transcript,omitempty"`
}

// UpdateSink receives runner output. Calls are made from the runner goroutine
// and must not block.
type UpdateSink interface {
	OnLiveUpdate(update LiveUpdate)
	OnStateChange(status Status)
	OnRoundResult(sessionID string, result scoring.RoundResult)
	OnSummary(sessionID string, summary scoring.SessionSummary)
}

// RunnerConfig tunes a Runner
type RunnerConfig struct {
	TickInterval    time.Duration
	FrameBufferSize int
	// Ticks replaces the internal ticker when set
	Ticks <-chan time.Time
	Clock realtime.Clock
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdSave
	cmdSkip
	cmdEnd
	cmdSummary
	cmdStatus
)

type command struct {
	kind          commandKind
	interviewType string
	questions     []Question
	transcript    string
	reply         chan commandResult
}

type commandResult struct {
	result  scoring.RoundResult
	summary scoring.SessionSummary
	status  Status
	err     error
}

// Runner drives one Engine from a single goroutine. Frames, commands and
// ticks are serialized through channels; nothing else touches the engine.
type Runner struct {
	id     string
	logger *logrus.Entry
	config RunnerConfig

	engine     *Engine
	ocular     *realtime.OcularAnalyzer
	pose       *realtime.PoseAnalyzer
	vocal      *realtime.VocalAnalyzer
	fluency    *realtime.FluencyAnalyzer
	expression *realtime.ExpressionAnalyzer
	lastExpr   realtime.ExpressionResult

	sinks    []UpdateSink
	frames   chan Frame
	commands chan command

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

// NewRunner builds a runner with fresh analyzers. Call Start to begin processing.
func NewRunner(id string, config RunnerConfig, logger *logrus.Logger, sinks ...UpdateSink) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.FrameBufferSize <= 0 {
		config.FrameBufferSize = 64
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	opts := []realtime.Option{realtime.WithClock(config.Clock)}
	r := &Runner{
		id:         id,
		logger:     logger.WithFields(logrus.Fields{"component": "session-runner", "session_id": id}),
		config:     config,
		ocular:     realtime.NewOcularAnalyzer(logger, opts...),
		pose:       realtime.NewPoseAnalyzer(logger),
		vocal:      realtime.NewVocalAnalyzer(),
		fluency:    realtime.NewFluencyAnalyzer(logger, opts...),
		expression: realtime.NewExpressionAnalyzer(logger, opts...),
		sinks:      sinks,
		frames:     make(chan Frame, config.FrameBufferSize),
		commands:   make(chan command),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	r.lastExpr = realtime.ExpressionResult{Mood: realtime.MoodNeutral, Score: r.expression.Smoothed()}
	r.engine = NewEngine(logger, r.ocular, r.pose, r.fluency)
	return r
}

// ID returns the session identifier
func (r *Runner) ID() string {
	return r.id
}

// Start launches the runner goroutine. It stops when ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.run(ctx)
	})
}

// Stop halts the runner and waits for the goroutine to exit
func (r *Runner) Stop() {
	// a runner that was never started has nothing to wait for
	r.startOnce.Do(func() {
		close(r.done)
	})
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	<-r.done
}

// Done is closed once the runner goroutine has exited
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	ticks := r.config.Ticks
	if ticks == nil {
		ticker := time.NewTicker(r.config.TickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	r.logger.Debug("Session runner started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Session runner cancelled")
			return
		case <-r.stopChan:
			r.logger.Debug("Session runner stopped")
			return
		case cmd := <-r.commands:
			// frames submitted before the command belong to the round it may close
			r.drainFrames()
			cmd.reply <- r.handleCommand(cmd)
		case frame := <-r.frames:
			r.processFrame(frame)
		case <-ticks:
			r.handleTick()
		}
	}
}

// drainFrames processes every frame already queued, without waiting for more
func (r *Runner) drainFrames() {
	for {
		select {
		case frame := <-r.frames:
			r.processFrame(frame)
		default:
			return
		}
	}
}

// SubmitFrame queues a frame without blocking. It returns false when the
// frame was dropped because the queue is full or the runner has stopped.
func (r *Runner) SubmitFrame(frame Frame) bool {
	select {
	case <-r.done:
		metrics.RecordFrameDropped()
		return false
	default:
	}

	select {
	case r.frames <- frame:
		return true
	default:
		metrics.RecordFrameDropped()
		r.logger.Debug("Frame queue full, dropping frame")
		return false
	}
}

// HandleTranscript feeds a speech-to-text event into the fluency analyzer
func (r *Runner) HandleTranscript(event realtime.TranscriptEvent) {
	r.fluency.HandleEvent(event)
}

// StartSession begins a new session on this runner
func (r *Runner) StartSession(interviewType string, questions []Question) error {
	return r.send(command{kind: cmdStart, interviewType: interviewType, questions: questions}).err
}

// SaveRound commits the reviewed round with the user's edited transcript
func (r *Runner) SaveRound(transcript string) (scoring.RoundResult, error) {
	res := r.send(command{kind: cmdSave, transcript: transcript})
	return res.result, res.err
}

// SkipQuestion abandons the current round
func (r *Runner) SkipQuestion() (scoring.RoundResult, error) {
	res := r.send(command{kind: cmdSkip})
	return res.result, res.err
}

// EndSession ends the session and returns its frozen summary
func (r *Runner) EndSession() (scoring.SessionSummary, error) {
	res := r.send(command{kind: cmdEnd})
	return res.summary, res.err
}

// Summary returns the session summary so far
func (r *Runner) Summary() (scoring.SessionSummary, error) {
	res := r.send(command{kind: cmdSummary})
	return res.summary, res.err
}

// Status returns the current engine position
func (r *Runner) Status() (Status, error) {
	res := r.send(command{kind: cmdStatus})
	return res.status, res.err
}

func (r *Runner) send(cmd command) commandResult {
	cmd.reply = make(chan commandResult, 1)
	select {
	case r.commands <- cmd:
		return <-cmd.reply
	case <-r.done:
		return commandResult{err: errors.NewInvalidArgument("session runner is stopped", map[string]interface{}{"session_id": r.id})}
	}
}

func (r *Runner) handleCommand(cmd command) commandResult {
	switch cmd.kind {
	case cmdStart:
		if err := r.engine.StartSession(cmd.interviewType, cmd.questions); err != nil {
			return commandResult{err: err}
		}
		metrics.RecordSessionStarted(cmd.interviewType)
		r.notifyState()
		return commandResult{status: r.status()}

	case cmdSave:
		result, err := r.engine.SaveRound(cmd.transcript)
		if err != nil {
			return commandResult{err: err}
		}
		metrics.RecordRoundSaved(result.Score.Final, result.Score.Breakdown.AsMap())
		r.afterRound(result)
		return commandResult{result: result}

	case cmdSkip:
		result, err := r.engine.SkipQuestion()
		if err != nil {
			return commandResult{err: err}
		}
		metrics.RecordRoundSkipped()
		r.afterRound(result)
		return commandResult{result: result}

	case cmdEnd:
		wasEnded := r.engine.State() == StateEnded
		summary, err := r.engine.EndSession()
		if err != nil {
			return commandResult{err: err}
		}
		if !wasEnded {
			r.finish(summary)
		}
		return commandResult{summary: summary}

	case cmdSummary:
		summary, err := r.engine.SessionSummary()
		return commandResult{summary: summary, err: err}

	case cmdStatus:
		return commandResult{status: r.status()}
	}

	return commandResult{err: errors.New("unknown session command")}
}

func (r *Runner) afterRound(result scoring.RoundResult) {
	for _, sink := range r.sinks {
		sink.OnRoundResult(r.id, result)
	}

	if r.engine.State() == StateEnded {
		summary, _ := r.engine.SessionSummary()
		r.finish(summary)
		return
	}
	r.notifyState()
}

func (r *Runner) finish(summary scoring.SessionSummary) {
	metrics.ObserveSessionDuration(summary.TotalTimeSeconds)
	r.notifyState()
	for _, sink := range r.sinks {
		sink.OnSummary(r.id, summary)
	}
}

func (r *Runner) handleTick() {
	if r.engine.Tick() {
		r.notifyState()
	}
}

func (r *Runner) processFrame(frame Frame) {
	metrics.RecordFrameProcessed()

	visual := scoring.Visual{FaceDetected: len(frame.Landmarks) > 0}
	if visual.FaceDetected {
		visual.Ocular = r.ocular.Update(frame.Landmarks)
		visual.OcularValid = r.ocular.HasResult()
		visual.Pose = r.pose.Update(frame.Landmarks)
		visual.PoseValid = r.pose.HasResult()

		switch {
		case frame.Expressions != nil:
			r.lastExpr = r.expression.Analyze(realtime.ClassifierInput(frame.Expressions))
		case frame.Blendshapes != nil:
			r.lastExpr = r.expression.Analyze(realtime.BlendshapeInput(frame.Blendshapes))
		}
		visual.Expression = r.lastExpr
	}

	vocal := r.vocal.Analyze(frame.Volume, frame.VolumeActive)
	fluency := r.fluency.Metrics()

	r.engine.RecordMetrics(visual, &vocal, &fluency)

	state := r.engine.State()
	if state == StateIdle || state == StateEnded {
		return
	}

	update := LiveUpdate{
		SessionID:    r.id,
		State:        state,
		Round:        r.engine.CurrentRound(),
		RoundElapsed: r.engine.RoundElapsed(),
		ElapsedClock: r.engine.ElapsedClock(),
		Ocular:       visual.Ocular,
		Pose:         visual.Pose,
		Expression:   visual.Expression,
		Vocal:        vocal,
		Fluency:      fluency,
		Transcript:   r.fluency.PeekTranscript(),
	}
	if state == StateRunning {
		score := r.engine.LiveScore()
		update.Score = &score
	}

	for _, sink := range r.sinks {
		sink.OnLiveUpdate(update)
	}
}

func (r *Runner) status() Status {
	status := Status{
		SessionID:        r.id,
		State:            r.engine.State(),
		Round:            r.engine.CurrentRound(),
		Rounds:           r.engine.QuestionCount(),
		RoundElapsed:     r.engine.RoundElapsed(),
		ElapsedClock:     r.engine.ElapsedClock(),
		ReviewTranscript: r.engine.ReviewTranscript(),
	}
	if q, ok := r.engine.CurrentQuestion(); ok {
		status.Question = q
	}
	return status
}

func (r *Runner) notifyState() {
	status := r.status()
	r.logger.WithFields(logrus.Fields{
		"state": status.State,
		"round": status.Round,
	}).Debug("Session state changed")

	for _, sink := range r.sinks {
		sink.OnStateChange(status)
	}
}
