package stt

import (
	stderrors "errors"
	"io"
	"net"

	"interview-coach/pkg/errors"
)

// Error definitions
var (
	ErrNoProviderAvailable  = stderrors.New("no speech-to-text provider available")
	ErrProviderNotFound     = stderrors.New("requested speech-to-text provider not found")
	ErrInitializationFailed = stderrors.New("provider initialization failed")
)

// FailureReason classifies why a transcription stream stopped
type FailureReason string

const (
	ReasonNoSpeech FailureReason = "no-speech"
	ReasonAborted  FailureReason = "aborted"
	ReasonNetwork  FailureReason = "network"
	// ReasonEnded is a stream that closed without error
	ReasonEnded FailureReason = "ended"
	ReasonFatal FailureReason = "fatal"
)

const reasonField = "reason"

// NewStreamFailure marks cause as a recoverable stream failure of the given kind
func NewStreamFailure(provider string, reason FailureReason, cause error) error {
	return errors.NewTransient(provider, cause, map[string]interface{}{reasonField: string(reason)})
}

// ClassifyFailure maps a StreamToText result to a restart decision
func ClassifyFailure(err error) FailureReason {
	if err == nil {
		return ReasonEnded
	}

	if errors.IsTransient(err) {
		if reason, ok := errors.GetErrorFields(err)[reasonField].(string); ok {
			return FailureReason(reason)
		}
		return ReasonAborted
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return ReasonNetwork
	}

	return ReasonFatal
}

// Recoverable reports whether the supervisor should restart after reason
func (r FailureReason) Recoverable() bool {
	return r != ReasonFatal
}
