package stt

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/realtime"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/sirupsen/logrus"
)

// AmazonProvider streams PCM to Amazon Transcribe
type AmazonProvider struct {
	logger *logrus.Logger
	client *transcribestreaming.Client
	config *config.AmazonSTTConfig
}

// NewAmazonProvider creates a new Amazon Transcribe provider
func NewAmazonProvider(logger *logrus.Logger, cfg *config.AmazonSTTConfig) *AmazonProvider {
	return &AmazonProvider{
		logger: logger,
		config: cfg,
	}
}

// Name returns the provider name
func (p *AmazonProvider) Name() string {
	return "amazon"
}

// Initialize initializes the Amazon Transcribe client
func (p *AmazonProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("Amazon STT configuration is required")
	}

	if p.config.AccessKeyID == "" || p.config.SecretAccessKey == "" {
		return fmt.Errorf("Amazon STT requires AWS access key ID and secret access key")
	}

	region := p.config.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(3),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     p.config.AccessKeyID,
				SecretAccessKey: p.config.SecretAccessKey,
			}, nil
		})),
	)
	if err != nil {
		p.logger.WithError(err).Error("Failed to load AWS configuration")
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	p.client = transcribestreaming.NewFromConfig(cfg)

	p.logger.WithFields(logrus.Fields{
		"region":      region,
		"language":    p.config.Language,
		"sample_rate": p.config.SampleRate,
		"vocabulary":  p.config.VocabularyName,
	}).Info("Amazon Transcribe provider initialized successfully")
	return nil
}

// StreamToText streams audio data to Amazon Transcribe
func (p *AmazonProvider) StreamToText(ctx context.Context, audio io.Reader, sessionID string, sink TranscriptSink) error {
	if p.client == nil {
		return ErrInitializationFailed
	}
	logger := p.logger.WithFields(logrus.Fields{"session_id": sessionID, "provider": p.Name()})

	input := &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(p.config.Language),
		MediaSampleRateHertz: aws.Int32(int32(p.config.SampleRate)),
		MediaEncoding:        types.MediaEncodingPcm,
	}
	if p.config.VocabularyName != "" {
		input.VocabularyName = aws.String(p.config.VocabularyName)
	}

	resp, err := p.client.StartStreamTranscription(ctx, input)
	if err != nil {
		return classifyAmazonError(err)
	}
	stream := resp.GetStream()
	defer stream.Close()

	go func() {
		buffer := make([]byte, 4096)
		for {
			n, readErr := audio.Read(buffer)
			if n > 0 {
				event := &types.AudioStreamMemberAudioEvent{
					Value: types.AudioEvent{AudioChunk: append([]byte(nil), buffer[:n]...)},
				}
				if sendErr := stream.Send(ctx, event); sendErr != nil {
					logger.WithError(sendErr).Debug("Failed to send audio to Amazon Transcribe")
					return
				}
			}
			if readErr != nil {
				// an empty audio event ends the input stream
				stream.Send(ctx, &types.AudioStreamMemberAudioEvent{Value: types.AudioEvent{AudioChunk: []byte{}}})
				return
			}
		}
	}()

	for event := range stream.Events() {
		transcriptEvent, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok {
			logger.WithField("event_type", fmt.Sprintf("%T", event)).Debug("Unknown transcription event type")
			continue
		}
		p.forwardResults(transcriptEvent.Value, sink, logger)
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := stream.Err(); err != nil {
		return classifyAmazonError(err)
	}
	return nil
}

func (p *AmazonProvider) forwardResults(event types.TranscriptEvent, sink TranscriptSink, logger *logrus.Entry) {
	if event.Transcript == nil {
		return
	}

	for _, result := range event.Transcript.Results {
		if len(result.Alternatives) == 0 || result.Alternatives[0].Transcript == nil {
			continue
		}
		transcript := strings.TrimSpace(*result.Alternatives[0].Transcript)
		if transcript == "" {
			continue
		}

		logger.WithField("is_final", !result.IsPartial).Trace("Received transcription from Amazon Transcribe")

		if sink != nil {
			sink(realtime.TranscriptEvent{
				IsFinal:     !result.IsPartial,
				Text:        transcript,
				TimestampMs: time.Now().UnixMilli(),
			})
		}
	}
}

// classifyAmazonError maps Transcribe exceptions onto restart reasons.
// Transcribe rejects a stream that received no audio with a BadRequestException timeout.
func classifyAmazonError(err error) error {
	var badRequest *types.BadRequestException
	if stderrors.As(err, &badRequest) {
		if strings.Contains(strings.ToLower(badRequest.ErrorMessage()), "timed out") {
			return NewStreamFailure("amazon", ReasonNoSpeech, err)
		}
		return err
	}

	var (
		limitExceeded *types.LimitExceededException
		internal      *types.InternalFailureException
		unavailable   *types.ServiceUnavailableException
		conflict      *types.ConflictException
	)
	switch {
	case stderrors.As(err, &unavailable):
		return NewStreamFailure("amazon", ReasonNetwork, err)
	case stderrors.As(err, &limitExceeded), stderrors.As(err, &internal), stderrors.As(err, &conflict):
		return NewStreamFailure("amazon", ReasonAborted, err)
	}
	return err
}
