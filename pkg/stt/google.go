package stt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/realtime"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GoogleProvider streams PCM to Google Cloud Speech-to-Text
type GoogleProvider struct {
	logger *logrus.Logger
	client *speech.Client
	config *config.GoogleSTTConfig
}

// NewGoogleProvider creates a new Google Speech-to-Text provider
func NewGoogleProvider(logger *logrus.Logger, cfg *config.GoogleSTTConfig) *GoogleProvider {
	return &GoogleProvider{
		logger: logger,
		config: cfg,
	}
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

// Initialize initializes the Google Speech-to-Text client
func (p *GoogleProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("Google STT configuration is required")
	}

	var clientOptions []option.ClientOption

	if p.config.APIKey != "" {
		clientOptions = append(clientOptions, option.WithAPIKey(p.config.APIKey))
		p.logger.Debug("Using Google STT API key authentication")
	} else if p.config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(p.config.CredentialsFile))
		p.logger.WithField("credentials_file", p.config.CredentialsFile).Debug("Using Google STT credentials file")
	} else {
		return fmt.Errorf("Google STT requires either API key or credentials file")
	}

	var err error
	p.client, err = speech.NewClient(context.Background(), clientOptions...)
	if err != nil {
		p.logger.WithError(err).Error("Failed to create Google Speech client")
		return fmt.Errorf("failed to create Google Speech client: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"language":         p.config.Language,
		"sample_rate":      p.config.SampleRate,
		"model":            p.config.Model,
		"auto_punctuation": p.config.EnableAutomaticPunctuation,
	}).Info("Google Speech-to-Text client initialized successfully")
	return nil
}

func (p *GoogleProvider) streamingConfig() *speechpb.StreamingRecognitionConfig {
	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(p.config.SampleRate),
		LanguageCode:               p.config.Language,
		EnableAutomaticPunctuation: p.config.EnableAutomaticPunctuation,
	}
	if p.config.Model != "" {
		recognitionConfig.Model = p.config.Model
	}

	return &speechpb.StreamingRecognitionConfig{
		Config:         recognitionConfig,
		InterimResults: true,
	}
}

// StreamToText streams audio data to Google Speech-to-Text
func (p *GoogleProvider) StreamToText(ctx context.Context, audio io.Reader, sessionID string, sink TranscriptSink) error {
	if p.client == nil {
		return ErrInitializationFailed
	}
	logger := p.logger.WithFields(logrus.Fields{"session_id": sessionID, "provider": p.Name()})

	stream, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		return classifyGoogleError(err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: p.streamingConfig(),
		},
	}); err != nil {
		logger.WithError(err).Error("Failed to send streaming config")
		return classifyGoogleError(err)
	}

	sendErr := make(chan error, 1)
	go func() {
		buffer := make([]byte, 4096)
		for {
			n, err := audio.Read(buffer)
			if n > 0 {
				if serr := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
						AudioContent: append([]byte(nil), buffer[:n]...),
					},
				}); serr != nil {
					sendErr <- serr
					return
				}
			}
			if err != nil {
				stream.CloseSend()
				if err != io.EOF {
					sendErr <- err
				}
				return
			}
		}
	}()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case serr := <-sendErr:
				logger.WithError(serr).Debug("Audio send failed before receive error")
			default:
			}
			return classifyGoogleError(err)
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			transcript := strings.TrimSpace(result.Alternatives[0].Transcript)
			if transcript == "" {
				continue
			}

			logger.WithFields(logrus.Fields{
				"final":      result.IsFinal,
				"confidence": result.Alternatives[0].Confidence,
			}).Trace("Received Google transcription")

			if sink != nil {
				sink(realtime.TranscriptEvent{
					IsFinal:     result.IsFinal,
					Text:        transcript,
					TimestampMs: time.Now().UnixMilli(),
				})
			}
		}
	}
}

// classifyGoogleError maps gRPC status codes onto restart reasons.
// Google ends streams that hear nothing with OutOfRange or DeadlineExceeded.
func classifyGoogleError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.OutOfRange, codes.DeadlineExceeded:
		return NewStreamFailure("google", ReasonNoSpeech, err)
	case codes.Unavailable:
		return NewStreamFailure("google", ReasonNetwork, err)
	case codes.Aborted, codes.Canceled, codes.ResourceExhausted, codes.Internal:
		return NewStreamFailure("google", ReasonAborted, err)
	default:
		return err
	}
}
