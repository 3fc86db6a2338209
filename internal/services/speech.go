package services

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
)

// SpeechService transcribes uploaded video/audio sources. Long-running
// recognition against a GCS URI; inline bytes for small payloads.
type SpeechService interface {
	TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (*TranscriptResult, error)
	TranscribeGCS(ctx context.Context, gcsURI string) (*TranscriptResult, error)
	Close() error
}

type TranscriptResult struct {
	Transcript      string
	DurationSeconds float64
}

type speechService struct {
	log    *logger.Logger
	client *speech.Client
}

func NewSpeechService(log *logger.Logger, credentialsPath string) (SpeechService, error) {
	serviceLog := log.With("service", "SpeechService")
	ctx := context.Background()
	var client *speech.Client
	var err error
	if credentialsPath != "" {
		client, err = speech.NewClient(ctx, option.WithCredentialsFile(credentialsPath))
	} else {
		client, err = speech.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &speechService{log: serviceLog, client: client}, nil
}

func (ss *speechService) recognitionConfig() *speechpb.RecognitionConfig {
	return &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
		LanguageCode:               "en-US",
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
		Model:                      "latest_long",
	}
}

func (ss *speechService) TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (*TranscriptResult, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio payload (mime=%s)", mimeType)
	}
	resp, err := ss.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: ss.recognitionConfig(),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return nil, fmt.Errorf("speech recognize: %w", err)
	}
	return collectResults(resp.Results)
}

func (ss *speechService) TranscribeGCS(ctx context.Context, gcsURI string) (*TranscriptResult, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("expected gs:// uri, got %q", gcsURI)
	}
	op, err := ss.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: ss.recognitionConfig(),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Uri{Uri: gcsURI}},
	})
	if err != nil {
		return nil, fmt.Errorf("speech long-running recognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech long-running wait: %w", err)
	}
	return collectResults(resp.Results)
}

func collectResults(results []*speechpb.SpeechRecognitionResult) (*TranscriptResult, error) {
	var b strings.Builder
	var endSec float64
	for _, res := range results {
		if len(res.Alternatives) == 0 {
			continue
		}
		alt := res.Alternatives[0]
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(alt.Transcript))
		if n := len(alt.Words); n > 0 {
			if end := alt.Words[n-1].EndTime; end != nil {
				endSec = end.AsDuration().Seconds()
			}
		}
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("no transcript produced")
	}
	return &TranscriptResult{Transcript: b.String(), DurationSeconds: endSec}, nil
}

func (ss *speechService) Close() error {
	return ss.client.Close()
}
