package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// ExtractedContent is what the extractor hands to the analysis adapters:
// either plain text (transcript or document text) or a pass-through locator
// for URL sources the provider fetches itself.
type ExtractedContent struct {
	Text            string
	Locator         string
	MimeType        string
	DurationSeconds *float64
}

// ContentExtractor obtains an analyzable representation for one source.
// Pure adapter: a single fetch, no retries.
type ContentExtractor interface {
	Extract(ctx context.Context, sourceType, locator, mimeType string) (*ExtractedContent, error)
}

type contentExtractor struct {
	log    *logger.Logger
	bucket BucketService
	speech SpeechService
}

func NewContentExtractor(log *logger.Logger, bucket BucketService, speech SpeechService) ContentExtractor {
	return &contentExtractor{
		log:    log.With("service", "ContentExtractor"),
		bucket: bucket,
		speech: speech,
	}
}

func (ce *contentExtractor) Extract(ctx context.Context, sourceType, locator, mimeType string) (*ExtractedContent, error) {
	switch sourceType {
	case types.SourceTypeURL:
		// Remote links are handed to the provider as-is.
		return &ExtractedContent{Locator: locator}, nil

	case types.SourceTypeVideo:
		if !isStorageKey(locator) {
			// Platform-hosted video: no local extraction, the analysis provider
			// consumes the URL directly.
			return &ExtractedContent{Locator: locator}, nil
		}
		if ce.speech == nil {
			return nil, fmt.Errorf("speech service not configured; cannot transcribe %q", locator)
		}
		result, err := ce.speech.TranscribeGCS(ctx, "gs://"+strings.TrimPrefix(locator, "gcs:"))
		if err != nil {
			return nil, fmt.Errorf("transcribe uploaded video: %w", err)
		}
		dur := result.DurationSeconds
		return &ExtractedContent{
			Text:            result.Transcript,
			Locator:         locator,
			DurationSeconds: &dur,
		}, nil

	case types.SourceTypePDF, types.SourceTypeSlideDeck:
		if !isStorageKey(locator) {
			return nil, fmt.Errorf("source type %s requires an uploaded file, got locator %q", sourceType, locator)
		}
		if ce.bucket == nil {
			return nil, fmt.Errorf("bucket service not configured; cannot download %q", locator)
		}
		key := strings.TrimPrefix(locator, "gcs:")
		rc, err := ce.bucket.DownloadFile(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", key, err)
		}
		data, readErr := io.ReadAll(rc)
		_ = rc.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", key, readErr)
		}
		text, err := ExtractText(key, mimeType, data)
		if err != nil {
			return nil, fmt.Errorf("extract text from %s: %w", key, err)
		}
		return &ExtractedContent{Text: text, Locator: locator, MimeType: mimeType}, nil

	default:
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}
}

// isStorageKey reports whether a locator names an uploaded object rather than
// a remote URL. Uploaded locators carry the "gcs:" prefix set by the upload
// handler.
func isStorageKey(locator string) bool {
	return strings.HasPrefix(locator, "gcs:")
}
