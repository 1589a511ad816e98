package document

import (
	"bytes"
	"context"
	"fmt"

	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/pkg/textextract"
)

// Extractor turns stored bytes into plain text. Failures wrap models.ErrExtraction.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

type TextExtractor struct{}

var _ Extractor = TextExtractor{}

func NewTextExtractor() TextExtractor {
	return TextExtractor{}
}

func (TextExtractor) Extract(_ context.Context, data []byte, contentType string) (string, error) {
	result, err := textextract.Extract(bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}
	return result.Content, nil
}

func (TextExtractor) Supports(contentType string) bool {
	return textextract.Supported(contentType)
}
