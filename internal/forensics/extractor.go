package forensics

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/textutil"
)

const extractionPrompt = `
Return under EXACT headings:
TRANSCRIPT:
VISIBLE_TEXT:
SCENE_SUMMARY:
`

// ContentExtractor pulls transcript, on-screen text and a scene summary out
// of an indexed video as one text blob. The headings are requested, not
// guaranteed.
type ContentExtractor struct {
	index    VideoIndex
	maxChars int
}

func NewContentExtractor(index VideoIndex, maxChars int) *ContentExtractor {
	if maxChars <= 0 {
		maxChars = DefaultSettings().MaxVideoTextChars
	}
	return &ContentExtractor{index: index, maxChars: maxChars}
}

func (e *ContentExtractor) Extract(ctx context.Context, h *VideoHandle) (string, error) {
	text, err := e.index.Analyze(ctx, h.VideoID, extractionPrompt)
	if err != nil {
		return "", fmt.Errorf("extract video text: %w", err)
	}

	trimmed := textutil.Truncate(text, e.maxChars)
	logger.FromContext(ctx).Info("Extracted video text",
		zap.Int("chars", len([]rune(text))),
		zap.Int("kept_chars", len([]rune(trimmed))),
	)
	return trimmed, nil
}
