package authenticity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/llm"
	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/pkg/jsonx"
	"github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/poll"
	"github.com/vidforensics/backend/pkg/retry"
	"github.com/vidforensics/backend/pkg/textutil"
)

const (
	neutralScore        = 50
	defaultContextChars = 2000
	unparseableNote     = "Unable to parse response"
	cleanupTimeout      = 15 * time.Second
)

const detectionPrompt = `
You are a misinformation detection expert.

METADATA: %s
Video Analysis Context: %s

TASK:
1. Cross-reference visual and audio elements for consistency
2. Look for Visual-Audio Inconsistency (e.g., environment doesn't match claims)
3. Detect signs of AI generation or deepfake manipulation
4. Check if C2PA metadata indicates AI generation

Return EXACTLY this JSON structure:
{ "is_ai": bool, "trust_score": 0-100, "confidence": 0-100, "note": "string" }
`

// MediaAnalyzer is a multimodal engine that accepts uploaded video files.
type MediaAnalyzer interface {
	Configured() bool
	Upload(ctx context.Context, path, mimeType string) (*llm.MediaFile, error)
	GetFile(ctx context.Context, name string) (*llm.MediaFile, error)
	DeleteFile(ctx context.Context, name string) error
	GenerateWithFile(ctx context.Context, file *llm.MediaFile, prompt string) (string, error)
}

// Detection is the generation detector's judgement. It is neutral when the
// detector could not decide.
type Detection struct {
	IsAI       bool   `json:"is_ai"`
	TrustScore int    `json:"trust_score"`
	Confidence int    `json:"confidence"`
	Note       string `json:"note"`
}

func neutral(note string) Detection {
	return Detection{TrustScore: neutralScore, Confidence: neutralScore, Note: note}
}

type detectionWire struct {
	IsAI       jsonx.Bool   `json:"is_ai"`
	TrustScore jsonx.Number `json:"trust_score"`
	Confidence jsonx.Number `json:"confidence"`
	Note       jsonx.String `json:"note"`
}

type GenerationDetector struct {
	media        MediaAnalyzer
	poll         poll.Config
	retry        retry.Config
	contextChars int
}

// NewGenerationDetector retries each engine call per retryCfg and caps the
// scene context placed in the prompt at contextChars runes; non-positive
// means 2000.
func NewGenerationDetector(media MediaAnalyzer, pollCfg poll.Config, retryCfg retry.Config, contextChars int) *GenerationDetector {
	if contextChars <= 0 {
		contextChars = defaultContextChars
	}
	return &GenerationDetector{media: media, poll: pollCfg, retry: retryCfg, contextChars: contextChars}
}

func (d *GenerationDetector) retryOp(op string) retry.Config {
	cfg := d.retry
	cfg.Op = op
	return cfg
}

// Detect never fails: an inconclusive detector must not block the trust
// report, so every error becomes a neutral Detection carrying the reason.
func (d *GenerationDetector) Detect(ctx context.Context, path, mimeType string, meta *MetadataSummary, sceneContext string) Detection {
	log := logger.FromContext(ctx)

	det, err := d.detect(ctx, log, path, mimeType, meta, sceneContext)
	if err != nil {
		log.Warn("Generation detection failed, using neutral result", zap.Error(err))
		metrics.AIDetections.WithLabelValues("detector", "error").Inc()
		return neutral(fmt.Sprintf("Error: %v", err))
	}

	outcome := "not_ai"
	if det.IsAI {
		outcome = "ai"
	}
	metrics.AIDetections.WithLabelValues("detector", outcome).Inc()
	return det
}

func (d *GenerationDetector) detect(ctx context.Context, log *zap.Logger, path, mimeType string, meta *MetadataSummary, sceneContext string) (Detection, error) {
	if d.media == nil || !d.media.Configured() {
		return Detection{}, fmt.Errorf("multimodal engine not configured")
	}

	file, err := retry.DoWithResult(ctx, d.retryOp("gemini.upload"), func() (*llm.MediaFile, error) {
		return d.media.Upload(ctx, path, mimeType)
	})
	if err != nil {
		return Detection{}, fmt.Errorf("upload video: %w", err)
	}
	defer d.cleanup(ctx, log, file.Name)

	current := file
	err = poll.Until(ctx, "media_file", d.poll, func(ctx context.Context) (poll.State, string, error) {
		if current.State != llm.FileStateProcessing && current.State != "" {
			return fileState(current.State), current.State, nil
		}
		f, err := retry.DoWithResult(ctx, d.retryOp("gemini.get_file"), func() (*llm.MediaFile, error) {
			return d.media.GetFile(ctx, file.Name)
		})
		if err != nil {
			return poll.Pending, "", err
		}
		current = f
		return fileState(f.State), f.State, nil
	})
	if err != nil {
		return Detection{}, fmt.Errorf("wait for video processing: %w", err)
	}
	log.Info("Video ready for generation analysis", zap.String("uri", current.URI))

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Detection{}, fmt.Errorf("encode metadata: %w", err)
	}
	prompt := fmt.Sprintf(detectionPrompt, metaJSON, textutil.Truncate(sceneContext, d.contextChars))

	raw, err := retry.DoWithResult(ctx, d.retryOp("gemini.generate"), func() (string, error) {
		return d.media.GenerateWithFile(ctx, current, prompt)
	})
	if err != nil {
		return Detection{}, fmt.Errorf("generate: %w", err)
	}

	var wire detectionWire
	if err := jsonx.Decode(raw, &wire); err != nil {
		log.Warn("Generation detector output was not JSON", zap.Int("raw_chars", len(raw)))
		return neutral(unparseableNote), nil
	}
	return wire.detection(), nil
}

func (w detectionWire) detection() Detection {
	det := Detection{
		IsAI:       bool(w.IsAI),
		TrustScore: neutralScore,
		Confidence: neutralScore,
		Note:       strings.TrimSpace(string(w.Note)),
	}
	if w.TrustScore.Valid {
		det.TrustScore = jsonx.Clamp(w.TrustScore.Int(), 0, 100)
	}
	if w.Confidence.Valid {
		det.Confidence = jsonx.Clamp(w.Confidence.Int(), 0, 100)
	}
	return det
}

func (d *GenerationDetector) cleanup(ctx context.Context, log *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := d.media.DeleteFile(ctx, name); err != nil {
		log.Debug("Failed to delete uploaded file", zap.String("name", name), zap.Error(err))
	}
}

func fileState(s string) poll.State {
	switch s {
	case llm.FileStateActive:
		return poll.Ready
	case llm.FileStateFailed:
		return poll.Failed
	default:
		return poll.Pending
	}
}
