package authenticity

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/textutil"
)

const defaultNote = "Analysis complete"

type C2PAResult struct {
	Detected bool                   `json:"detected"`
	Data     map[string]interface{} `json:"data"`
}

type DetectionMethods struct {
	C2PAMetadata       C2PAResult `json:"c2pa_metadata"`
	GenerationAnalysis Detection  `json:"synthid_analysis"`
}

type ReportMetadata struct {
	Format       string   `json:"format"`
	Duration     string   `json:"duration"`
	Encoder      string   `json:"encoder"`
	Device       string   `json:"device"`
	CaptureHints []string `json:"capture_hints"`
}

// TrustReport is the response of the AI-generation path.
type TrustReport struct {
	IsAIGenerated    bool             `json:"is_ai_generated"`
	TrustScore       int              `json:"trust_score"`
	Confidence       int              `json:"confidence"`
	DetectionMethods DetectionMethods `json:"detection_methods"`
	Metadata         ReportMetadata   `json:"metadata"`
	Note             string           `json:"note"`
}

// Analyzer runs the provenance check and then the generation detector.
type Analyzer struct {
	provenance *ProvenanceChecker
	detector   *GenerationDetector
}

func NewAnalyzer(p *ProvenanceChecker, d *GenerationDetector) *Analyzer {
	return &Analyzer{provenance: p, detector: d}
}

func (a *Analyzer) Analyze(ctx context.Context, path, mimeType string) (*TrustReport, error) {
	log := logger.GetLogger().With(zap.String("run_id", uuid.NewString()))
	ctx = logger.NewContext(ctx, log)

	log.Info("Extracting metadata")
	meta, err := a.provenance.Check(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Info("Running AI generation detection")
	det := a.detector.Detect(ctx, path, mimeType, meta, "")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := BuildTrustReport(meta, det)
	log.Info("AI detection complete",
		zap.Bool("ai_detected", report.IsAIGenerated),
		zap.Int("trust_score", report.TrustScore),
	)
	return report, nil
}

func BuildTrustReport(meta *MetadataSummary, det Detection) *TrustReport {
	if meta == nil {
		meta = &MetadataSummary{}
	}
	data := meta.C2PAData
	if data == nil {
		data = map[string]interface{}{}
	}
	hints := meta.CaptureHints
	if hints == nil {
		hints = []string{}
	}

	return &TrustReport{
		IsAIGenerated: det.IsAI || meta.C2PAAI,
		TrustScore:    det.TrustScore,
		Confidence:    det.Confidence,
		DetectionMethods: DetectionMethods{
			C2PAMetadata:       C2PAResult{Detected: meta.C2PAAI, Data: data},
			GenerationAnalysis: det,
		},
		Metadata: ReportMetadata{
			Format:       meta.Format,
			Duration:     meta.Duration,
			Encoder:      meta.Encoder,
			Device:       meta.Device,
			CaptureHints: hints,
		},
		Note: textutil.FirstNonEmpty(det.Note, defaultNote),
	}
}
