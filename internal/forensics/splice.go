package forensics

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/pkg/jsonx"
	"github.com/vidforensics/backend/pkg/logger"
)

const splicePrompt = `
Return ONLY JSON:
{
  "has_sudden_shifts": true/false,
  "splice_risk_score": 0-100,
  "summary": ""
}

Rules:
- Ignore normal editing: tip cards, title screens, jump cuts, camera angles, b-roll.
- Give HIGH splice_risk_score only for real context mismatches:
  different locations as same, mismatched time/events, conflicting audio/visuals,
  repurposed footage, conflicting labels.
- Single coherent tutorial with edit cards: keep splice_risk_score low (0-30).
`

const spliceRepairPrompt = "Convert to JSON with keys has_sudden_shifts, splice_risk_score, summary:\n\n"

// SpliceDetector asks the video engine whether the footage shows incoherent
// context shifts. Its score is an opaque signal bounded to [0,100].
type SpliceDetector struct {
	index    VideoIndex
	reasoner Reasoner
}

func NewSpliceDetector(index VideoIndex, reasoner Reasoner) *SpliceDetector {
	return &SpliceDetector{index: index, reasoner: reasoner}
}

type spliceWire struct {
	HasSuddenShifts jsonx.Bool   `json:"has_sudden_shifts"`
	SpliceRiskScore jsonx.Number `json:"splice_risk_score"`
	Summary         jsonx.String `json:"summary"`
}

func (d *SpliceDetector) Detect(ctx context.Context, h *VideoHandle) (*SpliceAssessment, error) {
	log := logger.FromContext(ctx)

	raw, err := d.index.Analyze(ctx, h.VideoID, splicePrompt)
	if err != nil {
		return nil, fmt.Errorf("splice analysis: %w", err)
	}

	var wire spliceWire
	if err := jsonx.Decode(raw, &wire); err == nil {
		return wire.assessment(), nil
	}

	log.Warn("Splice output was not JSON, requesting repair", zap.Int("raw_chars", len(raw)))
	repaired, err := d.reasoner.GenerateJSON(ctx, spliceRepairPrompt+raw)
	if err != nil {
		metrics.ModelOutputRepairs.WithLabelValues("splice", "error").Inc()
		return nil, fmt.Errorf("splice repair: %w", err)
	}
	var fixed spliceWire
	if err := jsonx.Decode(repaired, &fixed); err != nil {
		metrics.ModelOutputRepairs.WithLabelValues("splice", "failed").Inc()
		return nil, fmt.Errorf("splice repair: %w", err)
	}
	metrics.ModelOutputRepairs.WithLabelValues("splice", "repaired").Inc()
	return fixed.assessment(), nil
}

func (w spliceWire) assessment() *SpliceAssessment {
	return &SpliceAssessment{
		HasSuddenShifts: bool(w.HasSuddenShifts),
		SpliceRiskScore: jsonx.Clamp(w.SpliceRiskScore.Int(), 0, 100),
		Summary:         strings.TrimSpace(string(w.Summary)),
	}
}
