package authenticity

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/internal/probe"
	"github.com/vidforensics/backend/internal/provenance"
	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/logger"
)

type Prober interface {
	Probe(ctx context.Context, file string) (*probe.Result, error)
}

type ManifestReader interface {
	Read(ctx context.Context, file string) (*provenance.Manifest, error)
}

// MetadataSummary is the container metadata plus the provenance manifest
// outcome for one file.
type MetadataSummary struct {
	probe.Summary
	C2PAAI   bool                   `json:"c2pa_ai"`
	C2PAData map[string]interface{} `json:"c2pa_data"`
}

// ProvenanceChecker reads container metadata and any embedded C2PA
// manifest. A missing tool or manifest is reported in the summary, not as an
// error.
type ProvenanceChecker struct {
	prober   Prober
	manifest ManifestReader
}

func NewProvenanceChecker(p Prober, m ManifestReader) *ProvenanceChecker {
	return &ProvenanceChecker{prober: p, manifest: m}
}

func (c *ProvenanceChecker) Check(ctx context.Context, path string) (*MetadataSummary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.Validation("provenance.check", "file not found: %s", path)
	}
	log := logger.FromContext(ctx)

	var result *probe.Result
	if c.prober != nil {
		r, err := c.prober.Probe(ctx, path)
		switch {
		case errors.Is(err, probe.ErrUnavailable):
			log.Warn("ffprobe not available for metadata extraction")
		case err != nil:
			log.Warn("Metadata probe failed", zap.Error(err))
		default:
			result = r
		}
	}

	out := &MetadataSummary{Summary: probe.Summarize(result)}
	out.C2PAAI, out.C2PAData = c.readManifest(ctx, log, path)

	outcome := "not_ai"
	if out.C2PAAI {
		outcome = "ai"
	}
	metrics.AIDetections.WithLabelValues("c2pa", outcome).Inc()
	return out, nil
}

func (c *ProvenanceChecker) readManifest(ctx context.Context, log *zap.Logger, path string) (bool, map[string]interface{}) {
	if c.manifest == nil {
		return false, map[string]interface{}{"error": provenance.ErrUnavailable.Error()}
	}
	m, err := c.manifest.Read(ctx, path)
	if err != nil {
		log.Warn("C2PA read failed", zap.Error(err))
		return false, map[string]interface{}{"error": err.Error()}
	}
	if m.Data == nil {
		m.Data = map[string]interface{}{}
	}
	return m.AIGenerated, m.Data
}
