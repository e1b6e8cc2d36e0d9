package forensics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/logger"
)

type Stage string

const (
	StageIndex     Stage = "index"
	StageExtract   Stage = "extract"
	StageStructure Stage = "structure"
	StageFactCheck Stage = "factcheck"
	StageSplice    Stage = "splice"
	StageTimeline  Stage = "timeline"
	StageFuse      Stage = "fuse"
)

var stageMessages = map[Stage]string{
	StageIndex:     "Uploading and indexing video",
	StageExtract:   "Extracting transcript, visible text and scene summary",
	StageStructure: "Structuring claims",
	StageFactCheck: "Fact-checking claims against web sources",
	StageSplice:    "Detecting splices and context shifts",
	StageTimeline:  "Checking timeline against posted date",
	StageFuse:      "Computing final score",
}

// ProgressFunc is told when each stage starts. It may be nil.
type ProgressFunc func(stage Stage, message string)

// Pipeline runs the fact-check stages strictly in order. It holds no
// per-run state and is safe for concurrent use.
type Pipeline struct {
	indexer    *AssetIndexer
	extractor  *ContentExtractor
	structurer *ClaimStructurer
	checker    *FactChecker
	splice     *SpliceDetector
	timeline   *TimelineChecker
	newRunID   func() string
}

func NewPipeline(index VideoIndex, reasoner Reasoner, search Searcher, s Settings) *Pipeline {
	return &Pipeline{
		indexer:    NewAssetIndexer(index, s),
		extractor:  NewContentExtractor(index, s.MaxVideoTextChars),
		structurer: NewClaimStructurer(reasoner),
		checker:    NewFactChecker(search, reasoner, s),
		splice:     NewSpliceDetector(index, reasoner),
		timeline:   NewTimelineChecker(reasoner, s.RequireTimelineCue),
		newRunID:   uuid.NewString,
	}
}

// Run executes one analysis. Any stage error aborts the run and no partial
// report is returned.
func (p *Pipeline) Run(ctx context.Context, req AnalysisRequest, progress ProgressFunc) (*Report, error) {
	if req.VideoPath == "" {
		return nil, apperr.Validation("pipeline.run", "video path is required")
	}

	runID := p.newRunID()
	log := logger.GetLogger().With(zap.String("run_id", runID))
	ctx = logger.NewContext(ctx, log)
	log.Info("Starting fact-check analysis",
		zap.String("filename", req.Filename),
		zap.Int("caption_chars", len(req.Caption)),
		zap.String("posted_date", req.PostedDate),
	)

	var (
		handle     *VideoHandle
		videoText  string
		structured *StructuredContent
		verdicts   []ClaimVerdict
		splice     *SpliceAssessment
		timing     *TimelineAssessment
	)

	stages := []struct {
		stage Stage
		run   func() error
	}{
		{StageIndex, func() (err error) {
			handle, err = p.indexer.Index(ctx, req.VideoPath)
			return err
		}},
		{StageExtract, func() (err error) {
			videoText, err = p.extractor.Extract(ctx, handle)
			return err
		}},
		{StageStructure, func() (err error) {
			structured, err = p.structurer.Structure(ctx, videoText, req.Caption)
			return err
		}},
		{StageFactCheck, func() (err error) {
			verdicts, err = p.checker.Check(ctx, structured)
			return err
		}},
		{StageSplice, func() (err error) {
			splice, err = p.splice.Detect(ctx, handle)
			return err
		}},
		{StageTimeline, func() (err error) {
			timing, err = p.timeline.Check(ctx, structured, req.PostedDate)
			return err
		}},
	}

	for _, st := range stages {
		if err := p.runStage(ctx, log, st.stage, progress, st.run); err != nil {
			return nil, err
		}
	}

	notify(progress, StageFuse)
	final := Fuse(verdicts, splice, timing)
	report := BuildReport(runID, final, structured, verdicts, splice, timing)

	metrics.VerdictsTotal.WithLabelValues(string(final.Verdict)).Inc()
	metrics.RiskScore.Observe(float64(final.MisinformationRiskScore))
	log.Info("Fact-check analysis complete",
		zap.String("verdict", string(final.Verdict)),
		zap.Int("confidence", final.ConfidencePercent),
		zap.Int("risk", final.MisinformationRiskScore),
		zap.Int("claims", len(verdicts)),
	)
	return report, nil
}

func (p *Pipeline) runStage(ctx context.Context, log *zap.Logger, stage Stage, progress ProgressFunc, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	notify(progress, stage)
	log.Info("Stage started", zap.String("stage", string(stage)))

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StageDuration.WithLabelValues(string(stage), status).Observe(elapsed.Seconds())

	if err != nil {
		log.Error("Stage failed", zap.String("stage", string(stage)), zap.Duration("duration", elapsed), zap.Error(err))
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	log.Info("Stage completed", zap.String("stage", string(stage)), zap.Duration("duration", elapsed))
	return nil
}

func notify(progress ProgressFunc, stage Stage) {
	if progress != nil {
		progress(stage, stageMessages[stage])
	}
}
