package handlers

import (
	"context"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/authenticity"
	"github.com/vidforensics/backend/internal/forensics"
	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/internal/middleware/validation"
	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/logger"
)

const (
	endpointFactCheck = "factcheck"
	endpointAI        = "ai_detection"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type FactCheckRunner interface {
	Run(ctx context.Context, req forensics.AnalysisRequest, progress forensics.ProgressFunc) (*forensics.Report, error)
}

type TrustAnalyzer interface {
	Analyze(ctx context.Context, path, mimeType string) (*authenticity.TrustReport, error)
}

type AnalyzeHandler struct {
	pipeline FactCheckRunner
	trust    TrustAnalyzer
	tempDir  string
}

func NewAnalyzeHandler(pipeline FactCheckRunner, trust TrustAnalyzer, tempDir string) *AnalyzeHandler {
	return &AnalyzeHandler{
		pipeline: pipeline,
		trust:    trust,
		tempDir:  tempDir,
	}
}

func (h *AnalyzeHandler) AnalyzeFactCheck(c *fiber.Ctx) error {
	fh, errMsg := uploadedVideo(c)
	if errMsg != "" {
		return h.reject(c, endpointFactCheck, errMsg)
	}

	caption := strings.TrimSpace(c.FormValue("caption_text"))
	postedDate := strings.TrimSpace(c.FormValue("posted_date"))
	logger.Info("New fact-check request",
		zap.String("filename", fh.Filename),
		zap.Int("caption_chars", len(caption)),
		zap.String("posted_date", postedDate),
	)

	path, cleanup, err := saveUpload(c, fh, h.tempDir)
	if err != nil {
		return h.fail(c, endpointFactCheck, err)
	}
	defer cleanup()

	report, err := h.pipeline.Run(c.UserContext(), forensics.AnalysisRequest{
		VideoPath:  path,
		Filename:   fh.Filename,
		Caption:    caption,
		PostedDate: postedDate,
	}, nil)
	if err != nil {
		return h.fail(c, endpointFactCheck, err)
	}

	metrics.AnalysesTotal.WithLabelValues(endpointFactCheck, "ok").Inc()
	return c.JSON(report)
}

func (h *AnalyzeHandler) AnalyzeAI(c *fiber.Ctx) error {
	fh, errMsg := uploadedVideo(c)
	if errMsg != "" {
		return h.reject(c, endpointAI, errMsg)
	}
	logger.Info("New AI detection request", zap.String("filename", fh.Filename))

	path, cleanup, err := saveUpload(c, fh, h.tempDir)
	if err != nil {
		return h.fail(c, endpointAI, err)
	}
	defer cleanup()

	mimeType := validation.MediaType(c)
	if mimeType == "" {
		mimeType = fh.Header.Get(fiber.HeaderContentType)
	}

	report, err := h.trust.Analyze(c.UserContext(), path, mimeType)
	if err != nil {
		return h.fail(c, endpointAI, err)
	}

	metrics.AnalysesTotal.WithLabelValues(endpointAI, "ok").Inc()
	return c.JSON(report)
}

func (h *AnalyzeHandler) reject(c *fiber.Ctx, endpoint, msg string) error {
	metrics.AnalysesTotal.WithLabelValues(endpoint, "400").Inc()
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func (h *AnalyzeHandler) fail(c *fiber.Ctx, endpoint string, err error) error {
	status := apperr.HTTPStatus(err)
	logger.Error("Analysis failed",
		zap.String("endpoint", endpoint),
		zap.Int("status", status),
		zap.Error(err),
	)
	metrics.AnalysesTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func uploadedVideo(c *fiber.Ctx) (*multipart.FileHeader, string) {
	fh, err := c.FormFile("video")
	if err != nil {
		return nil, "No video file provided"
	}
	if strings.TrimSpace(fh.Filename) == "" {
		return nil, "Empty filename"
	}
	return fh, ""
}

// saveUpload writes the upload into a fresh directory. The returned cleanup
// removes the directory and must run on every exit path.
func saveUpload(c *fiber.Ctx, fh *multipart.FileHeader, tempDir string) (string, func(), error) {
	dir, err := os.MkdirTemp(tempDir, "vidforensics-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove upload directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	path := filepath.Join(dir, secureFilename(fh.Filename))
	if err := c.SaveFile(fh, path); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func secureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}
