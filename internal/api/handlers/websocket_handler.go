package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/forensics"
	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/logger"
)

const endpointWebSocket = "websocket"

type analyzeMessage struct {
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	VideoBase64 string `json:"video_base64"`
	CaptionText string `json:"caption_text"`
	PostedDate  string `json:"posted_date"`
}

// WebSocketHandler runs fact-check analyses over a websocket and streams a
// message per pipeline stage before the final report.
type WebSocketHandler struct {
	pipeline  FactCheckRunner
	tempDir   string
	readLimit int64
}

func NewWebSocketHandler(pipeline FactCheckRunner, tempDir string, readLimit int64) *WebSocketHandler {
	return &WebSocketHandler{
		pipeline:  pipeline,
		tempDir:   tempDir,
		readLimit: readLimit,
	}
}

// Upgrade only lets websocket handshakes through to HandleConnection.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	if h.readLimit > 0 {
		c.SetReadLimit(h.readLimit)
	}

	for {
		var msg analyzeMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		if err := h.handleMessage(context.Background(), msg, c.WriteJSON); err != nil {
			logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

// handleMessage runs one request. The returned error is a write failure;
// analysis failures are sent to the client as error messages.
func (h *WebSocketHandler) handleMessage(ctx context.Context, msg analyzeMessage, send func(interface{}) error) error {
	if msg.Type != "analyze" {
		return sendError(send, fmt.Sprintf("Unsupported message type %q", msg.Type))
	}

	report, err := h.analyze(ctx, msg, func(stage forensics.Stage, message string) {
		if err := send(fiber.Map{"type": "stage", "stage": stage, "message": message}); err != nil {
			logger.Debug("Failed to send stage update", zap.Error(err))
		}
	})
	if err != nil {
		logger.Error("WebSocket analysis failed", zap.Error(err))
		metrics.AnalysesTotal.WithLabelValues(endpointWebSocket, fmt.Sprint(apperr.HTTPStatus(err))).Inc()
		return sendError(send, err.Error())
	}

	metrics.AnalysesTotal.WithLabelValues(endpointWebSocket, "ok").Inc()
	return send(fiber.Map{"type": "complete", "report": report})
}

func (h *WebSocketHandler) analyze(ctx context.Context, msg analyzeMessage, progress forensics.ProgressFunc) (*forensics.Report, error) {
	if strings.TrimSpace(msg.VideoBase64) == "" {
		return nil, apperr.Validation("websocket.analyze", "No video file provided")
	}
	if strings.TrimSpace(msg.Filename) == "" {
		return nil, apperr.Validation("websocket.analyze", "Empty filename")
	}

	video, err := base64.StdEncoding.DecodeString(stripDataURL(msg.VideoBase64))
	if err != nil {
		return nil, apperr.Validation("websocket.analyze", "video_base64 is not valid base64: %v", err)
	}

	dir, err := os.MkdirTemp(h.tempDir, "vidforensics-ws-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, secureFilename(msg.Filename))
	if err := os.WriteFile(path, video, 0o600); err != nil {
		return nil, err
	}

	return h.pipeline.Run(ctx, forensics.AnalysisRequest{
		VideoPath:  path,
		Filename:   msg.Filename,
		Caption:    strings.TrimSpace(msg.CaptionText),
		PostedDate: strings.TrimSpace(msg.PostedDate),
	}, progress)
}

// stripDataURL drops a "data:video/mp4;base64," prefix if the browser sent
// one.
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func sendError(send func(interface{}) error, msg string) error {
	return send(fiber.Map{"type": "error", "error": msg})
}
