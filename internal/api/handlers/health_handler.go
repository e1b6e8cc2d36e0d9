package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthInfo is fixed at startup: which upstream services are configured
// and which models are in use.
type HealthInfo struct {
	Services map[string]bool
	Models   map[string]string
}

type HealthHandler struct {
	info HealthInfo
	now  func() time.Time
}

func NewHealthHandler(info HealthInfo) *HealthHandler {
	return &HealthHandler{info: info, now: time.Now}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": float64(h.now().UnixNano()) / float64(time.Second),
		"endpoints": fiber.Map{
			"factcheck":    "/api/analyze-factcheck",
			"ai_detection": "/api/analyze-ai",
			"websocket":    "/api/ws/analyze",
		},
		"services": h.info.Services,
		"models":   h.info.Models,
	})
}
