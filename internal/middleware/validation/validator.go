package validation

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const mediaTypeLocal = "media_type"

type Config struct {
	FileField       string
	AllowedPrefixes []string
	MaxCaptionChars int
	Logger          *zap.Logger
}

// UploadMiddleware checks multipart uploads before a handler spends any
// upstream calls on them. The uploaded file's type is sniffed from its
// content, never taken from the client's header. Missing files are left
// for the handler to report.
func UploadMiddleware(cfg Config) fiber.Handler {
	if cfg.FileField == "" {
		cfg.FileField = "video"
	}
	if len(cfg.AllowedPrefixes) == 0 {
		cfg.AllowedPrefixes = []string{"video/", "audio/"}
	}
	if cfg.MaxCaptionChars == 0 {
		cfg.MaxCaptionChars = 5000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
		if !strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Expected multipart/form-data",
			})
		}

		if len([]rune(c.FormValue("caption_text"))) > cfg.MaxCaptionChars {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Caption exceeds maximum length",
			})
		}

		fh, err := c.FormFile(cfg.FileField)
		if err != nil || fh.Filename == "" {
			return c.Next()
		}

		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unreadable upload",
			})
		}
		mt, err := mimetype.DetectReader(f)
		f.Close()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unreadable upload",
			})
		}

		if !allowed(mt.String(), cfg.AllowedPrefixes) {
			cfg.Logger.Warn("Rejected upload",
				zap.String("ip", c.IP()),
				zap.String("filename", fh.Filename),
				zap.String("detected", mt.String()),
			)
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported media type: " + mt.String(),
			})
		}

		c.Locals(mediaTypeLocal, mt.String())
		return c.Next()
	}
}

// MediaType returns the sniffed type stored by UploadMiddleware, or "".
func MediaType(c *fiber.Ctx) string {
	mt, _ := c.Locals(mediaTypeLocal).(string)
	return mt
}

func allowed(mt string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(mt, p) {
			return true
		}
	}
	return false
}
